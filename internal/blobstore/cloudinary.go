package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var (
	// ErrUploadsDisabled is returned by Disabled for every upload.
	ErrUploadsDisabled = errors.New("blobstore: uploads are not configured")
	errMissingPath     = errors.New("blobstore: path is required")
	errMissingContent  = errors.New("blobstore: content is required")
)

// Store persists user-submitted files and returns a durable URL for each.
type Store interface {
	Upload(ctx context.Context, path string, content io.Reader) (string, error)
}

// CloudinaryConfig holds account credentials and the root folder for uploads.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, uploadParams uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryStore uploads files to Cloudinary under a configured folder.
type CloudinaryStore struct {
	api    uploadAPI
	folder string
}

// NewCloudinaryStore builds a store from account credentials.
func NewCloudinaryStore(cfg CloudinaryConfig) (*CloudinaryStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("blobstore: cloudinary configuration is missing")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to initialize cloudinary: %w", err)
	}
	return newCloudinaryStore(&cld.Upload, cfg.Folder), nil
}

func newCloudinaryStore(api uploadAPI, folder string) *CloudinaryStore {
	return &CloudinaryStore{
		api:    api,
		folder: strings.Trim(strings.TrimSpace(folder), "/"),
	}
}

// Upload stores content at path (used as the public id) and returns its secure URL.
// Re-uploading the same path overwrites the previous file.
func (s *CloudinaryStore) Upload(ctx context.Context, path string, content io.Reader) (string, error) {
	publicID := strings.Trim(strings.TrimSpace(path), "/")
	if publicID == "" {
		return "", errMissingPath
	}
	if content == nil {
		return "", errMissingContent
	}
	overwrite := true
	result, err := s.api.Upload(ctx, content, uploader.UploadParams{
		PublicID:     publicID,
		Folder:       s.folder,
		Overwrite:    &overwrite,
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: upload %s failed: %w", publicID, err)
	}
	if result == nil {
		return "", fmt.Errorf("blobstore: upload %s returned no result", publicID)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("blobstore: upload %s rejected: %s", publicID, result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("blobstore: upload %s returned no url", publicID)
	}
	return result.SecureURL, nil
}

// Disabled is used when no blob backend is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader) (string, error) {
	return "", ErrUploadsDisabled
}
