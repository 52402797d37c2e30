package submissions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/blobstore"
	"github.com/MarcoPoloResearchLab/ambassador/internal/ids"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrSubmissionNotFound is returned when no submission matches the identifier.
	ErrSubmissionNotFound = errors.New("submissions: submission not found")
	// ErrTaskClosed is returned when the task is inactive or past its deadline.
	ErrTaskClosed        = errors.New("submissions: task is not accepting submissions")
	errMissingDatabase   = errors.New("submissions: database handle is required")
	errMissingIDProvider = errors.New("submissions: id provider is required")
	errMissingTasks      = errors.New("submissions: task lookup is required")
)

const (
	opSubmit      = "submissions.submit"
	opGet         = "submissions.get"
	opListForUser = "submissions.list_for_user"
	opListPending = "submissions.list_pending"

	defaultPendingLimit = 100
)

// TaskLookup resolves tasks referenced by submissions.
type TaskLookup interface {
	Get(ctx context.Context, taskID string) (tasks.Task, error)
}

// ServiceConfig describes the dependencies of the submission service.
type ServiceConfig struct {
	Database   *gorm.DB
	Tasks      TaskLookup
	Blobs      blobstore.Store
	Clock      func() time.Time
	IDProvider ids.Provider
	Validator  *validation.Validator
	Logger     *zap.Logger
}

// Service records ambassador submissions.
type Service struct {
	db         *gorm.DB
	tasks      TaskLookup
	blobs      blobstore.Store
	clock      func() time.Time
	idProvider ids.Provider
	validator  *validation.Validator
	logger     *zap.Logger
}

// NewService constructs the submission service. A nil blob store disables proof uploads.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New("submissions.service.new", "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperrors.New("submissions.service.new", "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Tasks == nil {
		return nil, apperrors.New("submissions.service.new", "missing_tasks", errMissingTasks)
	}
	blobs := cfg.Blobs
	if blobs == nil {
		blobs = blobstore.Disabled{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validation.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		tasks:      cfg.Tasks,
		blobs:      blobs,
		clock:      clock,
		idProvider: cfg.IDProvider,
		validator:  validator,
		logger:     logger,
	}, nil
}

// SubmitRequest is an ambassador's claim against a task, with an optional proof file.
type SubmitRequest struct {
	UserID string    `json:"user_id" validate:"required,max=190"`
	TaskID string    `json:"task_id" validate:"required,max=190"`
	Note   string    `json:"note" validate:"max=5000"`
	Proof  io.Reader `json:"-" validate:"-"`
}

// Submit records a new unreviewed submission. The proof, when present, is uploaded
// before the row is written so the stored URL is always durable.
func (s *Service) Submit(ctx context.Context, request SubmitRequest) (Submission, error) {
	request.UserID = strings.TrimSpace(request.UserID)
	request.TaskID = strings.TrimSpace(request.TaskID)
	if err := s.validator.Validate(request); err != nil {
		return Submission{}, apperrors.New(opSubmit, "invalid_submission", err)
	}

	task, err := s.tasks.Get(ctx, request.TaskID)
	if err != nil {
		return Submission{}, apperrors.New(opSubmit, "task_lookup_failed", err)
	}
	now := s.clock().UTC()
	if !task.AcceptsSubmissionsAt(now) {
		return Submission{}, apperrors.New(opSubmit, "task_closed", ErrTaskClosed)
	}

	submissionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmit, "id_generation_failed", err)
		return Submission{}, apperrors.New(opSubmit, "id_generation_failed", err)
	}

	submission := Submission{
		SubmissionID: submissionID,
		UserID:       request.UserID,
		TaskID:       request.TaskID,
		Note:         request.Note,
		CreatedAt:    now,
	}

	if request.Proof != nil {
		path := fmt.Sprintf("submissions/%s/%s", request.UserID, submissionID)
		url, err := s.blobs.Upload(ctx, path, request.Proof)
		if err != nil {
			if errors.Is(err, blobstore.ErrUploadsDisabled) {
				return Submission{}, apperrors.New(opSubmit, "uploads_disabled", err)
			}
			s.logError(opSubmit, "proof_upload_failed", err,
				zap.String("user_id", request.UserID),
				zap.String("submission_id", submissionID))
			return Submission{}, apperrors.New(opSubmit, "proof_upload_failed", err)
		}
		submission.ProofURL = url
	}

	if err := s.db.WithContext(ctx).Create(&submission).Error; err != nil {
		s.logError(opSubmit, "insert_failed", err,
			zap.String("user_id", request.UserID),
			zap.String("submission_id", submissionID),
			zap.String("proof_url", submission.ProofURL))
		return Submission{}, apperrors.New(opSubmit, "insert_failed", err)
	}
	return submission, nil
}

// Get loads one submission.
func (s *Service) Get(ctx context.Context, submissionID string) (Submission, error) {
	var submission Submission
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).Take(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Submission{}, apperrors.New(opGet, "not_found", ErrSubmissionNotFound)
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("submission_id", submissionID))
		return Submission{}, apperrors.New(opGet, "select_failed", err)
	}
	return submission, nil
}

// ListForUser returns the user's submissions, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Submission, error) {
	var submissions []Submission
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("submission_id DESC").
		Find(&submissions).Error; err != nil {
		s.logError(opListForUser, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opListForUser, "query_failed", err)
	}
	return submissions, nil
}

// ListPending returns unreviewed submissions, oldest first, for the review queue.
func (s *Service) ListPending(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 || limit > defaultPendingLimit {
		limit = defaultPendingLimit
	}
	var submissions []Submission
	if err := s.db.WithContext(ctx).
		Where("reviewed = ?", false).
		Order("created_at ASC").
		Order("submission_id ASC").
		Limit(limit).
		Find(&submissions).Error; err != nil {
		s.logError(opListPending, "query_failed", err)
		return nil, apperrors.New(opListPending, "query_failed", err)
	}
	return submissions, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("submissions service error", attrs...)
}
