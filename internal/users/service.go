package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/auth"
	"github.com/MarcoPoloResearchLab/ambassador/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound is returned when no profile exists for the user id.
	ErrProfileNotFound = errors.New("users: profile not found")
	errMissingDatabase = errors.New("users: database connection required")
)

const (
	opEnsureProfile = "users.ensure_profile"
	opGetProfile    = "users.get_profile"
	opUpdateContact = "users.update_contact"
)

// ServiceConfig describes the dependencies required for profile management.
type ServiceConfig struct {
	Database  *gorm.DB
	Clock     func() time.Time
	Validator *validation.Validator
	Logger    *zap.Logger
}

// Service manages ambassador profiles.
type Service struct {
	db        *gorm.DB
	now       func() time.Time
	validator *validation.Validator
	logger    *zap.Logger
	known     sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New("users.service.new", "missing_database", errMissingDatabase)
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
		db:        cfg.Database,
		now:       clock,
		validator: validator,
		logger:    logger,
	}, nil
}

// EnsureProfile returns the canonical user id for the session claims, creating
// the profile on first authentication. A new profile starts with zero points
// and the competition rank a zero-point user holds right now.
func (s *Service) EnsureProfile(ctx context.Context, claims auth.SessionClaims) (string, error) {
	userID := canonicalUserID(claims)
	if userID == "" {
		return "", ErrInvalidIdentity
	}
	if _, ok := s.known.Load(userID); ok {
		return userID, nil
	}

	db := s.db.WithContext(ctx)
	var profile Profile
	err := db.Where("user_id = ?", userID).Take(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		var ahead int64
		if err := db.Model(&Profile{}).Where("points > ?", 0).Count(&ahead).Error; err != nil {
			s.logError(opEnsureProfile, "rank_count_failed", err, zap.String("user_id", userID))
			return "", apperrors.New(opEnsureProfile, "rank_count_failed", err)
		}
		now := s.now().UTC()
		profile = Profile{
			UserID:      userID,
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			AvatarURL:   normalize(claims.UserAvatarURL),
			Rank:        ahead + 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&profile).Error; err != nil {
			s.logError(opEnsureProfile, "insert_failed", err, zap.String("user_id", userID))
			return "", apperrors.New(opEnsureProfile, "insert_failed", err)
		}
		s.logger.Info("ambassador profile created", zap.String("user_id", userID))
	case err != nil:
		s.logError(opEnsureProfile, "select_failed", err, zap.String("user_id", userID))
		return "", apperrors.New(opEnsureProfile, "select_failed", err)
	default:
		updates := map[string]interface{}{}
		if email := normalize(claims.UserEmail); email != "" && email != profile.Email {
			updates["email"] = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != profile.DisplayName {
			updates["display_name"] = display
		}
		if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != profile.AvatarURL {
			updates["avatar_url"] = avatar
		}
		if len(updates) > 0 {
			updates["updated_at"] = s.now().UTC()
			if err := db.Model(&Profile{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
				s.logger.Warn("profile refresh failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	s.known.Store(userID, struct{}{})
	return userID, nil
}

// GetProfile loads the profile for userID.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	userID = normalize(userID)
	if userID == "" {
		return Profile{}, apperrors.New(opGetProfile, "missing_user_id", ErrInvalidIdentity)
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperrors.New(opGetProfile, "not_found", ErrProfileNotFound)
	}
	if err != nil {
		s.logError(opGetProfile, "select_failed", err, zap.String("user_id", userID))
		return Profile{}, apperrors.New(opGetProfile, "select_failed", err)
	}
	return profile, nil
}

// ContactUpdate carries the editable contact fields of a profile.
type ContactUpdate struct {
	Phone   string `json:"phone" validate:"required,e164"`
	College string `json:"college" validate:"max=190"`
}

// UpdateContact validates and stores contact details; invalid input is rejected before any write.
func (s *Service) UpdateContact(ctx context.Context, userID string, update ContactUpdate) (Profile, error) {
	update.Phone = normalize(update.Phone)
	update.College = normalize(update.College)
	if err := s.validator.Validate(update); err != nil {
		return Profile{}, apperrors.New(opUpdateContact, "invalid_contact", err)
	}

	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("user_id = ?", normalize(userID)).
		Updates(map[string]interface{}{
			"phone":      update.Phone,
			"college":    update.College,
			"updated_at": s.now().UTC(),
		})
	if result.Error != nil {
		s.logError(opUpdateContact, "update_failed", result.Error, zap.String("user_id", userID))
		return Profile{}, apperrors.New(opUpdateContact, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Profile{}, apperrors.New(opUpdateContact, "not_found", ErrProfileNotFound)
	}
	return s.GetProfile(ctx, userID)
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
	s.logger.Error("users service error", attrs...)
}

// canonicalUserID keeps the provider-qualified user id intact; "google:123" and
// "github:123" are different people.
func canonicalUserID(claims auth.SessionClaims) string {
	if userID := normalize(claims.UserID); userID != "" {
		return userID
	}
	return normalize(claims.Subject)
}
