package points

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPointsOutOfRange is returned when the requested value exceeds the task maximum.
	ErrPointsOutOfRange = errors.New("points: awarded value outside task range")
	// ErrSubmissionUserMismatch is returned when the submission belongs to another user.
	ErrSubmissionUserMismatch = errors.New("points: submission does not belong to user")
	// ErrNegativeTotal is returned when applying the delta would leave the user below zero.
	ErrNegativeTotal   = errors.New("points: total would become negative")
	errMissingDatabase = errors.New("points: database handle is required")
)

const (
	opAward = "points.award"
	opAudit = "points.audit"
)

// SnapshotInvalidator drops cached leaderboard views after totals change.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Publisher notifies connected clients of a committed award.
type Publisher interface {
	PointsAwarded(userID, submissionID string, userPoints int64)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context) error { return nil }

type noopPublisher struct{}

func (noopPublisher) PointsAwarded(string, string, int64) {}

// ServiceConfig describes the dependencies of the points service.
type ServiceConfig struct {
	Database  *gorm.DB
	Snapshots SnapshotInvalidator
	Publisher Publisher
	Clock     func() time.Time
	Validator *validation.Validator
	Logger    *zap.Logger
}

// Service owns every write to user point totals.
type Service struct {
	db        *gorm.DB
	snapshots SnapshotInvalidator
	publisher Publisher
	clock     func() time.Time
	validator *validation.Validator
	logger    *zap.Logger
}

// NewService constructs the points service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New("points.service.new", "missing_database", errMissingDatabase)
	}
	var snapshots SnapshotInvalidator = noopInvalidator{}
	if cfg.Snapshots != nil {
		snapshots = cfg.Snapshots
	}
	var publisher Publisher = noopPublisher{}
	if cfg.Publisher != nil {
		publisher = cfg.Publisher
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
		snapshots: snapshots,
		publisher: publisher,
		clock:     clock,
		validator: validator,
		logger:    logger,
	}, nil
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
	s.logger.Error("points service error", attrs...)
}
