package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/ids"
	"github.com/MarcoPoloResearchLab/ambassador/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrTaskNotFound is returned when no task matches the identifier.
	ErrTaskNotFound      = errors.New("tasks: task not found")
	errMissingDatabase   = errors.New("tasks: database handle is required")
	errMissingIDProvider = errors.New("tasks: id provider is required")
)

const (
	opCreate     = "tasks.create"
	opGet        = "tasks.get"
	opListActive = "tasks.list_active"
)

// ServiceConfig describes the dependencies of the task service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Validator  *validation.Validator
	Logger     *zap.Logger
}

// Service manages the task catalog.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	validator  *validation.Validator
	logger     *zap.Logger
}

// NewService constructs the task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New("tasks.service.new", "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperrors.New("tasks.service.new", "missing_id_provider", errMissingIDProvider)
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
		clock:      clock,
		idProvider: cfg.IDProvider,
		validator:  validator,
		logger:     logger,
	}, nil
}

// CreateRequest describes a new task.
type CreateRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	MaxPoints   int64      `json:"max_points" validate:"gte=1,lte=100000"`
	Deadline    *time.Time `json:"deadline"`
	CreatedBy   string     `json:"-"`
}

// Create stores a new active task.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Task, error) {
	if err := s.validator.Validate(request); err != nil {
		return Task{}, apperrors.New(opCreate, "invalid_task", err)
	}
	taskID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Task{}, apperrors.New(opCreate, "id_generation_failed", err)
	}
	task := Task{
		TaskID:      taskID,
		Title:       request.Title,
		Description: request.Description,
		MaxPoints:   request.MaxPoints,
		Deadline:    request.Deadline,
		Active:      true,
		CreatedBy:   request.CreatedBy,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("task_id", taskID))
		return Task{}, apperrors.New(opCreate, "insert_failed", err)
	}
	return task, nil
}

// Get loads one task, active or not.
func (s *Service) Get(ctx context.Context, taskID string) (Task, error) {
	var task Task
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, apperrors.New(opGet, "not_found", ErrTaskNotFound)
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("task_id", taskID))
		return Task{}, apperrors.New(opGet, "select_failed", err)
	}
	return task, nil
}

// ListActive returns active tasks, newest first.
func (s *Service) ListActive(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		s.logError(opListActive, "query_failed", err)
		return nil, apperrors.New(opListActive, "query_failed", err)
	}
	return tasks, nil
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
	s.logger.Error("tasks service error", attrs...)
}
