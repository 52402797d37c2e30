package points

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AwardRequest sets the awarded value of one submission.
type AwardRequest struct {
	SubmissionID string `json:"submission_id" validate:"required,max=190"`
	UserID       string `json:"user_id" validate:"required,max=190"`
	Points       int64  `json:"points" validate:"gte=0"`
	ReviewerID   string `json:"reviewer_id" validate:"required,max=320"`
}

// AwardResult reports the committed state after an award.
type AwardResult struct {
	Submission     submissions.Submission `json:"submission"`
	PreviousPoints int64                  `json:"previous_points"`
	Delta          int64                  `json:"delta"`
	UserPoints     int64                  `json:"user_points"`
}

// Award replaces the submission's awarded value and applies the difference to
// the owner's total. Both rows are locked and written in one transaction, so the
// total always equals the sum of awarded values when no other writer touches it.
func (s *Service) Award(ctx context.Context, request AwardRequest) (AwardResult, error) {
	request.SubmissionID = strings.TrimSpace(request.SubmissionID)
	request.UserID = strings.TrimSpace(request.UserID)
	request.ReviewerID = strings.TrimSpace(request.ReviewerID)
	if err := s.validator.Validate(request); err != nil {
		return AwardResult{}, apperrors.New(opAward, "invalid_request", err)
	}

	fields := []zap.Field{
		zap.String("submission_id", request.SubmissionID),
		zap.String("user_id", request.UserID),
	}

	var result AwardResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission submissions.Submission
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("submission_id = ?", request.SubmissionID).
			Take(&submission).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(opAward, "submission_not_found", submissions.ErrSubmissionNotFound)
		}
		if err != nil {
			s.logError(opAward, "submission_select_failed", err, fields...)
			return apperrors.New(opAward, "submission_select_failed", err)
		}
		if submission.UserID != request.UserID {
			return apperrors.New(opAward, "user_mismatch", ErrSubmissionUserMismatch)
		}

		var task tasks.Task
		err = tx.Where("task_id = ?", submission.TaskID).Take(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(opAward, "task_not_found", tasks.ErrTaskNotFound)
		}
		if err != nil {
			s.logError(opAward, "task_select_failed", err, fields...)
			return apperrors.New(opAward, "task_select_failed", err)
		}
		if request.Points > task.MaxPoints {
			return apperrors.New(opAward, "out_of_range", ErrPointsOutOfRange)
		}

		var profile users.Profile
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", request.UserID).
			Take(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(opAward, "profile_not_found", users.ErrProfileNotFound)
		}
		if err != nil {
			s.logError(opAward, "profile_select_failed", err, fields...)
			return apperrors.New(opAward, "profile_select_failed", err)
		}

		previous := submission.PreviousAward()
		delta := request.Points - previous
		if profile.Points+delta < 0 {
			return apperrors.New(opAward, "negative_total", ErrNegativeTotal)
		}

		reviewedAt := s.clock().UTC()
		awarded := request.Points
		if err := tx.Model(&submissions.Submission{}).
			Where("submission_id = ?", submission.SubmissionID).
			Updates(map[string]any{
				"awarded_points": awarded,
				"reviewed":       true,
				"reviewed_by":    request.ReviewerID,
				"reviewed_at":    reviewedAt,
			}).Error; err != nil {
			s.logError(opAward, "submission_update_failed", err, fields...)
			return apperrors.New(opAward, "submission_update_failed", err)
		}

		update := tx.Model(&users.Profile{}).
			Where("user_id = ?", request.UserID).
			Updates(map[string]any{
				"points":     gorm.Expr("points + ?", delta),
				"updated_at": reviewedAt,
			})
		if update.Error != nil {
			s.logError(opAward, "profile_update_failed", update.Error, fields...)
			return apperrors.New(opAward, "profile_update_failed", update.Error)
		}
		if update.RowsAffected == 0 {
			return apperrors.New(opAward, "profile_not_found", users.ErrProfileNotFound)
		}

		submission.AwardedPoints = &awarded
		submission.Reviewed = true
		submission.ReviewedBy = request.ReviewerID
		submission.ReviewedAt = &reviewedAt
		result = AwardResult{
			Submission:     submission,
			PreviousPoints: previous,
			Delta:          delta,
			UserPoints:     profile.Points + delta,
		}
		return nil
	})
	if txErr != nil {
		if apperrors.CodeOf(txErr) == "" {
			s.logError(opAward, "transaction_failed", txErr, fields...)
			return AwardResult{}, apperrors.New(opAward, "transaction_failed", txErr)
		}
		return AwardResult{}, txErr
	}

	if err := s.snapshots.Invalidate(ctx); err != nil {
		s.logError(opAward, "snapshot_invalidate_failed", err, fields...)
	}
	s.publisher.PointsAwarded(request.UserID, request.SubmissionID, result.UserPoints)
	return result, nil
}
