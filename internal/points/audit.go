package points

import (
	"context"

	"github.com/MarcoPoloResearchLab/ambassador/internal/apperrors"
	"go.uber.org/zap"
)

// Drift is a user whose stored total disagrees with the sum of their reviewed awards.
type Drift struct {
	UserID        string `gorm:"column:user_id" json:"user_id"`
	ProfilePoints int64  `gorm:"column:profile_points" json:"profile_points"`
	AwardedSum    int64  `gorm:"column:awarded_sum" json:"awarded_sum"`
}

// Audit lists every drifting user. It only reports; totals are never repaired here.
func (s *Service) Audit(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := s.db.WithContext(ctx).
		Table("user_profiles AS p").
		Select("p.user_id AS user_id, p.points AS profile_points, COALESCE(SUM(s.awarded_points), 0) AS awarded_sum").
		Joins("LEFT JOIN submissions AS s ON s.user_id = p.user_id AND s.reviewed = ?", true).
		Group("p.user_id, p.points").
		Having("p.points <> COALESCE(SUM(s.awarded_points), 0)").
		Order("p.user_id ASC").
		Scan(&drifts).Error
	if err != nil {
		s.logError(opAudit, "query_failed", err)
		return nil, apperrors.New(opAudit, "query_failed", err)
	}
	if len(drifts) > 0 {
		s.logger.Warn("point totals drifted from awarded sums", zap.Int("users", len(drifts)))
	}
	return drifts, nil
}
