package users

import (
	"strings"
	"time"
)

// Profile is the per-ambassador record holding the point total and the
// materialized rank. Points change only through point awards; Rank only
// through rank materialization.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"user_id"`
	Email       string    `gorm:"column:email;size:320" json:"email"`
	DisplayName string    `gorm:"column:display_name;size:320" json:"display_name"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512" json:"avatar_url,omitempty"`
	Phone       string    `gorm:"column:phone;size:32" json:"phone,omitempty"`
	College     string    `gorm:"column:college;size:190" json:"college,omitempty"`
	Points      int64     `gorm:"column:points;not null;default:0;index:idx_profiles_points_created,priority:1" json:"points"`
	Rank        int64     `gorm:"column:cached_rank;not null;default:0" json:"rank"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index:idx_profiles_points_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing ambassador profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
