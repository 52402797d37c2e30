package submissions

import "time"

// Submission is one ambassador's claim of work against a task. AwardedPoints
// stays nil until a reviewer awards it; the same (user, task) pair may be
// submitted more than once.
type Submission struct {
	SubmissionID  string     `gorm:"column:submission_id;primaryKey;size:190;not null" json:"submission_id"`
	UserID        string     `gorm:"column:user_id;size:190;not null;index:idx_submissions_user_task,priority:1" json:"user_id"`
	TaskID        string     `gorm:"column:task_id;size:190;not null;index:idx_submissions_user_task,priority:2" json:"task_id"`
	ProofURL      string     `gorm:"column:proof_url;size:1024" json:"proof_url,omitempty"`
	Note          string     `gorm:"column:note;type:text" json:"note,omitempty"`
	AwardedPoints *int64     `gorm:"column:awarded_points" json:"awarded_points"`
	Reviewed      bool       `gorm:"column:reviewed;not null;default:false;index:idx_submissions_reviewed_created,priority:1" json:"reviewed"`
	ReviewedBy    string     `gorm:"column:reviewed_by;size:320" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_submissions_reviewed_created,priority:2" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}

// PreviousAward returns the awarded value, treating a never-reviewed submission as 0.
func (s Submission) PreviousAward() int64 {
	if s.AwardedPoints == nil {
		return 0
	}
	return *s.AwardedPoints
}
