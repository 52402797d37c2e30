package tasks

import "time"

// Task is a unit of ambassador work. MaxPoints bounds what a reviewer may award
// for one submission against the task.
type Task struct {
	TaskID      string     `gorm:"column:task_id;primaryKey;size:190;not null" json:"task_id"`
	Title       string     `gorm:"column:title;size:200;not null" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	MaxPoints   int64      `gorm:"column:max_points;not null" json:"max_points"`
	Deadline    *time.Time `gorm:"column:deadline" json:"deadline,omitempty"`
	Active      bool       `gorm:"column:active;not null;default:true;index" json:"active"`
	CreatedBy   string     `gorm:"column:created_by;size:320" json:"created_by,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "tasks"
}

// AcceptsSubmissionsAt reports whether the task is open at the given instant.
func (t Task) AcceptsSubmissionsAt(at time.Time) bool {
	if !t.Active {
		return false
	}
	return t.Deadline == nil || !at.After(*t.Deadline)
}
