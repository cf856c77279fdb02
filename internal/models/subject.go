package models

import "time"

// Subject represents an academic subject that needs teaching hours.
type Subject struct {
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Department  string    `db:"department" json:"department"`
	Semester    int       `db:"semester" json:"semester"`
	WeeklyLoad  string    `db:"weekly_load" json:"weekly_load"`
	TotalHours  int       `db:"total_hours" json:"total_hours"`
	RequiresLab bool      `db:"requires_lab" json:"requires_lab"`
	Position    int       `db:"position" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName falls back to the subject code.
func (s Subject) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Code
}

// DefaultBatchMode returns the batching mode a fresh pairing starts with.
func (s Subject) DefaultBatchMode() BatchMode {
	if s.RequiresLab {
		return BatchModeSeparate
	}
	return BatchModeCombined
}
