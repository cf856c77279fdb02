package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Teacher represents an instructor available for subject allocation.
type Teacher struct {
	MISID              string         `db:"mis_id" json:"mis_id"`
	Name               string         `db:"name" json:"name"`
	Email              string         `db:"email" json:"email"`
	Designation        string         `db:"designation" json:"designation"`
	SubjectPreferences pq.StringArray `db:"subject_preferences" json:"subject_preferences"`
	MaxHours           int            `db:"max_hours" json:"max_hours"`
	Shift              string         `db:"shift" json:"shift"`
	PreferredShift     string         `db:"preferred_shift" json:"preferred_shift"`
	Position           int            `db:"position" json:"-"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Prefers reports whether the subject code is listed in the teacher preferences.
// Codes are case-sensitive keys and must match exactly.
func (t Teacher) Prefers(subjectCode string) bool {
	for _, code := range t.SubjectPreferences {
		if code == subjectCode {
			return true
		}
	}
	return false
}

// NormalizePreferences trims stray whitespace from ingested codes and drops blanks.
func (t *Teacher) NormalizePreferences() {
	codes := make(pq.StringArray, 0, len(t.SubjectPreferences))
	for _, code := range t.SubjectPreferences {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	t.SubjectPreferences = codes
}

// DisplayName falls back to the MIS id when no name was ingested.
func (t Teacher) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.MISID
}
