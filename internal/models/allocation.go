package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// BatchMode controls whether a batch attends a subject together or split.
type BatchMode string

const (
	BatchModeCombined BatchMode = "combined"
	BatchModeSeparate BatchMode = "separate"
)

// Valid reports whether the mode is a known value.
func (m BatchMode) Valid() bool {
	return m == BatchModeCombined || m == BatchModeSeparate
}

// AllocationSnapshotStatus represents lifecycle phases for finalized allocations.
type AllocationSnapshotStatus string

const (
	AllocationSnapshotStatusFinalized  AllocationSnapshotStatus = "FINALIZED"
	AllocationSnapshotStatusDispatched AllocationSnapshotStatus = "DISPATCHED"
	AllocationSnapshotStatusFailed     AllocationSnapshotStatus = "DISPATCH_FAILED"
)

// AllocationSnapshot is a versioned, persisted copy of a finalized allocation.
type AllocationSnapshot struct {
	ID              string                   `db:"id" json:"id"`
	Version         int                      `db:"version" json:"version"`
	Status          AllocationSnapshotStatus `db:"status" json:"status"`
	TeacherProgress int                      `db:"teacher_progress" json:"teacher_progress"`
	RoomProgress    int                      `db:"room_progress" json:"room_progress"`
	ConflictCount   int                      `db:"conflict_count" json:"conflict_count"`
	Meta            types.JSONText           `db:"meta" json:"meta"`
	CreatedBy       string                   `db:"created_by" json:"created_by"`
	CreatedAt       time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                `db:"updated_at" json:"updated_at"`
}

// SubjectTeacherAssignment is a persisted teacher-subject allocation row.
type SubjectTeacherAssignment struct {
	SnapshotID  string `db:"snapshot_id" json:"snapshot_id"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	Hours       int    `db:"hours" json:"hours"`
	IsPriority  bool   `db:"is_priority" json:"is_priority"`
	IsPrimary   bool   `db:"is_primary" json:"is_primary"`
	Position    int    `db:"position" json:"position"`
}

// BatchRoomAssignment is a persisted room allocation row for a batch-subject pairing.
type BatchRoomAssignment struct {
	SnapshotID  string    `db:"snapshot_id" json:"snapshot_id"`
	BatchKey    string    `db:"batch_key" json:"batch_key"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomID      *string   `db:"room_id" json:"room_id,omitempty"`
	Mode        BatchMode `db:"mode" json:"mode"`
	Position    int       `db:"position" json:"position"`
}

// AllocationSnapshotDetail aggregates a snapshot with its rows.
type AllocationSnapshotDetail struct {
	AllocationSnapshot
	Subjects []SubjectTeacherAssignment `json:"subjects"`
	Pairings []BatchRoomAssignment      `json:"pairings"`
}
