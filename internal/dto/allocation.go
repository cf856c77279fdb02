package dto

import (
	"time"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/models"
)

// AssignTeacherRequest assigns a teacher to a subject. Hours of zero fall back to the subject default;
// one teacher takes at most 4 hours of a subject.
type AssignTeacherRequest struct {
	SubjectCode string `json:"subject_code" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
	Hours       int    `json:"hours" validate:"min=0,max=4"`
}

// TeacherSubjectRequest identifies one teacher on one subject.
type TeacherSubjectRequest struct {
	SubjectCode string `json:"subject_code" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
}

// SetModeRequest changes the batching mode of a pairing.
type SetModeRequest struct {
	BatchKey    string `json:"batch_key" validate:"required"`
	SubjectCode string `json:"subject_code" validate:"required"`
	Mode        string `json:"mode" validate:"required,oneof=combined separate"`
}

// AssignRoomRequest records a room for a pairing.
type AssignRoomRequest struct {
	BatchKey    string `json:"batch_key" validate:"required"`
	SubjectCode string `json:"subject_code" validate:"required"`
	RoomID      string `json:"room_id" validate:"required"`
}

// FinalizeRequest persists the current session as a versioned snapshot.
type FinalizeRequest struct {
	Dispatch bool   `json:"dispatch"`
	Note     string `json:"note" validate:"max=500"`
}

// ExportRequest selects the rendering of a finalized snapshot.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ReloadRosterRequest narrows a reload to one semester. Zero loads everything.
type ReloadRosterRequest struct {
	Semester int `json:"semester" validate:"min=0,max=12"`
}

// AssignRoomResponse reports the stored room and an optional soft conflict.
type AssignRoomResponse struct {
	Pairing  allocator.BatchAssignment `json:"pairing"`
	Conflict *allocator.Conflict       `json:"conflict,omitempty"`
}

// TeacherProgressResponse summarises teacher-side completion.
type TeacherProgressResponse struct {
	Progress allocator.Progress `json:"progress"`
}

// RoomProgressResponse summarises room-side completion and conflicts.
type RoomProgressResponse struct {
	Progress  allocator.Progress    `json:"progress"`
	Conflicts int                   `json:"conflicts"`
	Usage     []allocator.RoomUsage `json:"usage"`
}

// RevalidateResponse lists pairings whose room no longer fits.
type RevalidateResponse struct {
	Issues    []allocator.CapacityIssue `json:"issues"`
	Conflicts []allocator.Conflict      `json:"conflicts"`
}

// FinalizeResponse describes the persisted snapshot.
type FinalizeResponse struct {
	Snapshot   models.AllocationSnapshot `json:"snapshot"`
	Dispatched bool                      `json:"dispatched"`
	JobID      string                    `json:"job_id,omitempty"`
}

// ExportResponse returns the signed download location of a rendered export.
type ExportResponse struct {
	ExportID  string    `json:"export_id"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RosterSummary counts what the active session was built from.
type RosterSummary struct {
	Teachers int       `json:"teachers"`
	Subjects int       `json:"subjects"`
	Rooms    int       `json:"rooms"`
	Batches  int       `json:"batches"`
	Semester int       `json:"semester"`
	LoadedAt time.Time `json:"loaded_at"`
	Cached   bool      `json:"cached"`
}
