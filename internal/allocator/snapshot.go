package allocator

import "github.com/noah-isme/timetable-allocator/internal/models"

// PairingSnapshot is the exported room allocation of a batch-subject pairing.
type PairingSnapshot struct {
	BatchKey    string           `json:"batch_key"`
	SubjectCode string           `json:"subject_code"`
	TeacherID   *string          `json:"teacher_id"`
	RoomID      *string          `json:"room_id"`
	Mode        models.BatchMode `json:"mode"`
}

// Snapshot is the plain export of both allocators, ready for persistence or dispatch.
type Snapshot struct {
	Subjects        []SubjectAllocation `json:"subjects"`
	Pairings        []PairingSnapshot   `json:"pairings"`
	TeacherProgress Progress            `json:"teacher_progress"`
	RoomProgress    Progress            `json:"room_progress"`
	Conflicts       []Conflict          `json:"conflicts"`
}

// Snapshot exports every pairing with a nil room when none is recorded.
func (a *RoomBatchAllocator) Snapshot() []PairingSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *RoomBatchAllocator) snapshotLocked() []PairingSnapshot {
	out := make([]PairingSnapshot, 0, len(a.order))
	for _, key := range a.order {
		p := a.pairings[key]
		out = append(out, PairingSnapshot{
			BatchKey:    p.BatchKey,
			SubjectCode: p.SubjectCode,
			TeacherID:   optional(p.TeacherID),
			RoomID:      optional(p.RoomID),
			Mode:        p.Mode,
		})
	}
	return out
}

// Finalize combines the teacher and room allocations into one snapshot.
// Each allocator is read under a single read lock so its views agree.
func Finalize(teachers *TeacherLoadAllocator, rooms *RoomBatchAllocator) Snapshot {
	var snapshot Snapshot

	teachers.mu.RLock()
	snapshot.Subjects = teachers.snapshotLocked()
	snapshot.TeacherProgress = teachers.progressLocked()
	teachers.mu.RUnlock()

	rooms.mu.RLock()
	snapshot.Pairings = rooms.snapshotLocked()
	snapshot.RoomProgress = rooms.progressLocked()
	snapshot.Conflicts = rooms.conflicts.list()
	rooms.mu.RUnlock()

	return snapshot
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
