package allocator

import (
	"fmt"
	"sync"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

// BatchAssignment is the room allocation state of one batch-subject pairing.
type BatchAssignment struct {
	BatchKey    string           `json:"batch_key"`
	SubjectCode string           `json:"subject_code"`
	TeacherID   string           `json:"teacher_id,omitempty"`
	RoomID      string           `json:"room_id,omitempty"`
	Mode        models.BatchMode `json:"mode"`
}

// HasRoom reports whether a room is recorded on the pairing.
func (b BatchAssignment) HasRoom() bool {
	return b.RoomID != ""
}

// RoomUsage counts the pairings currently placed in a room.
type RoomUsage struct {
	RoomID   string `json:"room_id"`
	Pairings int    `json:"pairings"`
}

// CapacityIssue reports a pairing whose recorded room no longer seats the required occupancy.
type CapacityIssue struct {
	BatchKey    string `json:"batch_key"`
	SubjectCode string `json:"subject_code"`
	RoomID      string `json:"room_id"`
	Capacity    int    `json:"capacity"`
	Required    int    `json:"required"`
}

// RoomAutoAssignResult summarises a bulk room assignment run.
type RoomAutoAssignResult struct {
	Assigned   int          `json:"assigned"`
	Unassigned []PairingKey `json:"unassigned"`
}

// PairingKey identifies a batch-subject pairing.
type PairingKey struct {
	BatchKey    string `json:"batch_key"`
	SubjectCode string `json:"subject_code"`
}

// RoomBatchAllocator places every batch-subject pairing into a room.
type RoomBatchAllocator struct {
	mu        sync.RWMutex
	index     *rosterIndex
	order     []PairingKey
	pairings  map[PairingKey]*BatchAssignment
	conflicts conflictSet
}

// NewRoomBatchAllocator creates one pairing per batch and subject, in roster order,
// each with no room and the subject's default mode.
func NewRoomBatchAllocator(r Roster) *RoomBatchAllocator {
	a := &RoomBatchAllocator{
		index:    newRosterIndex(r),
		pairings: make(map[PairingKey]*BatchAssignment),
	}
	for _, batch := range r.Batches {
		for _, subject := range r.Subjects {
			key := PairingKey{BatchKey: batch.Key, SubjectCode: subject.Code}
			if _, dup := a.pairings[key]; dup {
				continue
			}
			a.order = append(a.order, key)
			a.pairings[key] = &BatchAssignment{
				BatchKey:    batch.Key,
				SubjectCode: subject.Code,
				Mode:        subject.DefaultBatchMode(),
			}
		}
	}
	return a
}

func (a *RoomBatchAllocator) pairing(batchKey, subjectCode string) (*BatchAssignment, error) {
	if _, err := a.index.batch(batchKey); err != nil {
		return nil, err
	}
	if _, err := a.index.subject(subjectCode); err != nil {
		return nil, err
	}
	p, ok := a.pairings[PairingKey{BatchKey: batchKey, SubjectCode: subjectCode}]
	if !ok {
		return nil, &NotFoundError{Entity: "pairing", Key: batchKey + "/" + subjectCode}
	}
	return p, nil
}

// SetMode switches the pairing between combined and separate attendance.
// The recorded room is not re-checked; use Revalidate for that.
func (a *RoomBatchAllocator) SetMode(batchKey, subjectCode string, mode models.BatchMode) (BatchAssignment, error) {
	if !mode.Valid() {
		return BatchAssignment{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.pairing(batchKey, subjectCode)
	if err != nil {
		return BatchAssignment{}, err
	}
	p.Mode = mode
	return *p, nil
}

// AssignRoom records a room on the pairing.
// Insufficient capacity rejects the call with a *CapacityExceededError and leaves
// the pairing untouched. A lab/theory mismatch is accepted and returned as a conflict.
func (a *RoomBatchAllocator) AssignRoom(batchKey, subjectCode, roomID string) (*Conflict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.pairing(batchKey, subjectCode)
	if err != nil {
		return nil, err
	}
	room, err := a.index.room(roomID)
	if err != nil {
		return nil, err
	}
	batch, _ := a.index.batch(batchKey)
	subject, _ := a.index.subject(subjectCode)

	required := requiredCapacity(batch, p.Mode)
	if room.Capacity < required {
		return nil, &CapacityExceededError{
			Kind:      CapacityRoomSeats,
			ID:        room.ID,
			Label:     room.Label(),
			Available: room.Capacity,
			Requested: required,
		}
	}

	p.RoomID = room.ID
	if c, ok := typeConflict(batchKey, subject, room); ok {
		a.conflicts.replace(c)
		return &c, nil
	}
	a.conflicts.purge(batchKey, subjectCode)
	return nil, nil
}

// typeConflict flags a lab subject outside a lab or a theory subject inside one.
func typeConflict(batchKey string, subject models.Subject, room models.Room) (Conflict, bool) {
	var message string
	switch {
	case subject.RequiresLab && !room.IsLab():
		message = fmt.Sprintf("%s requires a lab room but %s is a %s", subject.DisplayName(), room.Label(), room.RoomType)
	case !subject.RequiresLab && room.IsLab():
		message = fmt.Sprintf("%s is a theory subject but %s is a lab room", subject.DisplayName(), room.Label())
	default:
		return Conflict{}, false
	}
	return Conflict{
		BatchKey:    batchKey,
		SubjectCode: subject.Code,
		RoomID:      room.ID,
		Reason:      ConflictRoomTypeMismatch,
		Message:     message,
	}, true
}

// AutoAssignRooms fills every pairing without a room using the smallest room
// that seats the required occupancy and exactly matches the subject's lab need.
// Equal capacities resolve to the earlier room in the roster.
func (a *RoomBatchAllocator) AutoAssignRooms() RoomAutoAssignResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := RoomAutoAssignResult{Unassigned: []PairingKey{}}
	for _, key := range a.order {
		p := a.pairings[key]
		if p.HasRoom() {
			continue
		}
		batch, _ := a.index.batch(key.BatchKey)
		subject, _ := a.index.subject(key.SubjectCode)
		required := requiredCapacity(batch, p.Mode)
		wanted := models.RoomTypeClassroom
		if subject.RequiresLab {
			wanted = models.RoomTypeLab
		}

		best := -1
		for i, room := range a.index.roster.Rooms {
			if room.Capacity < required || room.RoomType != wanted {
				continue
			}
			if best < 0 || room.Capacity < a.index.roster.Rooms[best].Capacity {
				best = i
			}
		}
		if best < 0 {
			result.Unassigned = append(result.Unassigned, key)
			continue
		}
		p.RoomID = a.index.roster.Rooms[best].ID
		a.conflicts.purge(key.BatchKey, key.SubjectCode)
		result.Assigned++
	}
	return result
}

// Reset clears every room, restores default modes and drops all conflicts.
// Teacher references are kept.
func (a *RoomBatchAllocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range a.order {
		p := a.pairings[key]
		subject, _ := a.index.subject(key.SubjectCode)
		p.RoomID = ""
		p.Mode = subject.DefaultBatchMode()
	}
	a.conflicts.clear()
}

// AttachTeachers copies the informational teacher reference onto every pairing
// of each subject. Subjects missing from primary have their reference cleared.
func (a *RoomBatchAllocator) AttachTeachers(primary map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range a.order {
		a.pairings[key].TeacherID = primary[key.SubjectCode]
	}
}

// Revalidate recomputes type conflicts for every pairing holding a room and
// reports pairings whose room is smaller than the occupancy their mode needs.
// Rooms are never removed.
func (a *RoomBatchAllocator) Revalidate() []CapacityIssue {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.conflicts.clear()
	issues := make([]CapacityIssue, 0)
	for _, key := range a.order {
		p := a.pairings[key]
		if !p.HasRoom() {
			continue
		}
		room, err := a.index.room(p.RoomID)
		if err != nil {
			continue
		}
		batch, _ := a.index.batch(key.BatchKey)
		subject, _ := a.index.subject(key.SubjectCode)

		if c, ok := typeConflict(key.BatchKey, subject, room); ok {
			a.conflicts.replace(c)
		}
		if required := requiredCapacity(batch, p.Mode); room.Capacity < required {
			issues = append(issues, CapacityIssue{
				BatchKey:    key.BatchKey,
				SubjectCode: key.SubjectCode,
				RoomID:      room.ID,
				Capacity:    room.Capacity,
				Required:    required,
			})
		}
	}
	return issues
}

// Pairing returns a single pairing.
func (a *RoomBatchAllocator) Pairing(batchKey, subjectCode string) (BatchAssignment, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, err := a.pairing(batchKey, subjectCode)
	if err != nil {
		return BatchAssignment{}, err
	}
	return *p, nil
}

// Pairings returns the BatchAssignment table in batch then subject order.
func (a *RoomBatchAllocator) Pairings() []BatchAssignment {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]BatchAssignment, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.pairings[key])
	}
	return out
}

// Conflicts returns the active conflicts.
func (a *RoomBatchAllocator) Conflicts() []Conflict {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conflicts.list()
}

// RoomUsage counts pairings per room, in roster room order.
func (a *RoomBatchAllocator) RoomUsage() []RoomUsage {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[string]int)
	for _, key := range a.order {
		if p := a.pairings[key]; p.HasRoom() {
			counts[p.RoomID]++
		}
	}
	out := make([]RoomUsage, 0, len(a.index.roster.Rooms))
	for _, room := range a.index.roster.Rooms {
		out = append(out, RoomUsage{RoomID: room.ID, Pairings: counts[room.ID]})
	}
	return out
}

// Progress counts pairings holding both a teacher reference and a room.
func (a *RoomBatchAllocator) Progress() Progress {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.progressLocked()
}

func (a *RoomBatchAllocator) progressLocked() Progress {
	completed := 0
	for _, key := range a.order {
		p := a.pairings[key]
		if p.TeacherID != "" && p.HasRoom() {
			completed++
		}
	}
	return newProgress(completed, len(a.order))
}
