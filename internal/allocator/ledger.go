package allocator

import "math"

// HeldSubject is a subject a teacher currently holds and the hours it costs.
type HeldSubject struct {
	SubjectCode string `json:"subject_code"`
	Hours       int    `json:"hours"`
}

// Workload is the hour bookkeeping of a single teacher.
type Workload struct {
	TeacherID string        `json:"teacher_id"`
	MaxHours  int           `json:"max_hours"`
	Assigned  int           `json:"assigned"`
	Remaining int           `json:"remaining"`
	Subjects  []HeldSubject `json:"subjects"`
}

// hourLedger is the only place teacher hours are moved between remaining and assigned.
type hourLedger struct {
	order    []string
	capacity map[string]int
	assigned map[string]int
	held     map[string][]HeldSubject
}

func newHourLedger() *hourLedger {
	return &hourLedger{
		capacity: make(map[string]int),
		assigned: make(map[string]int),
		held:     make(map[string][]HeldSubject),
	}
}

func (l *hourLedger) register(owner string, capacity int) {
	if _, ok := l.capacity[owner]; !ok {
		l.order = append(l.order, owner)
	}
	if capacity < 0 {
		capacity = 0
	}
	l.capacity[owner] = capacity
}

func (l *hourLedger) remaining(owner string) int {
	return l.capacity[owner] - l.assigned[owner]
}

// reserve moves hours from remaining to assigned. It never lets remaining go negative.
func (l *hourLedger) reserve(owner, item string, hours int) bool {
	if hours > l.remaining(owner) {
		return false
	}
	l.assigned[owner] += hours
	l.held[owner] = append(dropHeld(l.held[owner], item), HeldSubject{SubjectCode: item, Hours: hours})
	return true
}

// release gives back exactly the hours recorded for the assignment.
func (l *hourLedger) release(owner, item string, hours int) {
	l.assigned[owner] -= hours
	if l.assigned[owner] < 0 {
		l.assigned[owner] = 0
	}
	l.held[owner] = dropHeld(l.held[owner], item)
}

func (l *hourLedger) reset() {
	for _, owner := range l.order {
		l.assigned[owner] = 0
		l.held[owner] = nil
	}
}

func (l *hourLedger) workload(owner string) Workload {
	held := make([]HeldSubject, len(l.held[owner]))
	copy(held, l.held[owner])
	return Workload{
		TeacherID: owner,
		MaxHours:  l.capacity[owner],
		Assigned:  l.assigned[owner],
		Remaining: l.remaining(owner),
		Subjects:  held,
	}
}

func dropHeld(items []HeldSubject, code string) []HeldSubject {
	out := items[:0]
	for _, item := range items {
		if item.SubjectCode != code {
			out = append(out, item)
		}
	}
	return out
}

// ConflictReason classifies a soft allocation conflict.
type ConflictReason string

const ConflictRoomTypeMismatch ConflictReason = "room_type_mismatch"

// Conflict tags a batch-subject-room triple that was accepted but is not a clean fit.
type Conflict struct {
	BatchKey    string         `json:"batch_key"`
	SubjectCode string         `json:"subject_code"`
	RoomID      string         `json:"room_id"`
	Reason      ConflictReason `json:"reason"`
	Message     string         `json:"message"`
}

// conflictSet keeps at most one active conflict per pairing, in insertion order.
type conflictSet struct {
	items []Conflict
}

func (s *conflictSet) replace(c Conflict) {
	s.purge(c.BatchKey, c.SubjectCode)
	s.items = append(s.items, c)
}

func (s *conflictSet) purge(batchKey, subjectCode string) {
	out := s.items[:0]
	for _, c := range s.items {
		if c.BatchKey == batchKey && c.SubjectCode == subjectCode {
			continue
		}
		out = append(out, c)
	}
	s.items = out
}

func (s *conflictSet) clear() {
	s.items = nil
}

func (s *conflictSet) list() []Conflict {
	out := make([]Conflict, len(s.items))
	copy(out, s.items)
	return out
}

// Progress reports how many items hold a valid allocation.
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

func newProgress(completed, total int) Progress {
	p := Progress{Completed: completed, Total: total}
	if total > 0 {
		p.Percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return p
}
