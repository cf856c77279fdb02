package allocator

import (
	"sort"
	"sync"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

// Assignment is one teacher's share of a subject.
type Assignment struct {
	TeacherID  string `json:"teacher_id"`
	Hours      int    `json:"hours"`
	IsPriority bool   `json:"is_priority"`
}

// SubjectAllocation lists the teachers holding a subject, in assignment order.
type SubjectAllocation struct {
	SubjectCode string       `json:"subject_code"`
	Teachers    []Assignment `json:"teachers"`
}

// AutoAssignResult summarises a bulk teacher assignment run.
type AutoAssignResult struct {
	Assignments int      `json:"assignments"`
	Unassigned  []string `json:"unassigned"`
}

// TeacherLoadAllocator assigns teachers to subjects under weekly-hour capacity.
type TeacherLoadAllocator struct {
	mu          sync.RWMutex
	index       *rosterIndex
	assignments map[string][]Assignment
	ledger      *hourLedger
}

// NewTeacherLoadAllocator builds an allocator with every workload empty.
func NewTeacherLoadAllocator(r Roster) *TeacherLoadAllocator {
	a := &TeacherLoadAllocator{
		index:       newRosterIndex(r),
		assignments: make(map[string][]Assignment),
		ledger:      newHourLedger(),
	}
	for _, t := range r.Teachers {
		a.ledger.register(t.MISID, t.MaxHours)
	}
	return a
}

// Assign gives the teacher a share of the subject. A non-positive hours value
// means the default min(subject hours, MaxHoursPerTeacherPerSubject); more than
// MaxHoursPerTeacherPerSubject is rejected.
func (a *TeacherLoadAllocator) Assign(subjectCode, teacherID string, hours int) (Assignment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	subject, err := a.index.subject(subjectCode)
	if err != nil {
		return Assignment{}, err
	}
	teacher, err := a.index.teacher(teacherID)
	if err != nil {
		return Assignment{}, err
	}
	if hours <= 0 {
		hours = hoursPerTeacher(subject)
	}
	if hours > MaxHoursPerTeacherPerSubject {
		return Assignment{}, &CapacityExceededError{
			Kind:      CapacityPerSubjectCap,
			ID:        teacher.MISID,
			Label:     teacher.DisplayName(),
			Available: MaxHoursPerTeacherPerSubject,
			Requested: hours,
		}
	}
	return a.assignLocked(subject, teacher, hours)
}

func (a *TeacherLoadAllocator) assignLocked(subject models.Subject, teacher models.Teacher, hours int) (Assignment, error) {
	if a.holds(subject.Code, teacher.MISID) {
		return Assignment{}, &DuplicateAssignmentError{SubjectCode: subject.Code, TeacherID: teacher.MISID}
	}
	if !a.ledger.reserve(teacher.MISID, subject.Code, hours) {
		return Assignment{}, &CapacityExceededError{
			Kind:      CapacityTeacherHours,
			ID:        teacher.MISID,
			Label:     teacher.DisplayName(),
			Available: a.ledger.remaining(teacher.MISID),
			Requested: hours,
		}
	}
	entry := Assignment{TeacherID: teacher.MISID, Hours: hours}
	a.assignments[subject.Code] = append(a.assignments[subject.Code], entry)
	return entry, nil
}

// Unassign removes the teacher from the subject and restores the recorded hours.
// It reports whether anything was removed.
func (a *TeacherLoadAllocator) Unassign(subjectCode, teacherID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.assignments[subjectCode]
	for i, entry := range list {
		if entry.TeacherID != teacherID {
			continue
		}
		a.ledger.release(teacherID, subjectCode, entry.Hours)
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(a.assignments, subjectCode)
		} else {
			a.assignments[subjectCode] = list
		}
		return true
	}
	return false
}

// TogglePriority flips the priority hint on an existing assignment.
func (a *TeacherLoadAllocator) TogglePriority(subjectCode, teacherID string) (Assignment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.assignments[subjectCode]
	for i := range list {
		if list[i].TeacherID == teacherID {
			list[i].IsPriority = !list[i].IsPriority
			return list[i], true
		}
	}
	return Assignment{}, false
}

// AutoAssign rebuilds every assignment from scratch.
// Subjects are visited in roster order. All preferred teachers with enough
// remaining hours get a share; when none qualifies the single most available
// teacher is used instead.
func (a *TeacherLoadAllocator) AutoAssign() AutoAssignResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked()
	result := AutoAssignResult{Unassigned: []string{}}

	for _, subject := range a.index.roster.Subjects {
		hours := hoursPerTeacher(subject)
		made := 0

		preferred := make([]models.Teacher, 0)
		for _, teacher := range a.index.roster.Teachers {
			if teacher.Prefers(subject.Code) {
				preferred = append(preferred, teacher)
			}
		}
		a.sortByRemaining(preferred)
		for _, teacher := range preferred {
			if a.ledger.remaining(teacher.MISID) < hours {
				continue
			}
			if _, err := a.assignLocked(subject, teacher, hours); err == nil {
				made++
			}
		}

		if made == 0 {
			available := make([]models.Teacher, 0)
			for _, teacher := range a.index.roster.Teachers {
				if a.ledger.remaining(teacher.MISID) >= hours {
					available = append(available, teacher)
				}
			}
			a.sortByRemaining(available)
			for _, teacher := range available {
				if _, err := a.assignLocked(subject, teacher, hours); err == nil {
					made++
					break
				}
			}
		}

		result.Assignments += made
		if made == 0 {
			result.Unassigned = append(result.Unassigned, subject.Code)
		}
	}
	return result
}

func (a *TeacherLoadAllocator) sortByRemaining(teachers []models.Teacher) {
	sort.SliceStable(teachers, func(i, j int) bool {
		return a.ledger.remaining(teachers[i].MISID) > a.ledger.remaining(teachers[j].MISID)
	})
}

// Reset clears every assignment and restores all workloads to full capacity.
func (a *TeacherLoadAllocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *TeacherLoadAllocator) resetLocked() {
	a.assignments = make(map[string][]Assignment)
	a.ledger.reset()
}

func (a *TeacherLoadAllocator) holds(subjectCode, teacherID string) bool {
	for _, entry := range a.assignments[subjectCode] {
		if entry.TeacherID == teacherID {
			return true
		}
	}
	return false
}

// SubjectAssignments returns the teachers assigned to a subject.
func (a *TeacherLoadAllocator) SubjectAssignments(subjectCode string) []Assignment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyAssignments(a.assignments[subjectCode])
}

// Assignments returns every non-empty subject allocation in roster order.
func (a *TeacherLoadAllocator) Assignments() []SubjectAllocation {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]SubjectAllocation, 0, len(a.assignments))
	for _, subject := range a.index.roster.Subjects {
		list, ok := a.assignments[subject.Code]
		if !ok {
			continue
		}
		out = append(out, SubjectAllocation{SubjectCode: subject.Code, Teachers: copyAssignments(list)})
	}
	return out
}

// Workloads returns the workload table in roster order.
func (a *TeacherLoadAllocator) Workloads() []Workload {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Workload, 0, len(a.ledger.order))
	for _, owner := range a.ledger.order {
		out = append(out, a.ledger.workload(owner))
	}
	return out
}

// Workload returns a single teacher workload.
func (a *TeacherLoadAllocator) Workload(teacherID string) (Workload, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, err := a.index.teacher(teacherID); err != nil {
		return Workload{}, err
	}
	return a.ledger.workload(teacherID), nil
}

// PrimaryTeachers maps each assigned subject to its first teacher.
func (a *TeacherLoadAllocator) PrimaryTeachers() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]string, len(a.assignments))
	for code, list := range a.assignments {
		if len(list) > 0 {
			out[code] = list[0].TeacherID
		}
	}
	return out
}

// Progress counts subjects holding at least one teacher.
func (a *TeacherLoadAllocator) Progress() Progress {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.progressLocked()
}

func (a *TeacherLoadAllocator) progressLocked() Progress {
	completed := 0
	for _, subject := range a.index.roster.Subjects {
		if len(a.assignments[subject.Code]) > 0 {
			completed++
		}
	}
	return newProgress(completed, len(a.index.roster.Subjects))
}

// Snapshot exports every roster subject with its ordered teacher list.
func (a *TeacherLoadAllocator) Snapshot() []SubjectAllocation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

func (a *TeacherLoadAllocator) snapshotLocked() []SubjectAllocation {
	out := make([]SubjectAllocation, 0, len(a.index.roster.Subjects))
	for _, subject := range a.index.roster.Subjects {
		out = append(out, SubjectAllocation{
			SubjectCode: subject.Code,
			Teachers:    copyAssignments(a.assignments[subject.Code]),
		})
	}
	return out
}

func copyAssignments(list []Assignment) []Assignment {
	out := make([]Assignment, len(list))
	copy(out, list)
	return out
}
