package allocator

import (
	"fmt"
	"strings"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

// MaxHoursPerTeacherPerSubject caps the hours a single teacher takes on one subject.
const MaxHoursPerTeacherPerSubject = 4

// Roster is the read-only planning snapshot shared by both allocators.
// Slice order is significant: it drives heuristic iteration and tie-breaking.
type Roster struct {
	Teachers []models.Teacher `json:"teachers"`
	Subjects []models.Subject `json:"subjects"`
	Rooms    []models.Room    `json:"rooms"`
	Batches  []models.Batch   `json:"batches"`
}

// rosterIndex resolves keys to roster positions.
type rosterIndex struct {
	roster   Roster
	teachers map[string]int
	subjects map[string]int
	rooms    map[string]int
	batches  map[string]int
}

func newRosterIndex(r Roster) *rosterIndex {
	idx := &rosterIndex{
		roster:   r,
		teachers: make(map[string]int, len(r.Teachers)),
		subjects: make(map[string]int, len(r.Subjects)),
		rooms:    make(map[string]int, len(r.Rooms)),
		batches:  make(map[string]int, len(r.Batches)),
	}
	for i, t := range r.Teachers {
		if _, dup := idx.teachers[t.MISID]; !dup {
			idx.teachers[t.MISID] = i
		}
	}
	for i, s := range r.Subjects {
		if _, dup := idx.subjects[s.Code]; !dup {
			idx.subjects[s.Code] = i
		}
	}
	for i, room := range r.Rooms {
		if _, dup := idx.rooms[room.ID]; !dup {
			idx.rooms[room.ID] = i
		}
	}
	for i, b := range r.Batches {
		if _, dup := idx.batches[b.Key]; !dup {
			idx.batches[b.Key] = i
		}
	}
	return idx
}

func (x *rosterIndex) teacher(id string) (models.Teacher, error) {
	i, ok := x.teachers[id]
	if !ok {
		return models.Teacher{}, &NotFoundError{Entity: "teacher", Key: id}
	}
	return x.roster.Teachers[i], nil
}

func (x *rosterIndex) subject(code string) (models.Subject, error) {
	i, ok := x.subjects[code]
	if !ok {
		return models.Subject{}, &NotFoundError{Entity: "subject", Key: code}
	}
	return x.roster.Subjects[i], nil
}

func (x *rosterIndex) room(id string) (models.Room, error) {
	i, ok := x.rooms[id]
	if !ok {
		return models.Room{}, &NotFoundError{Entity: "room", Key: id}
	}
	return x.roster.Rooms[i], nil
}

func (x *rosterIndex) batch(key string) (models.Batch, error) {
	i, ok := x.batches[key]
	if !ok {
		return models.Batch{}, &NotFoundError{Entity: "batch", Key: key}
	}
	return x.roster.Batches[i], nil
}

// BatchesFromDivisions derives allocation batches from divisions, keeping their order.
func BatchesFromDivisions(divisions []models.Division) []models.Batch {
	batches := make([]models.Batch, 0, len(divisions))
	for _, div := range divisions {
		batches = append(batches, NewBatch(div))
	}
	return batches
}

// NewBatch splits a division into its full group and two sub-batches.
func NewBatch(div models.Division) models.Batch {
	letter := divisionLetter(div.Name)
	return models.Batch{
		Key:      BatchKey(div),
		Name:     fmt.Sprintf("CSE-%s Semester %d", letter, div.Semester),
		Division: letter,
		Semester: div.Semester,
		Strength: div.Strength,
		SubBatches: []models.SubBatch{
			{ID: letter + "1", Name: "Batch " + letter + "1", Students: (div.Strength + 1) / 2},
			{ID: letter + "2", Name: "Batch " + letter + "2", Students: div.Strength / 2},
		},
	}
}

// BatchKey builds the "<letter>-<semester>" key, e.g. "Division A" in semester 3 is "A-3".
func BatchKey(div models.Division) string {
	return fmt.Sprintf("%s-%d", divisionLetter(div.Name), div.Semester)
}

func divisionLetter(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// hoursPerTeacher is the default hours one teacher takes on a subject.
func hoursPerTeacher(subject models.Subject) int {
	return min(subject.TotalHours, MaxHoursPerTeacherPerSubject)
}

// requiredCapacity is the seat count a room must offer for the pairing's mode.
func requiredCapacity(batch models.Batch, mode models.BatchMode) int {
	if mode == models.BatchModeCombined {
		return batch.Strength
	}
	return batch.LargestSubBatch()
}
