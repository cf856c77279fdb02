package allocator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

func room(id string, capacity int, roomType models.RoomType) models.Room {
	return models.Room{ID: id, Capacity: capacity, RoomType: roomType}
}

func division(name string, semester, strength int) models.Division {
	return models.Division{Name: name, Semester: semester, Strength: strength}
}

func newRoomFixture(rooms ...models.Room) *RoomBatchAllocator {
	return NewRoomBatchAllocator(Roster{
		Subjects: []models.Subject{subject("CS301", 3, false), subject("CS401", 4, true)},
		Rooms:    rooms,
		Batches:  BatchesFromDivisions([]models.Division{division("Division A", 3, 60)}),
	})
}

func TestNewBatchSplitsDivision(t *testing.T) {
	batch := NewBatch(division("Division B", 5, 61))

	assert.Equal(t, "B-5", batch.Key)
	assert.Equal(t, "CSE-B Semester 5", batch.Name)
	assert.Equal(t, []models.SubBatch{
		{ID: "B1", Name: "Batch B1", Students: 31},
		{ID: "B2", Name: "Batch B2", Students: 30},
	}, batch.SubBatches)
	assert.Equal(t, 31, batch.LargestSubBatch())
}

func TestRoomBatchDefaultsFollowLabRequirement(t *testing.T) {
	a := newRoomFixture()

	pairings := a.Pairings()
	require.Len(t, pairings, 2)
	assert.Equal(t, BatchAssignment{BatchKey: "A-3", SubjectCode: "CS301", Mode: models.BatchModeCombined}, pairings[0])
	assert.Equal(t, BatchAssignment{BatchKey: "A-3", SubjectCode: "CS401", Mode: models.BatchModeSeparate}, pairings[1])
}

func TestRoomBatchAssignRoomBlocksOnCapacity(t *testing.T) {
	a := newRoomFixture(room("R1", 50, models.RoomTypeClassroom))

	conflict, err := a.AssignRoom("A-3", "CS301", "R1")
	require.Error(t, err)
	assert.Nil(t, conflict)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	var capErr *CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, CapacityRoomSeats, capErr.Kind)
	assert.Equal(t, 50, capErr.Available)
	assert.Equal(t, 60, capErr.Requested)
	assert.Equal(t, "Room R1 capacity (50) is insufficient for this batch (60 students)", capErr.Error())

	p, err := a.Pairing("A-3", "CS301")
	require.NoError(t, err)
	assert.False(t, p.HasRoom())
	assert.Empty(t, a.Conflicts())
}

func TestRoomBatchAssignRoomSeparateUsesSubBatchSize(t *testing.T) {
	a := newRoomFixture(room("R2", 35, models.RoomTypeClassroom))

	_, err := a.SetMode("A-3", "CS301", models.BatchModeSeparate)
	require.NoError(t, err)

	conflict, err := a.AssignRoom("A-3", "CS301", "R2")
	require.NoError(t, err)
	assert.Nil(t, conflict)

	p, _ := a.Pairing("A-3", "CS301")
	assert.Equal(t, "R2", p.RoomID)
	assert.Empty(t, a.Conflicts())
}

func TestRoomBatchAssignRoomRecordsTypeMismatch(t *testing.T) {
	a := newRoomFixture(room("R3", 40, models.RoomTypeClassroom), room("L1", 40, models.RoomTypeLab))

	conflict, err := a.AssignRoom("A-3", "CS401", "R3")
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, ConflictRoomTypeMismatch, conflict.Reason)
	assert.Equal(t, "Subject CS401 requires a lab room but R3 is a Classroom", conflict.Message)

	p, _ := a.Pairing("A-3", "CS401")
	assert.Equal(t, "R3", p.RoomID)
	require.Len(t, a.Conflicts(), 1)

	// reassigning a mismatched room keeps a single conflict for the pairing
	_, err = a.AssignRoom("A-3", "CS401", "R3")
	require.NoError(t, err)
	assert.Len(t, a.Conflicts(), 1)

	conflict, err = a.AssignRoom("A-3", "CS401", "L1")
	require.NoError(t, err)
	assert.Nil(t, conflict)
	assert.Empty(t, a.Conflicts())
}

func TestRoomBatchAssignRoomFlagsTheoryInLab(t *testing.T) {
	a := newRoomFixture(room("L1", 80, models.RoomTypeLab))

	conflict, err := a.AssignRoom("A-3", "CS301", "L1")
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "Subject CS301 is a theory subject but L1 is a lab room", conflict.Message)
}

func TestRoomBatchRejectsUnknownKeysAndModes(t *testing.T) {
	a := newRoomFixture(room("R1", 80, models.RoomTypeClassroom))

	_, err := a.AssignRoom("Z-9", "CS301", "R1")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = a.AssignRoom("A-3", "CS999", "R1")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = a.AssignRoom("A-3", "CS301", "R9")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = a.SetMode("A-3", "CS301", models.BatchMode("split"))
	assert.True(t, errors.Is(err, ErrInvalidMode))
	_, err = a.SetMode("A-3", "CS999", models.BatchModeSeparate)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRoomBatchAutoAssignPicksTightestTypedFit(t *testing.T) {
	a := NewRoomBatchAllocator(Roster{
		Subjects: []models.Subject{subject("CS301", 3, false), subject("CS401", 4, true)},
		Rooms: []models.Room{
			room("R-big", 70, models.RoomTypeClassroom),
			room("R-mid", 60, models.RoomTypeClassroom),
			room("R-mid2", 60, models.RoomTypeClassroom),
			room("L1", 35, models.RoomTypeLab),
			room("L2", 30, models.RoomTypeLab),
		},
		Batches: BatchesFromDivisions([]models.Division{
			division("Division A", 3, 60),
			division("Division B", 3, 75),
		}),
	})

	result := a.AutoAssignRooms()
	assert.Equal(t, 2, result.Assigned)
	assert.Equal(t, []PairingKey{
		{BatchKey: "B-3", SubjectCode: "CS301"},
		{BatchKey: "B-3", SubjectCode: "CS401"},
	}, result.Unassigned)

	p, _ := a.Pairing("A-3", "CS301")
	assert.Equal(t, "R-mid", p.RoomID)
	p, _ = a.Pairing("A-3", "CS401")
	assert.Equal(t, "L2", p.RoomID)
	assert.Empty(t, a.Conflicts())

	usage := a.RoomUsage()
	require.Len(t, usage, 5)
	assert.Equal(t, RoomUsage{RoomID: "R-mid", Pairings: 1}, usage[1])
	assert.Equal(t, RoomUsage{RoomID: "R-mid2", Pairings: 0}, usage[2])
}

func TestRoomBatchAutoAssignKeepsExistingRooms(t *testing.T) {
	a := newRoomFixture(room("R3", 40, models.RoomTypeClassroom), room("L1", 40, models.RoomTypeLab), room("R9", 90, models.RoomTypeClassroom))
	_, err := a.AssignRoom("A-3", "CS401", "R3")
	require.NoError(t, err)

	a.AutoAssignRooms()

	p, _ := a.Pairing("A-3", "CS401")
	assert.Equal(t, "R3", p.RoomID)
	assert.Len(t, a.Conflicts(), 1)
	p, _ = a.Pairing("A-3", "CS301")
	assert.Equal(t, "R9", p.RoomID)
}

func TestRoomBatchSetModeIsLazyAndRevalidateReports(t *testing.T) {
	a := newRoomFixture(room("R2", 35, models.RoomTypeClassroom))
	_, err := a.SetMode("A-3", "CS301", models.BatchModeSeparate)
	require.NoError(t, err)
	_, err = a.AssignRoom("A-3", "CS301", "R2")
	require.NoError(t, err)

	updated, err := a.SetMode("A-3", "CS301", models.BatchModeCombined)
	require.NoError(t, err)
	assert.Equal(t, "R2", updated.RoomID)

	issues := a.Revalidate()
	assert.Equal(t, []CapacityIssue{{BatchKey: "A-3", SubjectCode: "CS301", RoomID: "R2", Capacity: 35, Required: 60}}, issues)
	p, _ := a.Pairing("A-3", "CS301")
	assert.Equal(t, "R2", p.RoomID)
}

func TestRoomBatchRevalidateRebuildsConflicts(t *testing.T) {
	a := newRoomFixture(room("R3", 40, models.RoomTypeClassroom))
	_, err := a.AssignRoom("A-3", "CS401", "R3")
	require.NoError(t, err)

	issues := a.Revalidate()
	assert.Empty(t, issues)
	conflicts := a.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "CS401", conflicts[0].SubjectCode)
}

func TestRoomBatchResetIsIdempotent(t *testing.T) {
	a := newRoomFixture(room("R3", 40, models.RoomTypeClassroom), room("R9", 90, models.RoomTypeClassroom))
	_, _ = a.SetMode("A-3", "CS301", models.BatchModeSeparate)
	_, _ = a.AssignRoom("A-3", "CS401", "R3")
	a.AutoAssignRooms()
	a.AttachTeachers(map[string]string{"CS301": "T1"})

	a.Reset()
	once := a.Pairings()
	a.Reset()
	assert.Equal(t, once, a.Pairings())
	assert.Empty(t, a.Conflicts())

	assert.Equal(t, BatchAssignment{BatchKey: "A-3", SubjectCode: "CS301", TeacherID: "T1", Mode: models.BatchModeCombined}, once[0])
	assert.Equal(t, BatchAssignment{BatchKey: "A-3", SubjectCode: "CS401", Mode: models.BatchModeSeparate}, once[1])
}

func TestRoomBatchProgressNeedsTeacherAndRoom(t *testing.T) {
	a := newRoomFixture(room("R9", 90, models.RoomTypeClassroom), room("L1", 40, models.RoomTypeLab))
	a.AutoAssignRooms()
	assert.Equal(t, Progress{Completed: 0, Total: 2, Percentage: 0}, a.Progress())

	a.AttachTeachers(map[string]string{"CS301": "T1"})
	assert.Equal(t, Progress{Completed: 1, Total: 2, Percentage: 50}, a.Progress())
}

func TestFinalizeCombinesAllocators(t *testing.T) {
	roster := Roster{
		Teachers: []models.Teacher{teacher("T1", 16, "CS301")},
		Subjects: []models.Subject{subject("CS301", 3, false), subject("CS401", 4, true)},
		Rooms:    []models.Room{room("R9", 90, models.RoomTypeClassroom)},
		Batches:  BatchesFromDivisions([]models.Division{division("Division A", 3, 60)}),
	}
	teachers := NewTeacherLoadAllocator(roster)
	rooms := NewRoomBatchAllocator(roster)
	teachers.AutoAssign()
	rooms.AttachTeachers(teachers.PrimaryTeachers())
	rooms.AutoAssignRooms()

	snapshot := Finalize(teachers, rooms)
	require.Len(t, snapshot.Subjects, 2)
	assert.Equal(t, []Assignment{{TeacherID: "T1", Hours: 3}}, snapshot.Subjects[0].Teachers)
	require.Len(t, snapshot.Pairings, 2)
	require.NotNil(t, snapshot.Pairings[0].RoomID)
	assert.Equal(t, "R9", *snapshot.Pairings[0].RoomID)
	assert.Nil(t, snapshot.Pairings[1].RoomID)
	assert.Equal(t, models.BatchModeSeparate, snapshot.Pairings[1].Mode)
	assert.Equal(t, 100, snapshot.TeacherProgress.Percentage)
	assert.Equal(t, 50, snapshot.RoomProgress.Percentage)
}
