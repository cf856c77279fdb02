package allocator

import (
	"errors"
	"fmt"
)

// Sentinel rejections. Concrete errors returned by the allocators match these with errors.Is.
var (
	ErrNotFound            = errors.New("allocator: not found")
	ErrDuplicateAssignment = errors.New("allocator: duplicate assignment")
	ErrCapacityExceeded    = errors.New("allocator: capacity exceeded")
	ErrInvalidMode         = errors.New("allocator: invalid batch mode")
)

// NotFoundError reports a roster key that does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DuplicateAssignmentError is returned when the teacher already holds the subject.
type DuplicateAssignmentError struct {
	SubjectCode string
	TeacherID   string
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("teacher %s is already assigned to %s", e.TeacherID, e.SubjectCode)
}

// Is lets errors.Is match ErrDuplicateAssignment.
func (e *DuplicateAssignmentError) Is(target error) bool {
	return target == ErrDuplicateAssignment
}

// CapacityKind distinguishes teacher-hour and room-seat capacity rejections.
type CapacityKind string

const (
	CapacityTeacherHours  CapacityKind = "teacher_hours"
	CapacityPerSubjectCap CapacityKind = "per_subject_cap"
	CapacityRoomSeats     CapacityKind = "room_seats"
)

// CapacityExceededError carries the numbers behind a capacity rejection.
// For teacher hours Available is the remaining hours and Requested the hours asked for.
// For the per-subject cap Available is MaxHoursPerTeacherPerSubject.
// For rooms Available is the room capacity and Requested the required occupancy.
type CapacityExceededError struct {
	Kind      CapacityKind
	ID        string
	Label     string
	Available int
	Requested int
}

func (e *CapacityExceededError) Error() string {
	switch e.Kind {
	case CapacityRoomSeats:
		return fmt.Sprintf("Room %s capacity (%d) is insufficient for this batch (%d students)", e.Label, e.Available, e.Requested)
	case CapacityPerSubjectCap:
		return fmt.Sprintf("%s can take at most %d hours on one subject, %d requested", e.Label, e.Available, e.Requested)
	}
	return fmt.Sprintf("%s has only %d hours remaining, %d requested", e.Label, e.Available, e.Requested)
}

// Is lets errors.Is match ErrCapacityExceeded.
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
