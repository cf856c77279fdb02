package service

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/models"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
)

const (
	teacherAllocatorLabel = "teacher"
	roomAllocatorLabel    = "room"
)

type rosterProvider interface {
	Load(ctx context.Context, semester int) (*LoadedRoster, error)
	Reload(ctx context.Context, semester int) (*LoadedRoster, error)
}

// allocationSession pairs the two allocators built from one roster.
// teacherMu serialises teacher mutations with the teacher reference sync onto pairings.
type allocationSession struct {
	roster    *LoadedRoster
	teachers  *allocator.TeacherLoadAllocator
	rooms     *allocator.RoomBatchAllocator
	teacherMu sync.Mutex
}

func newAllocationSession(roster *LoadedRoster) *allocationSession {
	return &allocationSession{
		roster:   roster,
		teachers: allocator.NewTeacherLoadAllocator(roster.Roster),
		rooms:    allocator.NewRoomBatchAllocator(roster.Roster),
	}
}

// AllocationService owns the active allocation session and translates allocator rejections into API errors.
type AllocationService struct {
	rosters   rosterProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	mu      sync.RWMutex
	session *allocationSession
}

// NewAllocationService constructs an AllocationService. No session exists until Start or Reload runs.
func NewAllocationService(rosters rosterProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{rosters: rosters, metrics: metrics, validator: validate, logger: logger}
}

// Start builds a session from the (possibly cached) roster.
func (s *AllocationService) Start(ctx context.Context, semester int) (*dto.RosterSummary, error) {
	roster, err := s.rosters.Load(ctx, semester)
	if err != nil {
		return nil, err
	}
	return s.install(roster), nil
}

// Reload re-reads the roster from the database and discards the current session.
func (s *AllocationService) Reload(ctx context.Context, req dto.ReloadRosterRequest) (*dto.RosterSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster reload payload")
	}
	roster, err := s.rosters.Reload(ctx, req.Semester)
	if err != nil {
		return nil, err
	}
	return s.install(roster), nil
}

func (s *AllocationService) install(roster *LoadedRoster) *dto.RosterSummary {
	session := newAllocationSession(roster)
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.publishProgress(session)
	s.logger.Info("allocation session started",
		zap.Int("semester", roster.Semester),
		zap.Int("subjects", len(roster.Subjects)),
		zap.Int("batches", len(roster.Batches)),
		zap.Bool("cached", roster.Cached),
	)
	return summarise(roster)
}

func summarise(roster *LoadedRoster) *dto.RosterSummary {
	return &dto.RosterSummary{
		Teachers: len(roster.Teachers),
		Subjects: len(roster.Subjects),
		Rooms:    len(roster.Rooms),
		Batches:  len(roster.Batches),
		Semester: roster.Semester,
		LoadedAt: roster.LoadedAt,
		Cached:   roster.Cached,
	}
}

func (s *AllocationService) current() (*allocationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, appErrors.ErrRosterNotLoaded
	}
	return s.session, nil
}

// Roster returns the roster behind the active session.
func (s *AllocationService) Roster() (*LoadedRoster, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return session.roster, nil
}

// AssignTeacher assigns a teacher to a subject.
func (s *AllocationService) AssignTeacher(ctx context.Context, req dto.AssignTeacherRequest) (*allocator.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher assignment payload")
	}
	session, err := s.current()
	if err != nil {
		return nil, err
	}

	session.teacherMu.Lock()
	assignment, err := session.teachers.Assign(req.SubjectCode, req.TeacherID, req.Hours)
	if err == nil {
		session.rooms.AttachTeachers(session.teachers.PrimaryTeachers())
	}
	session.teacherMu.Unlock()

	if err != nil {
		s.metrics.RecordAllocation(teacherAllocatorLabel, "assign", OutcomeRejected)
		s.logger.Debug("teacher assignment rejected",
			zap.String("subject_code", req.SubjectCode),
			zap.String("teacher_id", req.TeacherID),
			zap.Error(err),
		)
		return nil, translateAllocatorError(err)
	}
	s.metrics.RecordAllocation(teacherAllocatorLabel, "assign", OutcomeOK)
	s.publishProgress(session)
	return &assignment, nil
}

// UnassignTeacher removes a teacher from a subject. It reports false when nothing was held.
func (s *AllocationService) UnassignTeacher(ctx context.Context, req dto.TeacherSubjectRequest) (bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unassign payload")
	}
	session, err := s.current()
	if err != nil {
		return false, err
	}

	session.teacherMu.Lock()
	removed := session.teachers.Unassign(req.SubjectCode, req.TeacherID)
	if removed {
		session.rooms.AttachTeachers(session.teachers.PrimaryTeachers())
	}
	session.teacherMu.Unlock()

	s.metrics.RecordAllocation(teacherAllocatorLabel, "unassign", OutcomeOK)
	s.publishProgress(session)
	return removed, nil
}

// TogglePriority flips the priority hint. The returned bool is false when the teacher does not hold the subject.
func (s *AllocationService) TogglePriority(ctx context.Context, req dto.TeacherSubjectRequest) (*allocator.Assignment, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid priority payload")
	}
	session, err := s.current()
	if err != nil {
		return nil, false, err
	}
	assignment, ok := session.teachers.TogglePriority(req.SubjectCode, req.TeacherID)
	s.metrics.RecordAllocation(teacherAllocatorLabel, "priority", OutcomeOK)
	if !ok {
		return nil, false, nil
	}
	return &assignment, true, nil
}

// AutoAssignTeachers rebuilds every teacher assignment with the preference heuristic.
func (s *AllocationService) AutoAssignTeachers(ctx context.Context) (*allocator.AutoAssignResult, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}

	session.teacherMu.Lock()
	result := session.teachers.AutoAssign()
	session.rooms.AttachTeachers(session.teachers.PrimaryTeachers())
	session.teacherMu.Unlock()

	s.metrics.RecordAllocation(teacherAllocatorLabel, "auto", OutcomeOK)
	s.publishProgress(session)
	s.logger.Info("teacher auto-assign finished",
		zap.Int("assignments", result.Assignments),
		zap.Strings("unassigned", result.Unassigned),
	)
	return &result, nil
}

// ResetTeachers clears every teacher assignment.
func (s *AllocationService) ResetTeachers(ctx context.Context) error {
	session, err := s.current()
	if err != nil {
		return err
	}
	session.teacherMu.Lock()
	session.teachers.Reset()
	session.rooms.AttachTeachers(nil)
	session.teacherMu.Unlock()

	s.metrics.RecordAllocation(teacherAllocatorLabel, "reset", OutcomeOK)
	s.publishProgress(session)
	return nil
}

// TeacherAssignments lists non-empty subject allocations.
func (s *AllocationService) TeacherAssignments(ctx context.Context) ([]allocator.SubjectAllocation, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return session.teachers.Assignments(), nil
}

// Workloads returns the workload table.
func (s *AllocationService) Workloads(ctx context.Context) ([]allocator.Workload, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return session.teachers.Workloads(), nil
}

// Workload returns one teacher's workload.
func (s *AllocationService) Workload(ctx context.Context, teacherID string) (*allocator.Workload, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	w, err := session.teachers.Workload(teacherID)
	if err != nil {
		return nil, translateAllocatorError(err)
	}
	return &w, nil
}

// TeacherProgress reports teacher-side completion.
func (s *AllocationService) TeacherProgress(ctx context.Context) (*dto.TeacherProgressResponse, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return &dto.TeacherProgressResponse{Progress: session.teachers.Progress()}, nil
}

// SetMode changes a pairing between combined and separate attendance.
func (s *AllocationService) SetMode(ctx context.Context, req dto.SetModeRequest) (*allocator.BatchAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch mode payload")
	}
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	pairing, err := session.rooms.SetMode(req.BatchKey, req.SubjectCode, models.BatchMode(req.Mode))
	if err != nil {
		s.metrics.RecordAllocation(roomAllocatorLabel, "mode", OutcomeRejected)
		return nil, translateAllocatorError(err)
	}
	s.metrics.RecordAllocation(roomAllocatorLabel, "mode", OutcomeOK)
	return &pairing, nil
}

// AssignRoom records a room on a pairing; a type mismatch is returned as a conflict, not an error.
func (s *AllocationService) AssignRoom(ctx context.Context, req dto.AssignRoomRequest) (*dto.AssignRoomResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room assignment payload")
	}
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	conflict, err := session.rooms.AssignRoom(req.BatchKey, req.SubjectCode, req.RoomID)
	if err != nil {
		s.metrics.RecordAllocation(roomAllocatorLabel, "assign", OutcomeRejected)
		s.logger.Debug("room assignment rejected",
			zap.String("batch_key", req.BatchKey),
			zap.String("subject_code", req.SubjectCode),
			zap.String("room_id", req.RoomID),
			zap.Error(err),
		)
		return nil, translateAllocatorError(err)
	}
	pairing, err := session.rooms.Pairing(req.BatchKey, req.SubjectCode)
	if err != nil {
		return nil, translateAllocatorError(err)
	}

	outcome := OutcomeOK
	if conflict != nil {
		outcome = OutcomeConflict
	}
	s.metrics.RecordAllocation(roomAllocatorLabel, "assign", outcome)
	s.publishProgress(session)
	return &dto.AssignRoomResponse{Pairing: pairing, Conflict: conflict}, nil
}

// AutoAssignRooms fills every pairing without a room using the tightest compatible room.
func (s *AllocationService) AutoAssignRooms(ctx context.Context) (*allocator.RoomAutoAssignResult, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	result := session.rooms.AutoAssignRooms()
	s.metrics.RecordAllocation(roomAllocatorLabel, "auto", OutcomeOK)
	s.publishProgress(session)
	s.logger.Info("room auto-assign finished",
		zap.Int("assigned", result.Assigned),
		zap.Int("unassigned", len(result.Unassigned)),
	)
	return &result, nil
}

// ResetRooms clears every room, restores default modes and drops conflicts.
func (s *AllocationService) ResetRooms(ctx context.Context) error {
	session, err := s.current()
	if err != nil {
		return err
	}
	session.rooms.Reset()
	s.metrics.RecordAllocation(roomAllocatorLabel, "reset", OutcomeOK)
	s.publishProgress(session)
	return nil
}

// Revalidate recomputes conflicts and lists undersized rooms after mode changes.
func (s *AllocationService) Revalidate(ctx context.Context) (*dto.RevalidateResponse, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	issues := session.rooms.Revalidate()
	s.metrics.RecordAllocation(roomAllocatorLabel, "revalidate", OutcomeOK)
	s.publishProgress(session)
	return &dto.RevalidateResponse{Issues: issues, Conflicts: session.rooms.Conflicts()}, nil
}

// Pairings returns the BatchAssignment table.
func (s *AllocationService) Pairings(ctx context.Context) ([]allocator.BatchAssignment, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return session.rooms.Pairings(), nil
}

// Conflicts returns the active room conflicts.
func (s *AllocationService) Conflicts(ctx context.Context) ([]allocator.Conflict, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return session.rooms.Conflicts(), nil
}

// RoomProgress reports room-side completion with usage counts.
func (s *AllocationService) RoomProgress(ctx context.Context) (*dto.RoomProgressResponse, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}
	return &dto.RoomProgressResponse{
		Progress:  session.rooms.Progress(),
		Conflicts: len(session.rooms.Conflicts()),
		Usage:     session.rooms.RoomUsage(),
	}, nil
}

// Snapshot exports the current state of both allocators along with the roster it was built from.
func (s *AllocationService) Snapshot(ctx context.Context) (*allocator.Snapshot, *LoadedRoster, error) {
	session, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	session.teacherMu.Lock()
	snapshot := allocator.Finalize(session.teachers, session.rooms)
	session.teacherMu.Unlock()
	return &snapshot, session.roster, nil
}

func (s *AllocationService) publishProgress(session *allocationSession) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetProgress(teacherAllocatorLabel, session.teachers.Progress().Percentage)
	s.metrics.SetProgress(roomAllocatorLabel, session.rooms.Progress().Percentage)
	s.metrics.SetActiveConflicts(len(session.rooms.Conflicts()))
}

// translateAllocatorError maps allocator rejections onto API errors carrying the concrete numbers.
func translateAllocatorError(err error) error {
	var (
		notFound  *allocator.NotFoundError
		duplicate *allocator.DuplicateAssignmentError
		capacity  *allocator.CapacityExceededError
	)
	switch {
	case errors.As(err, &notFound):
		appErr := appErrors.WithDetails(appErrors.ErrNotFound, map[string]interface{}{
			"entity": notFound.Entity,
			"key":    notFound.Key,
		})
		appErr.Message = notFound.Error()
		appErr.Err = err
		return appErr
	case errors.As(err, &duplicate):
		appErr := appErrors.WithDetails(appErrors.ErrDuplicateAssignment, map[string]interface{}{
			"subject_code": duplicate.SubjectCode,
			"teacher_id":   duplicate.TeacherID,
		})
		appErr.Message = duplicate.Error()
		appErr.Err = err
		return appErr
	case errors.As(err, &capacity):
		details := map[string]interface{}{"kind": string(capacity.Kind), "id": capacity.ID}
		switch capacity.Kind {
		case allocator.CapacityRoomSeats:
			details["capacity"] = capacity.Available
			details["required"] = capacity.Requested
		case allocator.CapacityPerSubjectCap:
			details["max_hours"] = capacity.Available
			details["requested"] = capacity.Requested
		default:
			details["remaining"] = capacity.Available
			details["requested"] = capacity.Requested
		}
		appErr := appErrors.WithDetails(appErrors.ErrCapacityExceeded, details)
		appErr.Message = capacity.Error()
		appErr.Err = err
		return appErr
	case errors.Is(err, allocator.ErrInvalidMode):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "allocation failed")
	}
}
