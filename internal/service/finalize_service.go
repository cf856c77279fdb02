package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/models"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
	"github.com/noah-isme/timetable-allocator/pkg/timetable"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type snapshotSource interface {
	Snapshot(ctx context.Context) (*allocator.Snapshot, *LoadedRoster, error)
}

type allocationSnapshotRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, snapshot *models.AllocationSnapshot) error
	InsertSubjectAssignments(ctx context.Context, exec sqlx.ExtContext, rows []models.SubjectTeacherAssignment) error
	InsertBatchRooms(ctx context.Context, exec sqlx.ExtContext, rows []models.BatchRoomAssignment) error
	FindByID(ctx context.Context, id string) (*models.AllocationSnapshot, error)
	List(ctx context.Context, limit int) ([]models.AllocationSnapshot, error)
	ListSubjectAssignments(ctx context.Context, snapshotID string) ([]models.SubjectTeacherAssignment, error)
	ListBatchRooms(ctx context.Context, snapshotID string) ([]models.BatchRoomAssignment, error)
}

type snapshotDispatcher interface {
	Dispatch(ctx context.Context, snapshotID string, req timetable.GenerateRequest) (string, error)
}

// FinalizeService persists the active allocation session as a versioned snapshot.
type FinalizeService struct {
	source     snapshotSource
	snapshots  allocationSnapshotRepository
	tx         txProvider
	dispatcher snapshotDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFinalizeService wires finalize dependencies. dispatcher may be nil when dispatch is disabled.
func NewFinalizeService(source snapshotSource, snapshots allocationSnapshotRepository, tx txProvider, dispatcher snapshotDispatcher, validate *validator.Validate, logger *zap.Logger) *FinalizeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinalizeService{
		source:     source,
		snapshots:  snapshots,
		tx:         tx,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
	}
}

// Finalize writes the snapshot header, teacher rows and pairing rows in one transaction,
// then optionally queues the generate request.
func (s *FinalizeService) Finalize(ctx context.Context, req dto.FinalizeRequest, actorID string) (*dto.FinalizeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finalize payload")
	}
	if req.Dispatch && s.dispatcher == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "dispatch is disabled")
	}
	snapshot, roster, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	unassigned := make([]string, 0)
	for _, subject := range snapshot.Subjects {
		if len(subject.Teachers) == 0 {
			unassigned = append(unassigned, subject.SubjectCode)
		}
	}
	metaBytes, err := json.Marshal(map[string]interface{}{
		"note":                req.Note,
		"semester":            roster.Semester,
		"roster_loaded_at":    roster.LoadedAt,
		"unassigned_subjects": unassigned,
		"conflicts":           snapshot.Conflicts,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode snapshot metadata")
	}

	record := &models.AllocationSnapshot{
		Status:          models.AllocationSnapshotStatusFinalized,
		TeacherProgress: snapshot.TeacherProgress.Percentage,
		RoomProgress:    snapshot.RoomProgress.Percentage,
		ConflictCount:   len(snapshot.Conflicts),
		Meta:            types.JSONText(metaBytes),
		CreatedBy:       actorID,
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.snapshots.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create allocation snapshot")
		return nil, err
	}
	if err = s.snapshots.InsertSubjectAssignments(ctx, tx, subjectRows(record.ID, snapshot.Subjects)); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist teacher allocations")
		return nil, err
	}
	if err = s.snapshots.InsertBatchRooms(ctx, tx, pairingRows(record.ID, snapshot.Pairings)); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist room allocations")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit allocation snapshot")
		return nil, err
	}

	s.logger.Info("allocation finalized",
		zap.String("snapshot_id", record.ID),
		zap.Int("version", record.Version),
		zap.Int("teacher_progress", record.TeacherProgress),
		zap.Int("room_progress", record.RoomProgress),
	)

	resp := &dto.FinalizeResponse{Snapshot: *record}
	if req.Dispatch {
		jobID, dispatchErr := s.dispatcher.Dispatch(ctx, record.ID, BuildGenerateRequest(record, roster, snapshot))
		if dispatchErr != nil {
			s.logger.Warn("snapshot saved but dispatch was not queued", zap.String("snapshot_id", record.ID), zap.Error(dispatchErr))
			return resp, nil
		}
		resp.Dispatched = true
		resp.JobID = jobID
	}
	return resp, nil
}

// Get loads a snapshot with its rows.
func (s *FinalizeService) Get(ctx context.Context, id string) (*models.AllocationSnapshotDetail, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "snapshot id is required")
	}
	record, err := s.snapshots.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation snapshot")
	}
	subjects, err := s.snapshots.ListSubjectAssignments(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher allocations")
	}
	pairings, err := s.snapshots.ListBatchRooms(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room allocations")
	}
	return &models.AllocationSnapshotDetail{AllocationSnapshot: *record, Subjects: subjects, Pairings: pairings}, nil
}

// List returns recent snapshots, newest first.
func (s *FinalizeService) List(ctx context.Context, limit int) ([]models.AllocationSnapshot, error) {
	list, err := s.snapshots.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list allocation snapshots")
	}
	return list, nil
}

func subjectRows(snapshotID string, subjects []allocator.SubjectAllocation) []models.SubjectTeacherAssignment {
	rows := make([]models.SubjectTeacherAssignment, 0, len(subjects))
	for _, subject := range subjects {
		for i, a := range subject.Teachers {
			rows = append(rows, models.SubjectTeacherAssignment{
				SnapshotID:  snapshotID,
				SubjectCode: subject.SubjectCode,
				TeacherID:   a.TeacherID,
				Hours:       a.Hours,
				IsPriority:  a.IsPriority,
				IsPrimary:   i == 0,
				Position:    len(rows),
			})
		}
	}
	return rows
}

func pairingRows(snapshotID string, pairings []allocator.PairingSnapshot) []models.BatchRoomAssignment {
	rows := make([]models.BatchRoomAssignment, 0, len(pairings))
	for i, p := range pairings {
		rows = append(rows, models.BatchRoomAssignment{
			SnapshotID:  snapshotID,
			BatchKey:    p.BatchKey,
			SubjectCode: p.SubjectCode,
			TeacherID:   p.TeacherID,
			RoomID:      p.RoomID,
			Mode:        p.Mode,
			Position:    i,
		})
	}
	return rows
}

// BuildGenerateRequest shapes a finalized snapshot into the timetable generator payload.
func BuildGenerateRequest(record *models.AllocationSnapshot, roster *LoadedRoster, snapshot *allocator.Snapshot) timetable.GenerateRequest {
	assigned := make(map[string][]string, len(snapshot.Subjects))
	for _, subject := range snapshot.Subjects {
		ids := make([]string, 0, len(subject.Teachers))
		for _, a := range subject.Teachers {
			ids = append(ids, a.TeacherID)
		}
		assigned[subject.SubjectCode] = ids
	}

	req := timetable.GenerateRequest{
		Teachers:   make([]timetable.Teacher, 0, len(roster.Teachers)),
		Subjects:   make([]timetable.Subject, 0, len(roster.Subjects)),
		Rooms:      make([]timetable.Room, 0, len(roster.Rooms)),
		Divisions:  make([]timetable.Division, 0, len(roster.Divisions)),
		BatchRooms: make([]timetable.BatchRoom, 0, len(snapshot.Pairings)),
	}
	if record != nil {
		req.SnapshotID = record.ID
		req.Version = record.Version
	}
	for _, t := range roster.Teachers {
		req.Teachers = append(req.Teachers, timetable.Teacher{
			ID:             t.MISID,
			MISID:          t.MISID,
			Name:           t.Name,
			Email:          t.Email,
			Designation:    t.Designation,
			MaxHours:       t.MaxHours,
			Shift:          t.Shift,
			PreferredShift: t.PreferredShift,
		})
	}
	for _, sub := range roster.Subjects {
		teachers := assigned[sub.Code]
		if teachers == nil {
			teachers = []string{}
		}
		req.Subjects = append(req.Subjects, timetable.Subject{
			ID:               sub.Code,
			Code:             sub.Code,
			Name:             sub.Name,
			Department:       sub.Department,
			Semester:         sub.Semester,
			WeeklyLoad:       sub.WeeklyLoad,
			TotalHours:       sub.TotalHours,
			AssignedTeachers: teachers,
			RequiresLab:      sub.RequiresLab,
		})
	}
	for _, r := range roster.Rooms {
		req.Rooms = append(req.Rooms, timetable.Room{
			ID:        r.ID,
			RoomNo:    r.RoomNo,
			Name:      r.Name,
			Capacity:  r.Capacity,
			RoomType:  string(r.RoomType),
			Equipment: r.Equipment,
		})
	}
	for _, d := range roster.Divisions {
		req.Divisions = append(req.Divisions, timetable.Division{ID: d.ID, Name: d.Name, Semester: d.Semester, Strength: d.Strength})
	}
	for _, p := range snapshot.Pairings {
		req.BatchRooms = append(req.BatchRooms, timetable.BatchRoom{
			BatchKey:    p.BatchKey,
			SubjectCode: p.SubjectCode,
			TeacherID:   p.TeacherID,
			RoomID:      p.RoomID,
			Mode:        string(p.Mode),
		})
	}
	return req
}
