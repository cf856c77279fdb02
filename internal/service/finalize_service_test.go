package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/models"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
	"github.com/noah-isme/timetable-allocator/pkg/timetable"
)

type snapshotRepoStub struct {
	created    *models.AllocationSnapshot
	subjects   []models.SubjectTeacherAssignment
	pairings   []models.BatchRoomAssignment
	createErr  error
	pairingErr error
	found      *models.AllocationSnapshot
	findErr    error
}

func (s *snapshotRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, snapshot *models.AllocationSnapshot) error {
	if s.createErr != nil {
		return s.createErr
	}
	snapshot.ID = "snap-1"
	snapshot.Version = 4
	s.created = snapshot
	return nil
}

func (s *snapshotRepoStub) InsertSubjectAssignments(ctx context.Context, exec sqlx.ExtContext, rows []models.SubjectTeacherAssignment) error {
	s.subjects = rows
	return nil
}

func (s *snapshotRepoStub) InsertBatchRooms(ctx context.Context, exec sqlx.ExtContext, rows []models.BatchRoomAssignment) error {
	if s.pairingErr != nil {
		return s.pairingErr
	}
	s.pairings = rows
	return nil
}

func (s *snapshotRepoStub) FindByID(ctx context.Context, id string) (*models.AllocationSnapshot, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.found, nil
}

func (s *snapshotRepoStub) List(ctx context.Context, limit int) ([]models.AllocationSnapshot, error) {
	return []models.AllocationSnapshot{{ID: "snap-1", Version: 4}}, nil
}

func (s *snapshotRepoStub) ListSubjectAssignments(ctx context.Context, snapshotID string) ([]models.SubjectTeacherAssignment, error) {
	return s.subjects, nil
}

func (s *snapshotRepoStub) ListBatchRooms(ctx context.Context, snapshotID string) ([]models.BatchRoomAssignment, error) {
	return s.pairings, nil
}

type dispatcherStub struct {
	snapshotID string
	request    timetable.GenerateRequest
	err        error
}

func (d *dispatcherStub) Dispatch(ctx context.Context, snapshotID string, req timetable.GenerateRequest) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.snapshotID = snapshotID
	d.request = req
	return "job-1", nil
}

func newFinalizeFixture(t *testing.T, dispatcher snapshotDispatcher) (*FinalizeService, *snapshotRepoStub, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	alloc := startedAllocationService(t)
	_, err = alloc.AutoAssignTeachers(context.Background())
	require.NoError(t, err)
	_, err = alloc.AutoAssignRooms(context.Background())
	require.NoError(t, err)

	repo := &snapshotRepoStub{}
	svc := NewFinalizeService(alloc, repo, sqlx.NewDb(db, "sqlmock"), dispatcher, nil, nil)
	return svc, repo, mock, func() { db.Close() }
}

func TestFinalizeServicePersistsSnapshot(t *testing.T) {
	svc, repo, mock, cleanup := newFinalizeFixture(t, nil)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Finalize(context.Background(), dto.FinalizeRequest{Note: "draft one"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", resp.Snapshot.ID)
	assert.Equal(t, 4, resp.Snapshot.Version)
	assert.False(t, resp.Dispatched)
	assert.Equal(t, models.AllocationSnapshotStatusFinalized, repo.created.Status)
	assert.Equal(t, "user-1", repo.created.CreatedBy)
	assert.Equal(t, 100, repo.created.TeacherProgress)

	require.Len(t, repo.subjects, 2)
	assert.True(t, repo.subjects[0].IsPrimary)
	assert.Equal(t, "snap-1", repo.subjects[0].SnapshotID)
	require.Len(t, repo.pairings, 4)
	assert.Equal(t, 3, repo.pairings[3].Position)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(repo.created.Meta, &meta))
	assert.Equal(t, "draft one", meta["note"])
	assert.Equal(t, float64(3), meta["semester"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeServiceRollsBackOnFailure(t *testing.T) {
	svc, repo, mock, cleanup := newFinalizeFixture(t, nil)
	defer cleanup()
	repo.pairingErr = errors.New("insert failed")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Finalize(context.Background(), dto.FinalizeRequest{}, "user-1")
	require.Error(t, err)
	assert.Equal(t, "failed to persist room allocations", appErrors.FromError(err).Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeServiceDispatch(t *testing.T) {
	dispatcher := &dispatcherStub{}
	svc, _, mock, cleanup := newFinalizeFixture(t, dispatcher)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Finalize(context.Background(), dto.FinalizeRequest{Dispatch: true}, "user-1")
	require.NoError(t, err)
	assert.True(t, resp.Dispatched)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "snap-1", dispatcher.snapshotID)
	assert.Equal(t, 4, dispatcher.request.Version)
	require.Len(t, dispatcher.request.Subjects, 2)
	assert.Equal(t, []string{"T1"}, dispatcher.request.Subjects[0].AssignedTeachers)
	assert.Len(t, dispatcher.request.BatchRooms, 4)
}

func TestFinalizeServiceDispatchDisabled(t *testing.T) {
	svc, _, mock, cleanup := newFinalizeFixture(t, nil)
	defer cleanup()

	_, err := svc.Finalize(context.Background(), dto.FinalizeRequest{Dispatch: true}, "user-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, appErrors.FromError(err).Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeServiceGetNotFound(t *testing.T) {
	repo := &snapshotRepoStub{findErr: sql.ErrNoRows}
	svc := NewFinalizeService(nil, repo, nil, nil, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestBuildGenerateRequestKeepsEmptyTeacherLists(t *testing.T) {
	alloc := startedAllocationService(t)
	snapshot, roster, err := alloc.Snapshot(context.Background())
	require.NoError(t, err)

	req := BuildGenerateRequest(nil, roster, snapshot)
	require.Len(t, req.Subjects, 2)
	assert.NotNil(t, req.Subjects[0].AssignedTeachers)
	assert.Empty(t, req.Subjects[0].AssignedTeachers)
	assert.Equal(t, "CS301", req.Subjects[0].ID)
	assert.Equal(t, "T1", req.Teachers[0].ID)
	assert.Nil(t, req.BatchRooms[0].RoomID)
}
