package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

const snapshotColumns = `id, version, status, teacher_progress, room_progress, conflict_count, meta, created_by, created_at, updated_at`

// AllocationSnapshotRepository persists finalized, versioned allocations.
type AllocationSnapshotRepository struct {
	db *sqlx.DB
}

// NewAllocationSnapshotRepository constructs repository.
func NewAllocationSnapshotRepository(db *sqlx.DB) *AllocationSnapshotRepository {
	return &AllocationSnapshotRepository{db: db}
}

func (r *AllocationSnapshotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a snapshot with the next global version number.
func (r *AllocationSnapshotRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, snapshot *models.AllocationSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot payload is nil")
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.Status == "" {
		snapshot.Status = models.AllocationSnapshotStatusFinalized
	}
	if len(snapshot.Meta) == 0 {
		snapshot.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM allocation_snapshots`
	if err := sqlx.GetContext(ctx, target, &snapshot.Version, nextVersionQuery); err != nil {
		return fmt.Errorf("compute next allocation snapshot version: %w", err)
	}

	const insertQuery = `
INSERT INTO allocation_snapshots (id, version, status, teacher_progress, room_progress, conflict_count, meta, created_by, created_at, updated_at)
VALUES (:id, :version, :status, :teacher_progress, :room_progress, :conflict_count, :meta, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, snapshot); err != nil {
		return fmt.Errorf("insert allocation snapshot: %w", err)
	}
	return nil
}

// InsertSubjectAssignments stores the teacher rows of a snapshot in one statement.
func (r *AllocationSnapshotRepository) InsertSubjectAssignments(ctx context.Context, exec sqlx.ExtContext, rows []models.SubjectTeacherAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	const query = `
INSERT INTO allocation_subject_teachers (snapshot_id, subject_code, teacher_id, hours, is_priority, is_primary, position)
VALUES (:snapshot_id, :subject_code, :teacher_id, :hours, :is_priority, :is_primary, :position)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, rows); err != nil {
		return fmt.Errorf("insert allocation subject teachers: %w", err)
	}
	return nil
}

// InsertBatchRooms stores the pairing rows of a snapshot in one statement.
func (r *AllocationSnapshotRepository) InsertBatchRooms(ctx context.Context, exec sqlx.ExtContext, rows []models.BatchRoomAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	const query = `
INSERT INTO allocation_batch_rooms (snapshot_id, batch_key, subject_code, teacher_id, room_id, mode, position)
VALUES (:snapshot_id, :batch_key, :subject_code, :teacher_id, :room_id, :mode, :position)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, rows); err != nil {
		return fmt.Errorf("insert allocation batch rooms: %w", err)
	}
	return nil
}

// FindByID loads a snapshot header.
func (r *AllocationSnapshotRepository) FindByID(ctx context.Context, id string) (*models.AllocationSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM allocation_snapshots WHERE id = $1", snapshotColumns)
	var snapshot models.AllocationSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// List returns the most recent snapshots first.
func (r *AllocationSnapshotRepository) List(ctx context.Context, limit int) ([]models.AllocationSnapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM allocation_snapshots ORDER BY version DESC LIMIT %d", snapshotColumns, limit)
	var snapshots []models.AllocationSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query); err != nil {
		return nil, fmt.Errorf("list allocation snapshots: %w", err)
	}
	return snapshots, nil
}

// ListSubjectAssignments returns teacher rows in their stored order.
func (r *AllocationSnapshotRepository) ListSubjectAssignments(ctx context.Context, snapshotID string) ([]models.SubjectTeacherAssignment, error) {
	const query = `SELECT snapshot_id, subject_code, teacher_id, hours, is_priority, is_primary, position
FROM allocation_subject_teachers WHERE snapshot_id = $1 ORDER BY position ASC`
	var rows []models.SubjectTeacherAssignment
	if err := r.db.SelectContext(ctx, &rows, query, snapshotID); err != nil {
		return nil, fmt.Errorf("list allocation subject teachers: %w", err)
	}
	return rows, nil
}

// ListBatchRooms returns pairing rows in their stored order.
func (r *AllocationSnapshotRepository) ListBatchRooms(ctx context.Context, snapshotID string) ([]models.BatchRoomAssignment, error) {
	const query = `SELECT snapshot_id, batch_key, subject_code, teacher_id, room_id, mode, position
FROM allocation_batch_rooms WHERE snapshot_id = $1 ORDER BY position ASC`
	var rows []models.BatchRoomAssignment
	if err := r.db.SelectContext(ctx, &rows, query, snapshotID); err != nil {
		return nil, fmt.Errorf("list allocation batch rooms: %w", err)
	}
	return rows, nil
}

// UpdateStatus updates the status of a snapshot, merging meta into the stored document when given.
func (r *AllocationSnapshotRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AllocationSnapshotStatus, meta types.JSONText) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if len(meta) > 0 {
		query = `UPDATE allocation_snapshots SET status = $1, meta = COALESCE(meta, '{}'::jsonb) || $2::jsonb, updated_at = $3 WHERE id = $4`
		args = []interface{}{status, meta, now, id}
	} else {
		query = `UPDATE allocation_snapshots SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update allocation snapshot status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("allocation snapshot status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
