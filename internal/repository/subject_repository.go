package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

// SubjectRepository reads ingested subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects in ingestion order, optionally limited to a semester.
func (r *SubjectRepository) List(ctx context.Context, semester int) ([]models.Subject, error) {
	query := "SELECT code, name, department, semester, weekly_load, total_hours, requires_lab, position, created_at, updated_at FROM subjects"
	var args []interface{}
	if semester > 0 {
		query += " WHERE semester = $1"
		args = append(args, semester)
	}
	query += " ORDER BY position ASC, code ASC"

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}
