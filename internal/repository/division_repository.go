package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

// DivisionRepository reads ingested divisions.
type DivisionRepository struct {
	db *sqlx.DB
}

// NewDivisionRepository creates a new repository instance.
func NewDivisionRepository(db *sqlx.DB) *DivisionRepository {
	return &DivisionRepository{db: db}
}

// List returns divisions in ingestion order, optionally limited to a semester.
func (r *DivisionRepository) List(ctx context.Context, semester int) ([]models.Division, error) {
	query := "SELECT id, name, semester, strength, batch_count, position, created_at FROM divisions"
	var args []interface{}
	if semester > 0 {
		query += " WHERE semester = $1"
		args = append(args, semester)
	}
	query += " ORDER BY position ASC, name ASC"

	var divisions []models.Division
	if err := r.db.SelectContext(ctx, &divisions, query, args...); err != nil {
		return nil, fmt.Errorf("list divisions: %w", err)
	}
	return divisions, nil
}
