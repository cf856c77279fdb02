package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

const teacherColumns = `mis_id, name, email, designation, subject_preferences, max_hours, shift, preferred_shift, position, created_at, updated_at`

// TeacherRepository reads ingested teachers.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository creates a new repository instance.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns every teacher in ingestion order.
func (r *TeacherRepository) List(ctx context.Context) ([]models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers ORDER BY position ASC, mis_id ASC", teacherColumns)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	for i := range teachers {
		teachers[i].NormalizePreferences()
	}
	return teachers, nil
}

// FindByMISID returns a teacher by MIS id.
func (r *TeacherRepository) FindByMISID(ctx context.Context, misID string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE mis_id = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, misID); err != nil {
		return nil, err
	}
	teacher.NormalizePreferences()
	return &teacher, nil
}
