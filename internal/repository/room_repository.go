package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-allocator/internal/models"
)

// RoomRepository reads ingested rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new repository instance.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns rooms in ingestion order.
func (r *RoomRepository) List(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT room_id, room_no, name, capacity, room_type, equipment, position, created_at, updated_at FROM rooms ORDER BY position ASC, room_id ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
