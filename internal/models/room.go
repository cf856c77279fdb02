package models

import "time"

// RoomType categorises rooms for compatibility checks.
type RoomType string

const (
	RoomTypeClassroom RoomType = "Classroom"
	RoomTypeLab       RoomType = "Lab"
)

// Room represents a teaching space.
type Room struct {
	ID        string    `db:"room_id" json:"room_id"`
	RoomNo    string    `db:"room_no" json:"room_no"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	RoomType  RoomType  `db:"room_type" json:"room_type"`
	Equipment string    `db:"equipment" json:"equipment"`
	Position  int       `db:"position" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Label is the human readable room reference used in messages.
func (r Room) Label() string {
	if r.RoomNo != "" {
		return r.RoomNo
	}
	return r.ID
}

// IsLab reports whether the room is a laboratory.
func (r Room) IsLab() bool {
	return r.RoomType == RoomTypeLab
}
