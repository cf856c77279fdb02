package timetable

// Teacher is the teacher record sent to the generator.
type Teacher struct {
	ID             string `json:"id"`
	MISID          string `json:"mis_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Designation    string `json:"designation"`
	MaxHours       int    `json:"max_hours"`
	Shift          string `json:"shift"`
	PreferredShift string `json:"preferred_shift"`
}

// Subject carries the ordered teacher ids allocated to the subject.
type Subject struct {
	ID               string   `json:"id"`
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	Department       string   `json:"department"`
	Semester         int      `json:"semester"`
	WeeklyLoad       string   `json:"weekly_load"`
	TotalHours       int      `json:"total_hours"`
	AssignedTeachers []string `json:"assignedTeachers"`
	RequiresLab      bool     `json:"requires_lab"`
}

type Room struct {
	ID        string `json:"id"`
	RoomNo    string `json:"room_no"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	RoomType  string `json:"room_type"`
	Equipment string `json:"equipment"`
}

type Division struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Semester int    `json:"semester"`
	Strength int    `json:"strength"`
}

// BatchRoom is the room allocated to a batch-subject pairing.
type BatchRoom struct {
	BatchKey    string  `json:"batch_key"`
	SubjectCode string  `json:"subject_code"`
	TeacherID   *string `json:"teacher_id"`
	RoomID      *string `json:"room_id"`
	Mode        string  `json:"mode"`
}

// GenerateRequest is the body of POST /generate-timetable.
type GenerateRequest struct {
	SnapshotID string      `json:"snapshot_id"`
	Version    int         `json:"version"`
	Teachers   []Teacher   `json:"teachers"`
	Subjects   []Subject   `json:"subjects"`
	Rooms      []Room      `json:"rooms"`
	Divisions  []Division  `json:"divisions"`
	BatchRooms []BatchRoom `json:"batch_rooms"`
}
