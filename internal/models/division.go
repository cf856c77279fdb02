package models

import "time"

// Division represents a class section of students in a semester.
type Division struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Semester   int       `db:"semester" json:"semester"`
	Strength   int       `db:"strength" json:"strength"`
	BatchCount int       `db:"batch_count" json:"batch_count"`
	Position   int       `db:"position" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SubBatch is one half of a division used for lab sessions.
type SubBatch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Students int    `json:"students"`
}

// Batch is the allocation view of a division.
type Batch struct {
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	Division   string     `json:"division"`
	Semester   int        `json:"semester"`
	Strength   int        `json:"strength"`
	SubBatches []SubBatch `json:"sub_batches"`
}

// LargestSubBatch returns the student count of the biggest sub-batch.
func (b Batch) LargestSubBatch() int {
	largest := 0
	for _, sb := range b.SubBatches {
		if sb.Students > largest {
			largest = sb.Students
		}
	}
	if largest == 0 && b.Strength > 0 {
		return (b.Strength + 1) / 2
	}
	return largest
}
