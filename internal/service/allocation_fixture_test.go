package service

import (
	"context"
	"testing"
	"time"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/models"
)

func fixtureRoster() *LoadedRoster {
	divisions := []models.Division{
		{ID: "d-1", Name: "Division A", Semester: 3, Strength: 60},
		{ID: "d-2", Name: "Division B", Semester: 3, Strength: 45},
	}
	return &LoadedRoster{
		Roster: allocator.Roster{
			Teachers: []models.Teacher{
				{MISID: "T1", Name: "Asha Rao", SubjectPreferences: []string{"CS301"}, MaxHours: 6},
				{MISID: "T2", Name: "Vikram Das", SubjectPreferences: []string{"CS302"}, MaxHours: 12},
			},
			Subjects: []models.Subject{
				{Code: "CS301", Name: "Operating Systems", Semester: 3, TotalHours: 4},
				{Code: "CS302", Name: "Networks Lab", Semester: 3, TotalHours: 3, RequiresLab: true},
			},
			Rooms: []models.Room{
				{ID: "r-1", RoomNo: "A-101", Capacity: 60, RoomType: models.RoomTypeClassroom},
				{ID: "r-2", RoomNo: "L-201", Capacity: 30, RoomType: models.RoomTypeLab},
				{ID: "r-3", RoomNo: "A-102", Capacity: 40, RoomType: models.RoomTypeClassroom},
			},
			Batches: allocator.BatchesFromDivisions(divisions),
		},
		Divisions: divisions,
		Semester:  3,
		LoadedAt:  time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

type rosterProviderStub struct {
	roster    *LoadedRoster
	err       error
	loads     int
	reloads   int
	semesters []int
}

func (s *rosterProviderStub) Load(ctx context.Context, semester int) (*LoadedRoster, error) {
	s.loads++
	s.semesters = append(s.semesters, semester)
	if s.err != nil {
		return nil, s.err
	}
	return s.roster, nil
}

func (s *rosterProviderStub) Reload(ctx context.Context, semester int) (*LoadedRoster, error) {
	s.reloads++
	s.semesters = append(s.semesters, semester)
	if s.err != nil {
		return nil, s.err
	}
	return s.roster, nil
}

func startedAllocationService(t *testing.T) *AllocationService {
	t.Helper()
	svc := NewAllocationService(&rosterProviderStub{roster: fixtureRoster()}, nil, nil, nil)
	if _, err := svc.Start(context.Background(), 3); err != nil {
		t.Fatalf("start session: %v", err)
	}
	return svc
}
