package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/models"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
)

const rosterCachePrefix = "roster"

type teacherLister interface {
	List(ctx context.Context) ([]models.Teacher, error)
}

type subjectLister interface {
	List(ctx context.Context, semester int) ([]models.Subject, error)
}

type roomLister interface {
	List(ctx context.Context) ([]models.Room, error)
}

type divisionLister interface {
	List(ctx context.Context, semester int) ([]models.Division, error)
}

// LoadedRoster is the roster an allocation session is built from, plus the divisions behind its batches.
type LoadedRoster struct {
	allocator.Roster
	Divisions []models.Division `json:"divisions"`
	Semester  int               `json:"semester"`
	LoadedAt  time.Time         `json:"loaded_at"`
	Cached    bool              `json:"-"`
}

// RosterService reads the ingested roster, preferring the cache.
type RosterService struct {
	teachers  teacherLister
	subjects  subjectLister
	rooms     roomLister
	divisions divisionLister
	cache     *CacheService
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(teachers teacherLister, subjects subjectLister, rooms roomLister, divisions divisionLister, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		teachers:  teachers,
		subjects:  subjects,
		rooms:     rooms,
		divisions: divisions,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func rosterCacheKey(semester int) string {
	return fmt.Sprintf("%s:v1:semester:%d", rosterCachePrefix, semester)
}

// Load returns the roster for a semester (0 for all), reading through the cache.
func (s *RosterService) Load(ctx context.Context, semester int) (*LoadedRoster, error) {
	key := rosterCacheKey(semester)
	var cached LoadedRoster
	if s.cache.Get(ctx, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	roster, err := s.fetch(ctx, semester)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, roster, s.cacheTTL)
	return roster, nil
}

// Reload drops cached rosters and reads the database again.
func (s *RosterService) Reload(ctx context.Context, semester int) (*LoadedRoster, error) {
	if err := s.cache.Invalidate(ctx, rosterCachePrefix+":*"); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.Error(err))
	}
	roster, err := s.fetch(ctx, semester)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, rosterCacheKey(semester), roster, s.cacheTTL)
	return roster, nil
}

func (s *RosterService) fetch(ctx context.Context, semester int) (*LoadedRoster, error) {
	teachers, err := s.teachers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	subjects, err := s.subjects.List(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	divisions, err := s.divisions.List(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load divisions")
	}

	s.logger.Info("roster loaded",
		zap.Int("semester", semester),
		zap.Int("teachers", len(teachers)),
		zap.Int("subjects", len(subjects)),
		zap.Int("rooms", len(rooms)),
		zap.Int("divisions", len(divisions)),
	)

	return &LoadedRoster{
		Roster: allocator.Roster{
			Teachers: teachers,
			Subjects: subjects,
			Rooms:    rooms,
			Batches:  allocator.BatchesFromDivisions(divisions),
		},
		Divisions: divisions,
		Semester:  semester,
		LoadedAt:  time.Now().UTC(),
	}, nil
}
