// Package memory keeps schools, tenders and scan sessions in process memory.
// It backs tests and single-instance deployments without a database.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
	"github.com/user/tender-scanner/internal/repository"
)

// Store implements the school, tender and session repositories.
type Store struct {
	mu sync.RWMutex

	schools       map[int64]domain.School
	nextSchoolID  int64
	tenders       map[string]domain.Tender // by hash
	nextTenderID  int64
	sessions      map[int64]*domain.ScanSession
	nextSessionID int64

	now func() time.Time
}

var (
	_ repository.SchoolRepository  = (*Store)(nil)
	_ repository.TenderRepository  = (*Store)(nil)
	_ repository.SessionRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		schools:  make(map[int64]domain.School),
		tenders:  make(map[string]domain.Tender),
		sessions: make(map[int64]*domain.ScanSession),
		now:      time.Now,
	}
}

// --- Schools ---

func (s *Store) ReplaceSchools(ctx context.Context, schools []domain.School) ([]domain.School, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schools = make(map[int64]domain.School, len(schools))
	s.nextSchoolID = 0

	created := make([]domain.School, 0, len(schools))
	for _, sc := range schools {
		s.nextSchoolID++
		sc.ID = s.nextSchoolID
		sc.DetectedPlatforms = append([]string{}, sc.DetectedPlatforms...)
		s.schools[sc.ID] = sc
		created = append(created, sc)
	}
	return created, nil
}

func (s *Store) ListSchools(ctx context.Context, filter domain.SchoolFilter) ([]domain.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.School, 0)
	for _, sc := range s.schools {
		if filter.Matches(&sc) {
			out = append(out, copySchool(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetSchool(ctx context.Context, id int64) (*domain.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.schools[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := copySchool(sc)
	return &c, nil
}

func (s *Store) AddDetectedPlatforms(ctx context.Context, id int64, tags []platform.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.schools[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, t := range tags {
		if !slices.Contains(sc.DetectedPlatforms, t.String()) {
			sc.DetectedPlatforms = append(sc.DetectedPlatforms, t.String())
		}
	}
	s.schools[id] = sc
	return nil
}

func (s *Store) GeographicData(ctx context.Context) (*domain.GeographicData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.School, 0, len(s.schools))
	for _, sc := range s.schools {
		all = append(all, sc)
	}
	return domain.GeographicDataFrom(all), nil
}

func copySchool(sc domain.School) domain.School {
	sc.DetectedPlatforms = append([]string{}, sc.DetectedPlatforms...)
	return sc
}

// --- Tenders ---

func (s *Store) SaveTenders(ctx context.Context, tenders []domain.Tender) (int, error) {
	if len(tenders) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range tenders {
		if existing, ok := s.tenders[t.Hash]; ok {
			t.ID = existing.ID
			t.CreatedAt = existing.CreatedAt
		} else {
			s.nextTenderID++
			t.ID = s.nextTenderID
			t.CreatedAt = now
		}
		s.tenders[t.Hash] = t
	}
	return len(tenders), nil
}

func (s *Store) ListTenders(ctx context.Context, filter domain.TenderFilter) ([]domain.Tender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Tender, 0)
	for _, t := range s.tenders {
		if filter.Matches(&t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) ClearTenders(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenders = make(map[string]domain.Tender)
	s.nextTenderID = 0
	return nil
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, session *domain.ScanSession) (*domain.ScanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	stored := session.Clone()
	stored.ID = s.nextSessionID
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.now()
	}
	s.sessions[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*domain.ScanSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return stored.Clone(), nil
}

func (s *Store) UpdateSession(ctx context.Context, id int64, update domain.SessionUpdate) (*domain.ScanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := stored.Clone()
	if err := domain.ApplyUpdate(next, update); err != nil {
		return nil, err
	}
	s.sessions[id] = next
	return next.Clone(), nil
}
