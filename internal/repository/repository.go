package repository

import (
	"context"
	"errors"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
)

// ErrNotFound is returned by point lookups for unknown ids.
var ErrNotFound = errors.New("not found")

// SchoolRepository stores the school registry.
type SchoolRepository interface {
	// ReplaceSchools drops every stored school and inserts the given ones,
	// assigning fresh ids.
	ReplaceSchools(ctx context.Context, schools []domain.School) ([]domain.School, error)
	// ListSchools returns the schools matching the filter, ordered by id.
	ListSchools(ctx context.Context, filter domain.SchoolFilter) ([]domain.School, error)
	// GetSchool returns ErrNotFound for unknown ids.
	GetSchool(ctx context.Context, id int64) (*domain.School, error)
	// AddDetectedPlatforms merges tags into the school's detected set.
	AddDetectedPlatforms(ctx context.Context, id int64, tags []platform.Platform) error
	GeographicData(ctx context.Context) (*domain.GeographicData, error)
}

// TenderRepository stores extracted tenders keyed by their fingerprint.
type TenderRepository interface {
	// SaveTenders upserts on the tender hash and returns how many rows were
	// written. An empty slice is a no-op.
	SaveTenders(ctx context.Context, tenders []domain.Tender) (int, error)
	// ListTenders returns matching tenders, newest first.
	ListTenders(ctx context.Context, filter domain.TenderFilter) ([]domain.Tender, error)
	ClearTenders(ctx context.Context) error
}

// SessionRepository is the progress store for scan sessions. UpdateSession
// must apply domain.ApplyUpdate against the currently stored value so that
// concurrent writers to disjoint fields never lose each other's updates.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.ScanSession) (*domain.ScanSession, error)
	GetSession(ctx context.Context, id int64) (*domain.ScanSession, error)
	UpdateSession(ctx context.Context, id int64, update domain.SessionUpdate) (*domain.ScanSession, error)
}
