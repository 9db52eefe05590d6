package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/ingest"
	"github.com/user/tender-scanner/internal/repository"
)

// Catalog serves the school registry and the stored tenders.
type Catalog struct {
	schools repository.SchoolRepository
	tenders repository.TenderRepository
	ingest  ingest.Options
	logger  *zap.Logger
}

func NewCatalog(schools repository.SchoolRepository, tenders repository.TenderRepository, opts ingest.Options, l *zap.Logger) *Catalog {
	if l == nil {
		l = zap.NewNop()
	}
	return &Catalog{schools: schools, tenders: tenders, ingest: opts, logger: l}
}

// ImportDataset decodes a dataset and replaces the stored registry with it.
// Tenders of the previous registry are cleared since their school ids no
// longer resolve.
func (c *Catalog) ImportDataset(ctx context.Context, r io.Reader, filename, contentType string) ([]domain.School, error) {
	schools, err := ingest.Decode(r, filename, contentType, c.ingest)
	if err != nil {
		return nil, err
	}
	created, err := c.schools.ReplaceSchools(ctx, schools)
	if err != nil {
		return nil, fmt.Errorf("replace schools: %w", err)
	}
	if err := c.tenders.ClearTenders(ctx); err != nil {
		return nil, fmt.Errorf("clear tenders: %w", err)
	}
	c.logger.Info("dataset imported", zap.String("file", filename), zap.Int("schools", len(created)))
	return created, nil
}

func (c *Catalog) ListSchools(ctx context.Context, filter domain.SchoolFilter) ([]domain.School, error) {
	return c.schools.ListSchools(ctx, filter)
}

func (c *Catalog) GeographicData(ctx context.Context) (*domain.GeographicData, error) {
	return c.schools.GeographicData(ctx)
}

// ListTenders returns matching tenders newest first, each with a summary of
// its school, or a nil school when it is no longer stored.
func (c *Catalog) ListTenders(ctx context.Context, filter domain.TenderFilter) ([]domain.TenderView, error) {
	tenders, err := c.tenders.ListTenders(ctx, filter)
	if err != nil {
		return nil, err
	}

	summaries := make(map[int64]*domain.SchoolSummary)
	views := make([]domain.TenderView, 0, len(tenders))
	for _, t := range tenders {
		summary, seen := summaries[t.SchoolID]
		if !seen {
			school, err := c.schools.GetSchool(ctx, t.SchoolID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
			case err != nil:
				return nil, fmt.Errorf("load school %d: %w", t.SchoolID, err)
			default:
				summary = school.Summary()
			}
			summaries[t.SchoolID] = summary
		}
		views = append(views, domain.TenderView{Tender: t, School: summary})
	}
	return views, nil
}
