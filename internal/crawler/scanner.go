package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/monitoring"
	"github.com/user/tender-scanner/internal/platform"
)

// URLFailure records a candidate URL that yielded nothing because it could
// not be fetched or parsed.
type URLFailure struct {
	URL      string
	Platform platform.Platform
	Err      error
}

// SchoolResult is the outcome of scanning every candidate URL of a school.
type SchoolResult struct {
	Tenders  []domain.Tender
	Failures []URLFailure
	// HostedOn lists portals the school's own site turned out to live on.
	HostedOn []platform.Platform
}

// Scanner crawls the candidate URLs of one school at a time.
type Scanner struct {
	fetcher   Fetcher
	extractor *Extractor
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

func NewScanner(f Fetcher, e *Extractor, m *monitoring.Metrics, l *zap.Logger) *Scanner {
	if l == nil {
		l = zap.NewNop()
	}
	if e == nil {
		e = NewExtractor(l)
	}
	return &Scanner{fetcher: f, extractor: e, metrics: m, logger: l}
}

// ScanSchool fetches every candidate URL of the school in order. A URL
// that fails contributes no tenders and is reported in Failures; only a
// failure to start the fetch session or a cancelled context is returned as
// an error.
func (s *Scanner) ScanSchool(ctx context.Context, school *domain.School) (*SchoolResult, error) {
	result := &SchoolResult{}
	candidates := platform.Resolve(school.SitoWeb, school.CodiceMeccanografico, school.DetectedPlatforms)
	if len(candidates) == 0 {
		s.logger.Debug("no candidate URLs", zap.Int64("school_id", school.ID))
		return result, nil
	}

	session, err := s.fetcher.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open fetch session: %w", err)
	}

	seen := make(map[string]struct{})
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := platform.Detect(c.URL)
		if c.Role == platform.OwnSite && p.IsPortal() {
			result.HostedOn = append(result.HostedOn, p)
		}

		tenders, err := s.scanURL(session, school.ID, c.URL, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("failed to scan url",
				zap.Int64("school_id", school.ID),
				zap.String("url", c.URL),
				zap.String("platform", p.String()),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, URLFailure{URL: c.URL, Platform: p, Err: err})
			continue
		}

		for _, t := range tenders {
			if _, dup := seen[t.Hash]; dup {
				continue
			}
			seen[t.Hash] = struct{}{}
			result.Tenders = append(result.Tenders, t)
			s.metrics.IncTendersFound(t.Platform.String(), string(t.Type))
		}
	}

	s.logger.Info("school scanned",
		zap.Int64("school_id", school.ID),
		zap.String("code", school.CodiceMeccanografico),
		zap.Int("urls", len(candidates)),
		zap.Int("failed_urls", len(result.Failures)),
		zap.Int("tenders", len(result.Tenders)),
	)
	return result, nil
}

func (s *Scanner) scanURL(session FetchSession, schoolID int64, rawURL string, p platform.Platform) ([]domain.Tender, error) {
	start := time.Now()
	page, err := session.Fetch(rawURL)
	if err != nil {
		s.metrics.ObserveFetch(p.String(), "failure", time.Since(start))
		return nil, err
	}
	s.metrics.ObserveFetch(p.String(), "success", time.Since(start))

	return s.extractor.Extract(schoolID, rawURL, p, page.Body)
}
