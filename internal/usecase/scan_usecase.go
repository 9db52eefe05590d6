package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/crawler"
	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/monitoring"
	"github.com/user/tender-scanner/internal/repository"
)

var (
	// ErrNoSchools rejects a scan request without school ids.
	ErrNoSchools = errors.New("at least one school id is required")
	// ErrShuttingDown rejects new scans once Shutdown has been called.
	ErrShuttingDown = errors.New("scan manager is shutting down")
)

const (
	defaultMaxScanDuration = time.Hour
	// storeTimeout bounds session and tender writes that must outlive a
	// cancelled scan context.
	storeTimeout = 30 * time.Second
)

// SchoolScanner crawls one school. *crawler.Scanner implements it.
type SchoolScanner interface {
	ScanSchool(ctx context.Context, school *domain.School) (*crawler.SchoolResult, error)
}

// ScanConfig tunes the background scan.
type ScanConfig struct {
	// Workers is the number of schools scanned concurrently per session.
	Workers int
	// MaxDuration caps one session; zero means one hour.
	MaxDuration time.Duration
}

// ScanManager starts scan sessions and runs them in the background.
type ScanManager struct {
	schools  repository.SchoolRepository
	tenders  repository.TenderRepository
	sessions repository.SessionRepository
	scanner  SchoolScanner
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	cfg      ScanConfig
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScanManager(
	schools repository.SchoolRepository,
	tenders repository.TenderRepository,
	sessions repository.SessionRepository,
	scanner SchoolScanner,
	m *monitoring.Metrics,
	l *zap.Logger,
	cfg ScanConfig,
) *ScanManager {
	if l == nil {
		l = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxScanDuration
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ScanManager{
		schools:  schools,
		tenders:  tenders,
		sessions: sessions,
		scanner:  scanner,
		metrics:  m,
		logger:   l,
		cfg:      cfg,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// StartScan creates a running session and scans the schools in the
// background. It returns as soon as the session is stored.
func (m *ScanManager) StartScan(ctx context.Context, schoolIDs []int64) (*domain.ScanSession, error) {
	if len(schoolIDs) == 0 {
		return nil, ErrNoSchools
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}

	session, err := m.sessions.CreateSession(ctx, domain.NewScanSession(len(schoolIDs), m.now()))
	if err != nil {
		return nil, fmt.Errorf("create scan session: %w", err)
	}

	ids := uniqueIDs(schoolIDs)
	m.wg.Add(1)
	go m.run(session.ID, ids)

	m.logger.Info("scan started", zap.Int64("session_id", session.ID), zap.Int("schools", len(ids)))
	return session, nil
}

func (m *ScanManager) GetSession(ctx context.Context, id int64) (*domain.ScanSession, error) {
	return m.sessions.GetSession(ctx, id)
}

// Wait blocks until every started session has finished or been abandoned.
func (m *ScanManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels in-flight sessions and waits for them to stop. Sessions
// interrupted this way stay running and must be treated as abandoned.
func (m *ScanManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ScanManager) run(sessionID int64, schoolIDs []int64) {
	defer m.wg.Done()
	m.metrics.SessionStarted()
	defer m.metrics.SessionFinished()

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.MaxDuration)
	defer cancel()

	logger := m.logger.With(zap.Int64("session_id", sessionID))
	found := newTenderSet()

	workers := min(m.cfg.Workers, len(schoolIDs))
	jobs := make(chan int64)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				m.scanOne(ctx, logger, sessionID, id, found)
			}
		}()
	}

feed:
	for _, id := range schoolIDs {
		select {
		case jobs <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer storeCancel()

	tenders := found.list()
	saved, err := m.tenders.SaveTenders(storeCtx, tenders)
	if err != nil {
		logger.Error("failed to persist tenders", zap.Int("tenders", len(tenders)), zap.Error(err))
	} else {
		logger.Info("tenders persisted", zap.Int("tenders", saved))
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("scan interrupted, session left running", zap.Error(err))
		return
	}

	completedAt := m.now()
	if _, err := m.sessions.UpdateSession(storeCtx, sessionID, domain.SessionUpdate{
		Status:      domain.StatusPtr(domain.SessionCompleted),
		CompletedAt: &completedAt,
	}); err != nil {
		logger.Error("failed to mark session completed", zap.Error(err))
		return
	}
	logger.Info("scan completed", zap.Int("tenders", len(tenders)))
}

// scanOne processes a single school and records its outcome on the session.
func (m *ScanManager) scanOne(ctx context.Context, logger *zap.Logger, sessionID, schoolID int64, found *tenderSet) {
	if ctx.Err() != nil {
		return
	}
	logger = logger.With(zap.Int64("school_id", schoolID))

	school, err := m.schools.GetSchool(ctx, schoolID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Debug("school not found, skipping")
		m.metrics.IncSchoolsScanned("skipped")
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.recordFailure(ctx, logger, sessionID, schoolID, err)
		return
	}

	m.updateSession(ctx, logger, sessionID, domain.SessionUpdate{
		Progress: map[int64]domain.SchoolProgress{schoolID: {Status: domain.SchoolRunning}},
	})

	result, err := m.scanSafely(ctx, school)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.recordFailure(ctx, logger, sessionID, schoolID, err)
		return
	}

	found.add(result.Tenders)

	if len(result.HostedOn) > 0 {
		if err := m.schools.AddDetectedPlatforms(ctx, schoolID, result.HostedOn); err != nil {
			logger.Warn("failed to store detected platforms", zap.Error(err))
		}
	}

	n := len(result.Tenders)
	m.updateSession(ctx, logger, sessionID, domain.SessionUpdate{
		CompletedSchoolsDelta: 1,
		TotalTendersDelta:     n,
		Progress: map[int64]domain.SchoolProgress{
			schoolID: {Status: domain.SchoolCompleted, TendersFound: n},
		},
	})
	m.metrics.IncSchoolsScanned(string(domain.SchoolCompleted))
	logger.Debug("school progress recorded", zap.Int("tenders", n))
}

// scanSafely turns a panic inside the scanner into an error for this school.
func (m *ScanManager) scanSafely(ctx context.Context, school *domain.School) (result *crawler.SchoolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scanning school: %v", r)
		}
	}()
	return m.scanner.ScanSchool(ctx, school)
}

func (m *ScanManager) recordFailure(ctx context.Context, logger *zap.Logger, sessionID, schoolID int64, cause error) {
	logger.Error("school scan failed", zap.Error(cause))
	m.metrics.IncSchoolsScanned(string(domain.SchoolError))
	m.updateSession(ctx, logger, sessionID, domain.SessionUpdate{
		Progress: map[int64]domain.SchoolProgress{
			schoolID: {Status: domain.SchoolError, Error: cause.Error()},
		},
	})
}

func (m *ScanManager) updateSession(ctx context.Context, logger *zap.Logger, sessionID int64, u domain.SessionUpdate) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if _, err := m.sessions.UpdateSession(storeCtx, sessionID, u); err != nil {
		logger.Error("failed to update scan session", zap.Error(err))
	}
}

// uniqueIDs drops repeated ids, keeping the first occurrence.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// tenderSet accumulates tenders across workers, keeping the first tender
// seen for each hash.
type tenderSet struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	tenders []domain.Tender
}

func newTenderSet() *tenderSet {
	return &tenderSet{seen: make(map[string]struct{})}
}

func (s *tenderSet) add(tenders []domain.Tender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tenders {
		if _, ok := s.seen[t.Hash]; ok {
			continue
		}
		s.seen[t.Hash] = struct{}{}
		s.tenders = append(s.tenders, t)
	}
}

func (s *tenderSet) list() []domain.Tender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Tender(nil), s.tenders...)
}
