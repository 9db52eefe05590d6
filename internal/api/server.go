package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/config"
	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/monitoring"
)

// ScanService starts scans and reports their progress.
type ScanService interface {
	StartScan(ctx context.Context, schoolIDs []int64) (*domain.ScanSession, error)
	GetSession(ctx context.Context, id int64) (*domain.ScanSession, error)
}

// CatalogService manages the school registry and serves tenders.
type CatalogService interface {
	ImportDataset(ctx context.Context, r io.Reader, filename, contentType string) ([]domain.School, error)
	ListSchools(ctx context.Context, filter domain.SchoolFilter) ([]domain.School, error)
	GeographicData(ctx context.Context) (*domain.GeographicData, error)
	ListTenders(ctx context.Context, filter domain.TenderFilter) ([]domain.TenderView, error)
}

// HealthCheck pings one backend.
type HealthCheck func(ctx context.Context) error

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	scans      ScanService
	catalog    CatalogService
	checks     map[string]HealthCheck
	limiter    *clientLimiter
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, scans ScanService, catalog CatalogService, checks map[string]HealthCheck, m *monitoring.Metrics, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{
		config:  cfg,
		scans:   scans,
		catalog: catalog,
		checks:  checks,
		limiter: newClientLimiter(cfg.ScanRatePerMinute),
		metrics: m,
		logger:  l,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
