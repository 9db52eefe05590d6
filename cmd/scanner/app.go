package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/adapter/memory"
	"github.com/user/tender-scanner/internal/adapter/postgres"
	redisadapter "github.com/user/tender-scanner/internal/adapter/redis"
	"github.com/user/tender-scanner/internal/api"
	"github.com/user/tender-scanner/internal/config"
	"github.com/user/tender-scanner/internal/crawler"
	"github.com/user/tender-scanner/internal/ingest"
	"github.com/user/tender-scanner/internal/monitoring"
	"github.com/user/tender-scanner/internal/proxy"
	"github.com/user/tender-scanner/internal/repository"
	"github.com/user/tender-scanner/internal/usecase"
	"github.com/user/tender-scanner/pkg/logger"
)

// app is the wired service shared by the serve and scan commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	scans   *usecase.ScanManager
	catalog *usecase.Catalog
	checks  map[string]api.HealthCheck
	closers []func()
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("could not load config: %w", err)
	}
	l, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

func newApp(ctx context.Context, cfg *config.Config, l *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  l,
		metrics: monitoring.NewMetrics(prometheus.DefaultRegisterer),
		checks:  make(map[string]api.HealthCheck),
	}

	var (
		mem  *memory.Store
		pool *pgxpool.Pool
	)
	memStore := func() *memory.Store {
		if mem == nil {
			mem = memory.NewStore()
		}
		return mem
	}
	pgPool := func() (*pgxpool.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required")
		}
		p, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, p); err != nil {
			p.Close()
			return nil, err
		}
		pool = p
		a.closers = append(a.closers, p.Close)
		a.checks["postgres"] = p.Ping
		return pool, nil
	}

	var (
		schools  repository.SchoolRepository
		tenders  repository.TenderRepository
		sessions repository.SessionRepository
	)

	switch cfg.StorageDriver {
	case "memory":
		schools, tenders = memStore(), memStore()
	case "postgres":
		p, err := pgPool()
		if err != nil {
			a.close()
			return nil, err
		}
		schools, tenders = postgres.NewSchoolRepo(p), postgres.NewTenderRepo(p)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.SessionStore {
	case "memory":
		sessions = memStore()
	case "postgres":
		p, err := pgPool()
		if err != nil {
			a.close()
			return nil, err
		}
		sessions = postgres.NewSessionRepo(p)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		sessions = redisadapter.NewSessionRepo(client, cfg.SessionTTL())
	default:
		a.close()
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}

	fetcher := crawler.NewCollyFetcher(crawler.FetcherConfig{
		Timeout:     cfg.FetchTimeoutDuration(),
		Delay:       cfg.RequestDelay(),
		MaxBodySize: cfg.MaxBodyBytes,
	}, proxy.NewManager(cfg.ProxyList(), cfg.UserAgentList()), l)
	scanner := crawler.NewScanner(fetcher, crawler.NewExtractor(l), a.metrics, l)

	a.scans = usecase.NewScanManager(schools, tenders, sessions, scanner, a.metrics, l, usecase.ScanConfig{
		Workers:     cfg.ScanWorkers,
		MaxDuration: cfg.MaxScanDurationTimeout(),
	})
	a.catalog = usecase.NewCatalog(schools, tenders, ingest.Options{Region: cfg.IngestRegion}, l)

	l.Info("service wired",
		zap.String("storage", cfg.StorageDriver),
		zap.String("sessions", cfg.SessionStore),
		zap.Int("scan_workers", cfg.ScanWorkers),
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
