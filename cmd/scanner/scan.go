package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/domain"
)

const progressInterval = 2 * time.Second

func scanCommand() *cobra.Command {
	var (
		schoolIDs []int64
		dataset   string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan session in the foreground",
		Long: `Scans the given schools and logs progress until the session completes.
With --dataset the registry is imported first; without --schools every stored school is scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if dataset != "" {
				if err := importDataset(ctx, a, dataset); err != nil {
					return err
				}
			}

			if len(schoolIDs) == 0 {
				schools, err := a.catalog.ListSchools(ctx, domain.SchoolFilter{})
				if err != nil {
					return err
				}
				for _, s := range schools {
					schoolIDs = append(schoolIDs, s.ID)
				}
			}

			session, err := a.scans.StartScan(ctx, schoolIDs)
			if err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				a.scans.Wait()
				close(done)
			}()

			ticker := time.NewTicker(progressInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return reportSession(a, session.ID)
				case <-ticker.C:
					if s, err := a.scans.GetSession(context.Background(), session.ID); err == nil {
						logger.Info("scan progress",
							zap.Int("completed", s.CompletedSchools),
							zap.Int("total", s.TotalSchools),
							zap.Int("tenders", s.TotalTenders),
						)
					}
				case <-ctx.Done():
					logger.Warn("interrupted, stopping scan")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return a.scans.Shutdown(shutdownCtx)
				}
			}
		},
	}
	cmd.Flags().Int64SliceVar(&schoolIDs, "schools", nil, "comma-separated school ids to scan")
	cmd.Flags().StringVar(&dataset, "dataset", "", "CSV or JSON registry to import before scanning")
	return cmd
}

func importDataset(ctx context.Context, a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	_, err = a.catalog.ImportDataset(ctx, f, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)))
	return err
}

func reportSession(a *app, id int64) error {
	s, err := a.scans.GetSession(context.Background(), id)
	if err != nil {
		return err
	}
	failed := 0
	for _, p := range s.Progress {
		if p.Status == domain.SchoolError {
			failed++
		}
	}
	a.logger.Info("scan finished",
		zap.Int64("session_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.Int("completed", s.CompletedSchools),
		zap.Int("failed", failed),
		zap.Int("tenders", s.TotalTenders),
	)
	return nil
}
