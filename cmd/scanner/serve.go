package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/api"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to initialise service", zap.Error(err))
				return err
			}
			defer a.close()

			server := api.NewServer(cfg, a.scans, a.catalog, a.checks, a.metrics, logger)

			serverErr := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()
			logger.Info("server started", zap.String("port", cfg.ServerPort))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-serverErr:
				logger.Error("could not start server", zap.Error(err))
				return err
			}

			logger.Info("shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				logger.Error("server forced to shutdown", zap.Error(err))
			}
			if err := a.scans.Shutdown(ctx); err != nil {
				logger.Warn("scan sessions did not stop in time", zap.Error(err))
			}

			logger.Info("server exiting")
			return nil
		},
	}
}
