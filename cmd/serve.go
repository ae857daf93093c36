package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/g5/dss-engine/internal/api"
	"github.com/g5/dss-engine/internal/jobs"
	"github.com/g5/dss-engine/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tracker := jobs.NewTracker(map[model.JobDomain]jobs.PoolConfig{
			model.DomainSegmentation: {Workers: cfg.Jobs.Segmentation.Workers, QueueDepth: cfg.Jobs.Segmentation.QueueDepth},
			model.DomainRules:        {Workers: cfg.Jobs.Rules.Workers, QueueDepth: cfg.Jobs.Rules.QueueDepth},
			model.DomainPolicy:       {Workers: cfg.Jobs.Policy.Workers, QueueDepth: cfg.Jobs.Policy.QueueDepth},
		})
		defer tracker.Close()

		handler := api.NewHandler(st, tracker, cfg.Basket, cfg.Policy)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.NewRouter(handler, cfg.Server),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
