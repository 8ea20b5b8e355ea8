package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/invision-ai/invision/internal/api"
	"github.com/invision-ai/invision/internal/config"
	"github.com/invision-ai/invision/internal/jobs"
)

var serveHost string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background job runner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, serve)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "address to bind")
}

func serve(ctx context.Context, a *app) error {
	startTime := time.Now()
	logger := a.logger
	logger.Info("starting invision", "version", config.Version, "data_dir", a.cfg.DataDir())

	database, err := a.DB()
	if err != nil {
		return err
	}
	repo := jobs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(ctx, repo, api.AuthTokenKey)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	store, err := a.Store(ctx)
	if err != nil {
		return err
	}
	annotator, err := a.Annotator(ctx, store)
	if err != nil {
		return err
	}
	analyzer, err := a.Analyzer(store)
	if err != nil {
		return err
	}
	publisher, err := a.Publisher()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                    INVISION v%-28s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://%-37s ║\n", fmt.Sprintf("%s:%d", serveHost, a.cfg.Port()))
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Metadata:   %-45s ║\n", a.cfg.MetadataBackend())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	jobSvc := jobs.NewService(repo, store, logger)
	jobSvc.SetMediaRoot(a.cfg.MediaRoot())
	runner := jobs.NewRunner(repo, annotator, analyzer, publisher, a.cfg.PollInterval(), logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runner.Start(runCtx)

	apiServer := api.NewServer(api.ServerConfig{
		Host:      serveHost,
		Port:      a.cfg.Port(),
		Jobs:      jobSvc,
		Rules:     store,
		Analyzer:  analyzer,
		Runner:    runner,
		Tokens:    repo,
		RateLimit: a.cfg.RateLimit(),
		MediaRoot: a.cfg.MediaRoot(),
		Logger:    logger,
		StartTime: startTime,
		Version:   config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			return err
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
