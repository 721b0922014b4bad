package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/server"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/telemetry"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session API server",
	Long: `Starts the HTTP API used by the web page. Each login gets a session token kept
in a cookie; the matching session file lives in --data-dir.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := MustFromContext(cmd.Context())
		cfg := app.Config

		shutdownTelemetry, err := telemetry.Init(cmd.Context(), cfg.Observability, Version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("Warning: %v", err)
			}
		}()

		handler, err := newAPIHandler(cmd.Context(), app)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			log.Printf("Session files in %s", cfg.DataDir)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

// newAPIHandler wires the session registry, backed by the shared cache when one is configured,
// into the API router.
func newAPIHandler(ctx context.Context, app *App) (http.Handler, error) {
	opts, err := app.sessionOptions(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewServerMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create server metrics: %w", err)
	}
	regCfg := server.RegistryConfig{
		DataDir:        app.Config.DataDir,
		Size:           app.Config.SessionCacheSize,
		SessionOptions: opts,
		Metrics:        metrics,
	}
	repo, err := app.CacheRepository(ctx)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		regCfg.Purger = repo
		log.Printf("Using shared result cache")
	}

	reg, err := server.NewRegistry(regCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}
	return server.NewRouter(server.RouterOptions{Registry: reg, Metrics: metrics}), nil
}

func init() {
	serveCmd.Flags().String("addr", "localhost:5986", "Listen address (env: OHMYDDL_SERVER_ADDR)")
	serveCmd.Flags().String("data-dir", "data", "Directory for per-token session files (env: OHMYDDL_DATA_DIR)")
	serveCmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector host:port; empty disables export (env: OHMYDDL_OTLP_ENDPOINT)")
}
