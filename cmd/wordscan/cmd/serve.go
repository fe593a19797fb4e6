package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/wordscan/internal/config"
	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/server"
	"github.com/MeKo-Tech/wordscan/internal/session"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for address scanning",
	Long: `Start an HTTP server that scans uploads and live camera frames for
three-word addresses.

The server provides the following endpoints:
  POST /scan/image - Scan an uploaded image (form field "image")
  POST /scan/pdf   - Scan an uploaded PDF (form field "pdf")
  GET  /scan/live  - WebSocket: stream frames, receive scan state
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  wordscan serve
  wordscan serve --port 8080
  wordscan serve --host 0.0.0.0 --sessions 4 --requests-per-minute 30`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Server)

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger := slog.Default()
	client, err := cfg.NewValidationClient()
	if err != nil {
		return err
	}
	sessCfg := cfg.SessionConfig(client, logger)
	if pool := cfg.NewRecognitionPool(logger); pool != nil {
		defer pool.Close()
		sessCfg.Executor = pool
	}
	factory, err := session.NewFactory(sessCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize scanner: %w", err)
	}

	scanServer, err := server.NewServer(serverConfig(cfg, factory, cfg.NewImporter(client, logger), logger))
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() { _ = scanServer.Close() }()

	mux := http.NewServeMux()
	scanServer.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Starting scan server", "addr", addr, "sessions", cfg.Server.Sessions)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdown)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdown)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := scanServer.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

// applyServeFlags overrides server settings with explicitly set flags.
func applyServeFlags(cmd *cobra.Command, sc *config.ServerConfig) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		sc.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		sc.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		sc.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-upload-size") {
		sc.MaxUploadMB, _ = flags.GetInt("max-upload-size")
	}
	if flags.Changed("timeout") {
		sc.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("shutdown-timeout") {
		sc.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}
	if flags.Changed("sessions") {
		sc.Sessions, _ = flags.GetInt("sessions")
	}
	if flags.Changed("requests-per-minute") {
		sc.RateLimit.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
	}
	if flags.Changed("requests-per-hour") {
		sc.RateLimit.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
	}
	if flags.Changed("max-requests-per-day") {
		sc.RateLimit.MaxRequestsPerDay, _ = flags.GetInt("max-requests-per-day")
	}
	if flags.Changed("max-data-per-day") {
		sc.RateLimit.MaxDataPerDayMB, _ = flags.GetInt("max-data-per-day")
	}
}

// serverConfig maps the loaded configuration onto server.Config.
func serverConfig(cfg *config.Config, factory *session.Factory, importer *imports.Importer, logger *slog.Logger) server.Config {
	rl := cfg.Server.RateLimit
	return server.Config{
		Factory:     factory,
		Importer:    importer,
		Sessions:    cfg.Server.Sessions,
		CORSOrigin:  cfg.Server.CORSOrigin,
		MaxUploadMB: int64(cfg.Server.MaxUploadMB),
		TimeoutSec:  cfg.Server.TimeoutSec,
		RateLimit: server.Limits{
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     int64(rl.MaxDataPerDayMB) << 20,
		},
		Logger: logger,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "scan timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("sessions", 2, "number of concurrent upload scans")
	// Rate limiting flags; zero disables a limit.
	serveCmd.Flags().Int("requests-per-minute", 0, "maximum scan requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 0, "maximum scan requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 0, "maximum scan requests per day per client")
	serveCmd.Flags().Int("max-data-per-day", 0, "maximum upload volume per day per client (MB)")
	addRecognitionFlags(serveCmd)
}
