// Package main provides the server entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"voxbox/internal/app/admission"
	"voxbox/internal/app/notify"
	"voxbox/internal/app/session"
	"voxbox/internal/infra/config"
	"voxbox/internal/infra/library"
	"voxbox/internal/infra/logger"
	"voxbox/internal/infra/media"
)

var (
	app        = kingpin.New("voxbox-server", "voxbox voice playback session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// index command
	indexCmd = app.Command("index", "Scan a directory into the track library and exit")
	indexDir = indexCmd.Arg("dir", "Directory to scan").Required().ExistingDir()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == indexCmd.FullCommand() {
		if err := runIndex(cfg, *indexDir); err != nil {
			zlog.Error().Msgf("Index error: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	lib, err := library.Open(cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	chain, err := admission.BuildChain(cfg.Admission)
	if err != nil {
		return fmt.Errorf("failed to build admission chain: %w", err)
	}

	svc := session.NewService(cfg.ControllerConfig(), notify.NewManager(notifier), chain)
	defer svc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		count, err := lib.Count(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sessions": svc.Count(),
			"tracks":   count,
		})
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// buildNotifier creates the configured notice backend.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	switch cfg.Notifier.Type {
	case "webhook":
		return notify.NewWebhookNotifier(cfg.Notifier.Settings)
	default:
		return notify.LogNotifier{}, nil
	}
}

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wav":  true,
}

// runIndex walks a directory and adds every audio file to the library.
func runIndex(cfg *config.Config, dir string) error {
	lib, err := library.Open(cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	ctx := context.Background()
	added := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		t, err := media.Probe(path)
		if err != nil {
			zlog.Warn().Msgf("Skipping %s: %v", path, err)
			return nil
		}
		if _, err := lib.Add(ctx, t); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return err
	}

	zlog.Info().Msgf("Indexed %d tracks into %s", added, cfg.Library.Path)
	return nil
}
