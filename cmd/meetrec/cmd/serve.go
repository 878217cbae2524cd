package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/meetrec/internal/blobstore"
	"github.com/jmylchreest/meetrec/internal/config"
	"github.com/jmylchreest/meetrec/internal/database"
	internalhttp "github.com/jmylchreest/meetrec/internal/http"
	"github.com/jmylchreest/meetrec/internal/http/handlers"
	"github.com/jmylchreest/meetrec/internal/jobs"
	"github.com/jmylchreest/meetrec/internal/recorder"
	"github.com/jmylchreest/meetrec/internal/repository"
	"github.com/jmylchreest/meetrec/internal/startup"
	"github.com/jmylchreest/meetrec/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the meetrec server",
	Long: `Start the meetrec HTTP server.

The server provides:
- REST API for starting, stopping, pausing, and resuming recordings
- Websocket ingest endpoint for live meeting media
- Signed download URLs for finished recordings
- Health check endpoints and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("data-dir", "", "Base directory for recordings and staging files")
}

// applyServeFlags overrides loaded configuration with explicitly set CLI
// flags, preserving flag > env > file > default priority.
func applyServeFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.BaseDir, _ = flags.GetString("data-dir")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyServeFlags(cfg, cmd.Flags())
	initLogging(cfg)
	logger := slog.Default()

	logger.Info("starting meetrec",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	// Sweep staging files abandoned by a previous unclean shutdown.
	removed, err := startup.CleanupStagingFiles(logger, cfg.Storage.StagingPath(), cfg.Storage.StagingMaxAge)
	if err != nil {
		logger.Warn("cleaning staging directory",
			slog.String("error", err.Error()),
		)
	} else if removed > 0 {
		logger.Info("removed abandoned staging files on startup",
			slog.Int("removed_count", removed),
		)
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	recordingRepo := repository.NewRecordingRepository(db.DB)
	jobRepo := repository.NewJobRepository(db.DB)

	secret := []byte(cfg.Blobstore.SigningSecret)
	if len(secret) == 0 {
		// Random per-process secret; signed URLs stop working on restart.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating signing secret: %w", err)
		}
		logger.Warn("blobstore.signing_secret is not set, using an ephemeral secret; download URLs will not survive a restart")
	}

	store, err := blobstore.NewFilesystemStore(
		cfg.Blobstore.RootPath(cfg.Storage.BaseDir),
		cfg.Blobstore.PublicBaseURL,
		secret,
	)
	if err != nil {
		return fmt.Errorf("initializing blob store: %w", err)
	}

	dispatcher := jobs.NewQueueDispatcher(jobRepo, logger)

	manager, err := recorder.NewManager(recorder.Config{
		MaxSessions:     cfg.Recording.MaxSessions,
		EncoderGrace:    cfg.Recording.EncoderGracePeriod,
		MaxChunkBytes:   cfg.Recording.MaxChunkSize.Int64(),
		StagingDir:      cfg.Storage.StagingPath(),
		EncoderBinary:   cfg.Encoder.BinaryPath,
		EncoderLogLevel: cfg.Encoder.LogLevel,
		DownloadURLTTL:  cfg.Blobstore.DownloadURLTTL,
	}, store, recordingRepo, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("initializing session manager: %w", err)
	}

	var reaper *recorder.Reaper
	if cfg.Reaper.Enabled {
		reaper, err = recorder.NewReaper(recordingRepo, manager.HasSession, cfg.Reaper.Cron, cfg.Reaper.Staleness, logger)
		if err != nil {
			return fmt.Errorf("initializing reaper: %w", err)
		}
		reaper.Start()
		defer reaper.Stop()
	}

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}, logger, version.Version)

	handlers.NewRecordingHandler(manager).Register(server.API())
	handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithManager(manager).
		Register(server.API())
	handlers.NewIngestHandler(manager, handlers.IngestConfig{
		ReadTimeout:       cfg.Ingest.ReadTimeout,
		MaxChunkBytes:     cfg.Recording.MaxChunkSize.Int64(),
		EnableCompression: cfg.Ingest.EnableCompression,
	}, logger).Register(server.Router())
	handlers.NewDownloadHandler(store, logger).Register(server.Router())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := server.ListenAndServe(ctx)

	// Stop active sessions cleanly so artifacts upload before exit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn("closing session manager",
			slog.String("error", err.Error()),
		)
	}

	return serveErr
}
