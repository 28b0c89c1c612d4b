package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dicteo/dicteo/internal/config"
	"github.com/dicteo/dicteo/internal/logger"
	"github.com/dicteo/dicteo/pkg/identity"
	"github.com/dicteo/dicteo/pkg/relay"
	"github.com/dicteo/dicteo/pkg/transcribe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dictation relay server",
	Long: `Run the dictation relay server in the foreground.
The server listens for WebSocket connections from dictation clients and
relays completed recordings to the transcription provider.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	zlog := log.GetZerolog()
	zlog.Info().Str("version", version).Msg("Starting dicteo")

	store, err := identity.NewSQLiteStore(cfg.Identity.DBPath, zlog)
	if err != nil {
		return fmt.Errorf("failed to open identity store: %w", err)
	}
	defer store.Close()

	provider, err := transcribe.NewDeepgramClient(transcribe.DeepgramConfig{
		APIKey:   cfg.Deepgram.APIKey,
		BaseURL:  cfg.Deepgram.BaseURL,
		Model:    cfg.Deepgram.Model,
		Timeout:  time.Duration(cfg.Deepgram.TimeoutSeconds) * time.Second,
		MaxBytes: cfg.Relay.MaxAudioBytes,
		Logger:   zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcription provider: %w", err)
	}

	server, err := relay.NewServer(relay.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Lookup:            store,
		Provider:          provider,
		MaxBufferBytes:    cfg.Relay.MaxAudioBytes,
		MessagesPerMinute: cfg.Relay.MessagesPerMinute,
		ProviderTimeout:   time.Duration(cfg.Deepgram.TimeoutSeconds) * time.Second,
		DefaultLanguage:   transcribe.Language(cfg.Relay.DefaultLanguage),
		IdleTimeout:       time.Duration(cfg.Relay.IdleTimeoutMinutes) * time.Minute,
		PurgeSchedule:     cfg.Identity.PurgeSchedule,
		PurgeGrace:        time.Duration(cfg.Identity.PurgeGraceDays) * 24 * time.Hour,
		Purger:            store,
		Logger:            zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start relay server: %w", err)
	}

	// Config edits on disk take effect without a restart where they can;
	// currently that covers the log level.
	watcher, err := config.NewWatcher(loader, func(updated *config.Config) {
		if level, perr := zerolog.ParseLevel(updated.Logging.Level); perr == nil {
			zerolog.SetGlobalLevel(level)
		}
		zlog.Info().Str("log_level", updated.Logging.Level).Msg("Configuration reloaded")
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("Config watcher unavailable, edits need a restart")
	} else {
		if err := watcher.Start(); err != nil {
			zlog.Warn().Err(err).Msg("Config watcher failed to start")
		} else {
			defer watcher.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	zlog.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	return server.Stop()
}
