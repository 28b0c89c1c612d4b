package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dicteo/dicteo/internal/observability"
	"github.com/dicteo/dicteo/pkg/identity"
	"github.com/dicteo/dicteo/pkg/transcribe"
)

// Purger removes identities whose activation expired long enough ago. The
// server runs it on the configured schedule.
type Purger interface {
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// Config holds server configuration.
type Config struct {
	Host              string
	Port              int
	Lookup            identity.Lookup
	Provider          transcribe.Provider
	MaxBufferBytes    int64
	MessagesPerMinute int
	ProviderTimeout   time.Duration
	DefaultLanguage   transcribe.Language
	IdleTimeout       time.Duration
	PurgeSchedule     string
	PurgeGrace        time.Duration
	Purger            Purger
	Logger            zerolog.Logger
}

// Server accepts WebSocket connections, authenticates them against the
// identity store and relays buffered audio to the transcription provider.
type Server struct {
	host            string
	port            int
	lookup          identity.Lookup
	provider        transcribe.Provider
	providerTimeout time.Duration
	defaultLanguage transcribe.Language
	idleTimeout     time.Duration
	purgeSchedule   string
	purgeGrace      time.Duration
	purger          Purger

	server   *http.Server
	upgrader websocket.Upgrader
	sessions *Registry
	cron     *cron.Cron
	logger   zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlight       sync.WaitGroup
}

// NewServer creates a relay server from cfg.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Lookup == nil {
		return nil, fmt.Errorf("identity lookup is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("transcription provider is required")
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 50 * 1024 * 1024
	}
	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = 600
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = transcribe.DefaultLanguage
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}

	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		lookup:          cfg.Lookup,
		provider:        cfg.Provider,
		providerTimeout: cfg.ProviderTimeout,
		defaultLanguage: cfg.DefaultLanguage,
		idleTimeout:     cfg.IdleTimeout,
		purgeSchedule:   cfg.PurgeSchedule,
		purgeGrace:      cfg.PurgeGrace,
		purger:          cfg.Purger,
		sessions:        NewRegistry(cfg.MaxBufferBytes, cfg.MessagesPerMinute, cfg.DefaultLanguage, cfg.Logger),
		cron:            cron.New(),
		logger:          cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Desktop and web dictation clients connect from arbitrary
				// origins; auth happens in-band after the upgrade.
				return true
			},
		},
	}

	return s, nil
}

// routes builds the HTTP surface: the WebSocket endpoint plus the
// operational endpoints.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", observability.MetricsHandler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}

// Start begins listening and schedules the housekeeping jobs. It does not
// block.
func (s *Server) Start() error {
	if err := s.scheduleHousekeeping(); err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.routes(),
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting relay server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Relay server error")
		}
	}()

	s.cron.Start()
	return nil
}

func (s *Server) scheduleHousekeeping() error {
	if _, err := s.cron.AddFunc("@every 1m", s.reapIdleSessions); err != nil {
		return fmt.Errorf("failed to schedule idle reaper: %w", err)
	}

	if s.purger != nil && s.purgeSchedule != "" {
		if _, err := s.cron.AddFunc(s.purgeSchedule, s.purgeExpiredAccounts); err != nil {
			return fmt.Errorf("failed to schedule account purge: %w", err)
		}
	}

	return nil
}

// reapIdleSessions drops connections that never authenticated and went
// quiet. Authenticated sessions are left alone: dictation pauses can be
// long.
func (s *Server) reapIdleSessions() {
	for _, sess := range s.sessions.IdleUnauthenticated(s.idleTimeout) {
		s.logger.Info().
			Str("session_id", sess.ID()).
			Time("last_activity", sess.LastActivity()).
			Msg("Closing idle unauthenticated session")

		if conn, ok := sess.conn.(*websocket.Conn); ok {
			conn.Close()
		}
		s.sessions.Remove(sess.ID())
	}
}

func (s *Server) purgeExpiredAccounts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.purger.PurgeExpired(ctx, s.purgeGrace)
	if err != nil {
		s.logger.Error().Err(err).Msg("Account purge failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("purged", n).Msg("Purged expired accounts")
	}
}

// Stop gracefully stops the server, waiting for in-flight provider calls.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down relay server")

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight transcriptions completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Relay server stopped")
	return nil
}

// SessionCount reports the number of connected sessions.
func (s *Server) SessionCount() int {
	return s.sessions.Count()
}

// handleWebSocket upgrades the connection and starts the per-session read
// loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	sess := s.sessions.Register(conn)
	observability.RecordConnection()

	s.logger.Info().
		Str("session_id", sess.ID()).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	sess.send(connectionReply{
		Type:         "connection",
		ConnectionID: sess.ID(),
		Status:       "connected",
	})

	go s.readLoop(sess, conn)
}

// readLoop consumes frames from one connection until it closes.
func (s *Server) readLoop(sess *Session, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.sessions.Remove(sess.ID())
		s.logger.Info().Str("session_id", sess.ID()).Msg("Client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("session_id", sess.ID()).Msg("WebSocket error")
			}
			return
		}

		s.handleFrame(sess, message)
	}
}
