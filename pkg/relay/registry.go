package relay

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/dicteo/dicteo/internal/observability"
	"github.com/dicteo/dicteo/pkg/transcribe"
)

// Registry maps session id to live session. It exists for insert, lookup and
// delete only; messages are always addressed to their own connection, never
// broadcast across sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxBytes          int64
	messagesPerMinute int
	defaultLanguage   transcribe.Language
	logger            zerolog.Logger
}

// NewRegistry creates an empty session registry
func NewRegistry(maxBytes int64, messagesPerMinute int, defaultLanguage transcribe.Language, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions:          make(map[string]*Session),
		maxBytes:          maxBytes,
		messagesPerMinute: messagesPerMinute,
		defaultLanguage:   defaultLanguage,
		logger:            logger,
	}
}

// Register creates a new unauthenticated session with an empty buffer and
// indexes it. It always succeeds.
func (r *Registry) Register(conn messageWriter) *Session {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails if the system entropy source does; fall back
		// to a timestamp id rather than refusing the connection.
		id = "s-" + time.Now().Format("20060102150405.000000000")
	}

	sess := newSession(id, conn, r.maxBytes, r.messagesPerMinute, r.defaultLanguage, r.logger)

	r.mu.Lock()
	r.sessions[id] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	observability.SetActiveSessions(count)
	return sess
}

// Remove deletes a session. Idempotent: removing an unknown or already
// removed id is a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	count := len(r.sessions)
	r.mu.Unlock()

	observability.SetActiveSessions(count)
}

// Get retrieves a session by id
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[sessionID]
	return sess, exists
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// IdleUnauthenticated returns sessions that never authenticated and have
// been silent longer than maxIdle. Used by the reaper.
func (r *Registry) IdleUnauthenticated(maxIdle time.Duration) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-maxIdle)
	var idle []*Session
	for _, sess := range r.sessions {
		if !sess.Authenticated() && sess.LastActivity().Before(cutoff) {
			idle = append(idle, sess)
		}
	}
	return idle
}
