// Package relay implements the session-scoped audio relay: one WebSocket
// connection per dictation client, an auth handshake against the identity
// store, per-session audio buffering, and request/response brokering with
// the transcription provider.
package relay

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dicteo/dicteo/pkg/identity"
	"github.com/dicteo/dicteo/pkg/transcribe"
)

// ErrBufferLimitExceeded means an append pushed the audio buffer past the
// configured cap. The buffer is discarded, never truncated.
var ErrBufferLimitExceeded = errors.New("audio buffer limit exceeded")

// messageWriter is the slice of *websocket.Conn the session needs to reply.
// Tests substitute an in-memory implementation.
type messageWriter interface {
	WriteJSON(v interface{}) error
}

// Session is the server-side state for one live connection. All mutation
// goes through methods so the cap and auth invariants hold at a single
// boundary; handlers never touch fields directly.
type Session struct {
	id   string
	conn messageWriter

	mu            sync.Mutex
	authenticated bool
	identity      *identity.Identity
	language      transcribe.Language
	clientKind    string
	audioFormat   string
	buffer        bytes.Buffer
	chunkCount    int
	maxBytes      int64
	connectedAt   time.Time
	lastActivity  time.Time

	// writeMu serializes frames onto the connection; handler goroutines and
	// in-flight provider replies share it.
	writeMu sync.Mutex

	limiter *messageLimiter
	logger  zerolog.Logger
}

func newSession(id string, conn messageWriter, maxBytes int64, messagesPerMinute int, defaultLanguage transcribe.Language, logger zerolog.Logger) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		conn:         conn,
		language:     defaultLanguage,
		maxBytes:     maxBytes,
		connectedAt:  now,
		lastActivity: now,
		limiter:      newMessageLimiter(messagesPerMinute),
		logger:       logger.With().Str("session_id", id).Logger(),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// Authenticated reports whether the auth handshake has completed.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Identity returns the authenticated account, or nil before auth.
func (s *Session) Identity() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Language returns the session's current dictation language.
func (s *Session) Language() transcribe.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// ClientKind returns the client-declared application tag.
func (s *Session) ClientKind() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientKind
}

// AudioFormat returns the last declared audio content type.
func (s *Session) AudioFormat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioFormat
}

// SetAuthenticated marks the session authenticated and records its identity
// and initial language. Repeating it with the same identity is harmless.
func (s *Session) SetAuthenticated(ident *identity.Identity, lang transcribe.Language, clientKind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.authenticated = true
	s.identity = ident
	s.language = lang
	if clientKind != "" {
		s.clientKind = clientKind
	}
}

// SetLanguage updates the dictation language.
func (s *Session) SetLanguage(lang transcribe.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// SetClientKind records the client-declared application tag.
func (s *Session) SetClientKind(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind != "" {
		s.clientKind = kind
	}
}

// SetAudioFormat records the declared audio content type.
func (s *Session) SetAudioFormat(format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if format != "" {
		s.audioFormat = format
	}
}

// AppendAudio adds a chunk to the buffer. On success it returns the 1-based
// chunk index and the running byte total. If the append would exceed the cap
// the whole buffer is discarded and ErrBufferLimitExceeded returned; the
// next append starts from an empty buffer.
func (s *Session) AppendAudio(chunk []byte) (chunkIndex int, totalBytes int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 && int64(s.buffer.Len())+int64(len(chunk)) > s.maxBytes {
		s.buffer = bytes.Buffer{}
		s.chunkCount = 0
		return 0, 0, ErrBufferLimitExceeded
	}

	s.buffer.Write(chunk)
	s.chunkCount++
	return s.chunkCount, int64(s.buffer.Len()), nil
}

// SnapshotAudio hands back everything buffered so far and leaves the session
// with a fresh, independent buffer. The returned slice never aliases the
// live buffer, so an in-flight provider call cannot race later appends.
func (s *Session) SnapshotAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer.Len() == 0 {
		return nil
	}

	taken := s.buffer
	s.buffer = bytes.Buffer{}
	s.chunkCount = 0
	return taken.Bytes()
}

// ClearAudio discards any buffered chunks.
func (s *Session) ClearAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = bytes.Buffer{}
	s.chunkCount = 0
}

// BufferedBytes returns the current buffer length.
func (s *Session) BufferedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.buffer.Len())
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the last-activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// ConnectedAt returns when the connection was accepted.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// send writes one frame to the connection. A write to a closed connection
// is logged and discarded; the session owner tears down on read failure.
func (s *Session) send(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(v); err != nil {
		s.logger.Debug().Err(err).Msg("Dropped reply to closed connection")
	}
}
