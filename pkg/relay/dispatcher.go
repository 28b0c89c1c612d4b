package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dicteo/dicteo/internal/observability"
	"github.com/dicteo/dicteo/pkg/identity"
	"github.com/dicteo/dicteo/pkg/transcribe"
)

// Payloads below this size carry no recognizable speech; they are answered
// locally with an empty transcript instead of wasting a provider call.
const minAudioBytes = 100

const lookupTimeout = 10 * time.Second

// handleFrame dispatches one inbound frame. Frames from the same connection
// arrive through a single read loop, so handlers run sequentially per
// session; only provider calls leave this goroutine.
func (s *Server) handleFrame(sess *Session, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		sess.logger.Warn().Err(err).Msg("Dropped malformed frame")
		return
	}
	if env.Type == "" {
		sess.logger.Warn().Msg("Dropped frame without type")
		return
	}

	sess.Touch()
	observability.RecordMessage(env.Type)

	// Liveness check works regardless of auth state and rate limits.
	if env.Type == msgPing {
		sess.send(pongReply{Type: "pong"})
		return
	}

	if !sess.limiter.Allow() {
		sess.send(errorReply{
			Type:    "error",
			Message: "too many messages",
			Code:    codeRateLimited,
		})
		return
	}

	switch env.Type {
	case msgAuth:
		s.handleAuth(sess, raw)
	case msgUpdateLanguage:
		if !s.requireAuth(sess) {
			return
		}
		s.handleUpdateLanguage(sess, raw)
	case msgStartTranscribe:
		if !s.requireAuth(sess) {
			return
		}
		s.handleStartTranscription(sess, raw)
	case msgAudioChunk:
		if !s.requireAuth(sess) {
			return
		}
		s.handleAudioChunk(sess, raw)
	case msgAudioComplete:
		if !s.requireAuth(sess) {
			return
		}
		s.handleAudioComplete(sess, raw)
	case msgStopTranscription:
		if !s.requireAuth(sess) {
			return
		}
		s.handleStopTranscription(sess)
	default:
		sess.logger.Warn().Str("type", env.Type).Msg("Ignored unknown message type")
	}
}

// requireAuth rejects authenticated-only messages on unauthenticated
// sessions. The session stays open: the client may still authenticate.
func (s *Server) requireAuth(sess *Session) bool {
	if sess.Authenticated() {
		return true
	}

	sess.send(errorReply{
		Type:    "error",
		Message: "not authenticated",
		Code:    codeNotAuthenticated,
	})
	return false
}

func (s *Server) handleAuth(sess *Session, raw []byte) {
	var msg authMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sess.logger.Warn().Err(err).Msg("Dropped malformed auth frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	ident, err := s.lookup.FindByEmailAndCode(ctx, msg.Email, msg.ActivationCode)
	if err != nil || !ident.Active {
		// The client is told only that authentication failed; whether the
		// account is unknown, mismatched or expired stays server-side.
		if err != nil && !errors.Is(err, identity.ErrNotFound) {
			sess.logger.Error().Err(err).Msg("Identity lookup failed")
		} else {
			sess.logger.Info().Msg("Authentication rejected")
		}

		observability.RecordAuth(false)
		sess.send(authReply{
			Type:    "auth",
			Status:  "error",
			Message: "Authentication failed",
		})
		return
	}

	// Client-declared language wins over the stored preference.
	lang := chooseLanguage(msg.Language, ident.Language, s.defaultLanguage)
	sess.SetAuthenticated(ident, lang, msg.ClientType)

	observability.RecordAuth(true)
	sess.logger.Info().
		Str("language", string(lang)).
		Str("client_type", sess.ClientKind()).
		Msg("Session authenticated")

	sess.send(authReply{
		Type:   "auth",
		Status: "success",
		User: &authUserSummary{
			FirstName:     ident.FirstName,
			LastName:      ident.LastName,
			Email:         ident.Email,
			DaysRemaining: ident.DaysRemaining,
		},
		Language: string(lang),
	})
}

// chooseLanguage resolves the session language at auth time: a valid
// client-declared code first, then the identity's stored preference, then
// the server default.
func chooseLanguage(clientCode, storedCode string, fallback transcribe.Language) transcribe.Language {
	if lang, ok := transcribe.ParseLanguage(clientCode); ok {
		return lang
	}
	if lang, ok := transcribe.ParseLanguage(storedCode); ok {
		return lang
	}
	return fallback
}

func (s *Server) handleUpdateLanguage(sess *Session, raw []byte) {
	var msg updateLanguageMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sess.logger.Warn().Err(err).Msg("Dropped malformed updateLanguage frame")
		return
	}

	lang, ok := transcribe.ParseLanguage(msg.Language)
	if !ok {
		sess.send(errorReply{
			Type:    "error",
			Message: "unsupported language: " + msg.Language,
			Code:    codeUnsupportedLanguage,
		})
		return
	}

	sess.SetLanguage(lang)
	sess.send(languageUpdatedReply{
		Type:     "languageUpdated",
		Language: string(lang),
	})
}

func (s *Server) handleStartTranscription(sess *Session, raw []byte) {
	var msg startTranscriptionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sess.logger.Warn().Err(err).Msg("Dropped malformed startTranscription frame")
		return
	}

	if msg.Language != "" {
		if lang, ok := transcribe.ParseLanguage(msg.Language); ok {
			sess.SetLanguage(lang)
		} else {
			sess.logger.Warn().Str("language", msg.Language).Msg("Ignored unsupported language override")
		}
	}
	sess.SetAudioFormat(msg.AudioFormat)
	sess.SetClientKind(msg.ClientType)
	sess.ClearAudio()

	sess.send(transcriptionStartedReply{
		Type:       "transcriptionStarted",
		Language:   string(sess.Language()),
		ClientType: sess.ClientKind(),
	})
}

func (s *Server) handleAudioChunk(sess *Session, raw []byte) {
	var msg audioChunkMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sess.logger.Warn().Err(err).Msg("Dropped malformed audioChunk frame")
		return
	}

	chunk, err := decodeAudio(msg.Audio)
	if err != nil {
		sess.send(errorReply{
			Type:    "error",
			Message: "invalid audio encoding",
			Code:    codeInvalidAudio,
		})
		return
	}

	sess.SetAudioFormat(msg.MimeType)

	index, total, err := sess.AppendAudio(chunk)
	if err != nil {
		observability.RecordBufferOverflow()
		sess.logger.Warn().
			Int("chunk_bytes", len(chunk)).
			Msg("Audio buffer cap exceeded, buffer discarded")
		sess.send(errorReply{
			Type:    "error",
			Message: "audio buffer limit exceeded, buffer discarded",
			Code:    codeAudioLimitExceeded,
		})
		return
	}

	observability.RecordAudioBytes(len(chunk))
	sess.send(audioChunkReceivedReply{
		Type:       "audioChunkReceived",
		ChunkIndex: index,
		TotalSize:  total,
	})
}

func (s *Server) handleAudioComplete(sess *Session, raw []byte) {
	var msg audioCompleteMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		sess.logger.Warn().Err(err).Msg("Dropped malformed audioComplete frame")
		return
	}

	audio, err := decodeAudio(msg.Audio)
	if err != nil {
		sess.send(errorReply{
			Type:    "error",
			Message: "invalid audio encoding",
			Code:    codeInvalidAudio,
		})
		return
	}

	lang := sess.Language()
	if msg.Language != "" {
		if override, ok := transcribe.ParseLanguage(msg.Language); ok {
			lang = override
		}
	}

	contentType := msg.MimeType
	if contentType == "" {
		contentType = sess.AudioFormat()
	}

	if len(audio) < minAudioBytes {
		sess.send(transcriptionResultReply{
			Type:       "transcriptionResult",
			Transcript: "",
			IsFinal:    true,
			Source:     transcriptSource,
			Language:   string(lang),
			Message:    "no speech detected",
		})
		return
	}

	s.forward(sess, audio, contentType, lang)
}

func (s *Server) handleStopTranscription(sess *Session) {
	// Single finalize pass: whatever is buffered goes out once, and the
	// live buffer starts over immediately.
	snapshot := sess.SnapshotAudio()
	if len(snapshot) >= minAudioBytes {
		s.forward(sess, snapshot, sess.AudioFormat(), sess.Language())
	}

	sess.send(transcriptionStoppedReply{
		Type:       "transcriptionStopped",
		ClientType: sess.ClientKind(),
	})
}

// forward hands a completed payload to the provider off the read loop. The
// payload is already detached from the session buffer, so later chunks
// cannot race the in-flight request. Exactly one reply is sent per call.
func (s *Server) forward(sess *Session, audio []byte, contentType string, lang transcribe.Language) {
	s.inFlight.Add(1)

	go func() {
		defer s.inFlight.Done()

		requestID := uuid.NewString()
		ctx, cancel := context.WithTimeout(context.Background(), s.providerTimeout)
		defer cancel()

		start := time.Now()
		result, err := s.provider.Transcribe(ctx, &transcribe.Request{
			RequestID:   requestID,
			Audio:       audio,
			ContentType: contentType,
			Language:    lang,
		})
		observability.RecordTranscription(time.Since(start), err == nil)

		if err != nil {
			sess.logger.Error().
				Err(err).
				Str("request_id", requestID).
				Int("audio_bytes", len(audio)).
				Msg("Transcription failed")
			sess.send(transcriptionErrorReply{
				Type:    "transcriptionError",
				Message: providerErrorMessage(err),
				Source:  transcriptSource,
			})
			return
		}

		reply := transcriptionResultReply{
			Type:       "transcriptionResult",
			Transcript: result.Transcript,
			IsFinal:    true,
			Source:     transcriptSource,
			Language:   string(lang),
			Confidence: result.Confidence,
		}
		if result.Transcript == "" {
			reply.Message = "no speech detected"
		}

		sess.send(reply)
	}()
}

// providerErrorMessage maps internal failures to the short form shown to
// the client. Details stay in the server log.
func providerErrorMessage(err error) string {
	switch {
	case errors.Is(err, transcribe.ErrAudioTooLarge):
		return "audio payload exceeds the size limit"
	case errors.Is(err, context.DeadlineExceeded):
		return "transcription timed out"
	default:
		var provErr *transcribe.ProviderError
		if errors.As(err, &provErr) {
			return "transcription provider rejected the request"
		}
		return "transcription failed"
	}
}

// decodeAudio decodes a base64 audio field, tolerating the data-URL prefix
// some browser recorders emit.
func decodeAudio(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}

	if i := strings.Index(encoded, ";base64,"); i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return data, nil
}
