// Package transcribe turns a completed audio payload into text by calling an
// external speech-to-text provider. It is a stateless request/response
// translator: the caller owns the audio bytes and the session they belong to.
package transcribe

import (
	"context"
	"fmt"
	"strings"
)

// Language is one of the locale codes a dictation session may select.
type Language string

const (
	LangFrench     Language = "fr"
	LangEnglish    Language = "en"
	LangGerman     Language = "de"
	LangSpanish    Language = "es"
	LangItalian    Language = "it"
	LangPortuguese Language = "pt"
)

// DefaultLanguage is used when neither the client nor the identity record
// declares a preference.
const DefaultLanguage = LangFrench

// SupportedLanguages returns the closed set of selectable languages.
func SupportedLanguages() []Language {
	return []Language{LangFrench, LangEnglish, LangGerman, LangSpanish, LangItalian, LangPortuguese}
}

// ParseLanguage validates a client-supplied locale code.
func ParseLanguage(code string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(code))) {
	case LangFrench, LangEnglish, LangGerman, LangSpanish, LangItalian, LangPortuguese:
		return Language(strings.ToLower(strings.TrimSpace(code))), true
	}
	return "", false
}

// ProviderTag maps the internal code to the BCP-47 tag the provider expects.
func (l Language) ProviderTag() string {
	switch l {
	case LangEnglish:
		return "en-US"
	case LangPortuguese:
		return "pt-PT"
	default:
		return string(l)
	}
}

// Accepted audio content types. Anything else is normalized to webm/opus,
// which is what the desktop client records by default.
const (
	MIMEWebM = "audio/webm"
	MIMEWav  = "audio/wav"
	MIMEMP3  = "audio/mpeg"
	MIMEOgg  = "audio/ogg"
)

// NormalizeMIME clamps a client-declared content type to the supported set.
func NormalizeMIME(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	switch base {
	case MIMEWebM, MIMEWav, MIMEMP3, MIMEOgg:
		return base
	case "audio/mp3":
		return MIMEMP3
	case "audio/x-wav", "audio/wave":
		return MIMEWav
	default:
		return MIMEWebM
	}
}

// Request describes one transcription call.
type Request struct {
	RequestID   string
	Audio       []byte
	ContentType string
	Language    Language
}

// Result is a successful provider response. An empty Transcript is a valid
// outcome and means no speech was detected.
type Result struct {
	Transcript string
	Confidence *float64
}

// Provider is the abstraction over the external speech-to-text service.
type Provider interface {
	Transcribe(ctx context.Context, req *Request) (*Result, error)
}

// ProviderError is a non-2xx or malformed response from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}
