package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string, maxBytes int64) *DeepgramClient {
	t.Helper()

	client, err := NewDeepgramClient(DeepgramConfig{
		APIKey:   "test-key",
		BaseURL:  serverURL,
		MaxBytes: maxBytes,
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestNewDeepgramClient(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewDeepgramClient(DeepgramConfig{})
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		client, err := NewDeepgramClient(DeepgramConfig{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, defaultBaseURL, client.baseURL)
		assert.Equal(t, defaultModel, client.model)
	})
}

func TestDeepgramTranscribe(t *testing.T) {
	t.Run("parses transcript and confidence", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "audio/webm", r.Header.Get("Content-Type"))
			assert.Equal(t, "fr", r.URL.Query().Get("language"))
			assert.Equal(t, "nova-2", r.URL.Query().Get("model"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"  le patient présente une toux sèche ","confidence":0.97}]}]}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)

		result, err := client.Transcribe(context.Background(), &Request{
			RequestID:   "req-1",
			Audio:       []byte("fake-opus-bytes"),
			ContentType: "audio/webm",
			Language:    LangFrench,
		})
		require.NoError(t, err)
		assert.Equal(t, "le patient présente une toux sèche", result.Transcript)
		require.NotNil(t, result.Confidence)
		assert.InDelta(t, 0.97, *result.Confidence, 0.0001)
	})

	t.Run("empty transcript is a valid result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"","confidence":0}]}]}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)

		result, err := client.Transcribe(context.Background(), &Request{
			Audio:    []byte("silence"),
			Language: LangEnglish,
		})
		require.NoError(t, err)
		assert.Empty(t, result.Transcript)
		assert.Nil(t, result.Confidence)
	})

	t.Run("empty audio never reaches the provider", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)

		result, err := client.Transcribe(context.Background(), &Request{Audio: nil, Language: LangFrench})
		require.NoError(t, err)
		assert.Empty(t, result.Transcript)
		assert.False(t, called)
	})

	t.Run("oversized audio rejected locally", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 8)

		_, err := client.Transcribe(context.Background(), &Request{
			Audio:    []byte("way more than eight bytes"),
			Language: LangFrench,
		})
		assert.ErrorIs(t, err, ErrAudioTooLarge)
		assert.False(t, called)
	})

	t.Run("provider error surfaces status and message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"err_code":"INVALID_AUDIO","err_msg":"corrupt container"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)

		_, err := client.Transcribe(context.Background(), &Request{
			Audio:    []byte("junk"),
			Language: LangGerman,
		})
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusBadRequest, provErr.StatusCode)
		assert.Equal(t, "corrupt container", provErr.Message)
	})

	t.Run("timeout is reported as an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
		}))
		defer server.Close()

		client, err := NewDeepgramClient(DeepgramConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
			Timeout: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		_, err = client.Transcribe(context.Background(), &Request{
			Audio:    []byte("slow"),
			Language: LangFrench,
		})
		assert.Error(t, err)
	})

	t.Run("malformed response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)

		_, err := client.Transcribe(context.Background(), &Request{
			Audio:    []byte("x"),
			Language: LangFrench,
		})

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
	})
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  Language
		ok    bool
	}{
		{"fr", LangFrench, true},
		{"EN", LangEnglish, true},
		{" de ", LangGerman, true},
		{"pt", LangPortuguese, true},
		{"zh", "", false},
		{"", "", false},
		{"french", "", false},
	}

	for _, tt := range tests {
		t.Run("code "+tt.input, func(t *testing.T) {
			got, ok := ParseLanguage(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviderTag(t *testing.T) {
	assert.Equal(t, "fr", LangFrench.ProviderTag())
	assert.Equal(t, "en-US", LangEnglish.ProviderTag())
	assert.Equal(t, "pt-PT", LangPortuguese.ProviderTag())
	assert.Equal(t, "de", LangGerman.ProviderTag())
}

func TestNormalizeMIME(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"audio/webm", MIMEWebM},
		{"audio/webm;codecs=opus", MIMEWebM},
		{"audio/mp3", MIMEMP3},
		{"audio/x-wav", MIMEWav},
		{"audio/ogg", MIMEOgg},
		{"", MIMEWebM},
		{"video/mp4", MIMEWebM},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMIME(tt.input), tt.input)
	}
}
