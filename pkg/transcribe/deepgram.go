package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-2"
	defaultTimeout = 30 * time.Second
)

// ErrAudioTooLarge is returned before any network call when the payload
// exceeds the configured limit.
var ErrAudioTooLarge = errors.New("audio payload exceeds maximum size")

// DeepgramClient implements Provider against the Deepgram prerecorded
// listen API.
type DeepgramClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxBytes   int64
	httpClient *http.Client
	logger     zerolog.Logger
}

// DeepgramConfig holds Deepgram client configuration
type DeepgramConfig struct {
	APIKey   string
	BaseURL  string        // override for tests; defaults to the public API
	Model    string        // defaults to nova-2
	Timeout  time.Duration // bounded wait per request; defaults to 30s
	MaxBytes int64         // reject payloads locally before calling out
	Logger   zerolog.Logger
}

// NewDeepgramClient creates a Deepgram-backed transcription provider
func NewDeepgramClient(cfg DeepgramConfig) (*DeepgramClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &DeepgramClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		maxBytes: cfg.MaxBytes,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger,
	}, nil
}

// deepgramResponse mirrors the subset of the listen API response we consume.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type deepgramError struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// Transcribe posts the audio payload and returns the first alternative of the
// first channel. An empty transcript is returned as a valid result, not an
// error.
func (c *DeepgramClient) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Audio) == 0 {
		return &Result{Transcript: ""}, nil
	}
	if c.maxBytes > 0 && int64(len(req.Audio)) > c.maxBytes {
		return nil, ErrAudioTooLarge
	}

	query := url.Values{}
	query.Set("model", c.model)
	query.Set("language", req.Language.ProviderTag())
	query.Set("smart_format", "true")
	query.Set("punctuate", "true")

	endpoint := fmt.Sprintf("%s/v1/listen?%s", c.baseURL, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)
	httpReq.Header.Set("Content-Type", NormalizeMIME(req.ContentType))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		var dgErr deepgramError
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &dgErr) == nil && dgErr.ErrMsg != "" {
			message = dgErr.ErrMsg
		}

		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("malformed provider response: %v", err)}
	}

	result := &Result{}
	if len(parsed.Results.Channels) > 0 && len(parsed.Results.Channels[0].Alternatives) > 0 {
		alt := parsed.Results.Channels[0].Alternatives[0]
		result.Transcript = strings.TrimSpace(alt.Transcript)
		if result.Transcript != "" {
			confidence := alt.Confidence
			result.Confidence = &confidence
		}
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("language", string(req.Language)).
		Int("audio_bytes", len(req.Audio)).
		Dur("elapsed", time.Since(start)).
		Bool("empty", result.Transcript == "").
		Msg("Transcription request completed")

	return result, nil
}
