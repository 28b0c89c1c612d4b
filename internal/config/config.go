package config

import (
	"encoding/json"
	"fmt"

	"github.com/dicteo/dicteo/pkg/transcribe"
)

// Config represents the main dicteo server configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Deepgram upstream
	Deepgram DeepgramConfig `json:"deepgram" mapstructure:"deepgram"`

	// Identity store
	Identity IdentityConfig `json:"identity" mapstructure:"identity"`

	// Relay limits
	Relay RelayConfig `json:"relay" mapstructure:"relay"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds the HTTP/WebSocket listener configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// DeepgramConfig holds transcription provider configuration
type DeepgramConfig struct {
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// IdentityConfig holds the accounts database configuration
type IdentityConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
	// PurgeSchedule is a 5-field cron expression for expired-code cleanup.
	PurgeSchedule  string `json:"purge_schedule" mapstructure:"purge_schedule"`
	PurgeGraceDays int    `json:"purge_grace_days" mapstructure:"purge_grace_days"`
}

// RelayConfig holds per-session limits and defaults
type RelayConfig struct {
	MaxAudioBytes      int64  `json:"max_audio_bytes" mapstructure:"max_audio_bytes"`
	MessagesPerMinute  int    `json:"messages_per_minute" mapstructure:"messages_per_minute"`
	IdleTimeoutMinutes int    `json:"idle_timeout_minutes" mapstructure:"idle_timeout_minutes"`
	DefaultLanguage    string `json:"default_language" mapstructure:"default_language"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Deepgram: DeepgramConfig{
			BaseURL:        "https://api.deepgram.com",
			Model:          "nova-2",
			TimeoutSeconds: 30,
		},
		Identity: IdentityConfig{
			PurgeSchedule:  "0 3 * * *",
			PurgeGraceDays: 30,
		},
		Relay: RelayConfig{
			MaxAudioBytes:      50 * 1024 * 1024,
			MessagesPerMinute:  600,
			IdleTimeoutMinutes: 10,
			DefaultLanguage:    string(transcribe.DefaultLanguage),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation with the provider key masked
func (c *Config) String() string {
	masked := *c
	if masked.Deepgram.APIKey != "" {
		masked.Deepgram.APIKey = "***"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidatePort(c.Server.Port); err != nil {
		return err
	}
	if err := v.ValidateDeepgramKey(c.Deepgram.APIKey); err != nil {
		return err
	}
	if c.Deepgram.TimeoutSeconds <= 0 {
		return fmt.Errorf("deepgram timeout must be positive, got %d", c.Deepgram.TimeoutSeconds)
	}
	if c.Relay.MaxAudioBytes <= 0 {
		return fmt.Errorf("max audio bytes must be positive, got %d", c.Relay.MaxAudioBytes)
	}
	if c.Relay.MessagesPerMinute <= 0 {
		return fmt.Errorf("messages per minute must be positive, got %d", c.Relay.MessagesPerMinute)
	}
	if err := v.ValidateLanguage(c.Relay.DefaultLanguage); err != nil {
		return err
	}
	if c.Identity.PurgeSchedule != "" {
		if err := v.ValidateCronExpr(c.Identity.PurgeSchedule); err != nil {
			return err
		}
	}

	return nil
}
