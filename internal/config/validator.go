package config

import (
	"fmt"
	"regexp"

	"github.com/robfig/cron/v3"

	"github.com/dicteo/dicteo/pkg/transcribe"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var deepgramKeyPattern = regexp.MustCompile(`^[a-f0-9]{32,}$`)

// ValidatePort validates a TCP listen port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// ValidateDeepgramKey validates a Deepgram API key format
func (v *Validator) ValidateDeepgramKey(key string) error {
	if key == "" {
		return fmt.Errorf("deepgram API key cannot be empty")
	}
	if !deepgramKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid deepgram API key format (expected lowercase hex, 32+ chars)")
	}
	return nil
}

// ValidateLanguage validates a dictation language code
func (v *Validator) ValidateLanguage(code string) error {
	if _, ok := transcribe.ParseLanguage(code); !ok {
		return fmt.Errorf("unsupported language %q (must be one of fr, en, de, es, it, pt)", code)
	}
	return nil
}

// ValidateCronExpr validates a 5-field cron expression
func (v *Validator) ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
