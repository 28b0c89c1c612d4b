package cli

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActivationCode(t *testing.T) {
	codePattern := regexp.MustCompile(`^DICT-[2-9A-HJ-NP-Z]{4}-[2-9A-HJ-NP-Z]{4}$`)

	t.Run("matches the expected shape", func(t *testing.T) {
		code, err := NewActivationCode()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	})

	t.Run("codes are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			code, err := NewActivationCode()
			require.NoError(t, err)
			assert.False(t, seen[code], "duplicate code %q", code)
			seen[code] = true
		}
	})
}
