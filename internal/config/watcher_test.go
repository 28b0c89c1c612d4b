package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path string, port int) {
	t.Helper()
	content := `{"server": {"port": ` + strconv.Itoa(port) + `}, "deepgram": {"api_key": "` + testKey + `"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dicteo.json")
	writeConfigFile(t, path, 9001)

	loader := NewLoader(path)

	var reloads atomic.Int32
	var lastPort atomic.Int32
	watcher, err := NewWatcher(loader, func(cfg *Config) {
		lastPort.Store(int32(cfg.Server.Port))
		reloads.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	writeConfigFile(t, path, 9002)

	assert.Eventually(t, func() bool {
		return reloads.Load() >= 1 && lastPort.Load() == 9002
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dicteo.json")
	writeConfigFile(t, path, 9001)

	loader := NewLoader(path)

	var reloads atomic.Int32
	watcher, err := NewWatcher(loader, func(cfg *Config) {
		reloads.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	// Invalid port: reload callback must not fire
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": -5}, "deepgram": {"api_key": "`+testKey+`"}}`), 0644))

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dicteo.json")
	writeConfigFile(t, path, 9001)

	watcher, err := NewWatcher(NewLoader(path), func(cfg *Config) {})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	assert.NoError(t, watcher.Stop())
	// Second stop must not panic
	_ = watcher.Stop()
}
