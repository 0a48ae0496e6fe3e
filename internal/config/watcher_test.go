package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchTimeout = 5 * time.Second

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9600\"\n"), 0644))

	got := make(chan Config, 1)
	w, err := NewWatcher(path, func(cfg Config) {
		select {
		case got <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9700\"\n"), 0644))

	select {
	case cfg := <-got:
		assert.Equal(t, ":9700", cfg.Server.Addr)
	case <-time.After(watchTimeout):
		t.Fatal("onChange never invoked after config write")
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9600\"\n"), 0644))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(Config) { calls.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	// Invalid: empty addr fails validation, so onChange must not fire.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \"\"\n"), 0644))

	time.Sleep(2 * debounceWindow)
	assert.Equal(t, int32(0), calls.Load(), "invalid config must not reach onChange")
}

func TestWatcherSurvivesFileReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9600\"\n"), 0644))

	got := make(chan Config, 1)
	w, err := NewWatcher(path, func(cfg Config) {
		select {
		case got <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	// Replace by rename, the way config management tools deploy files.
	tmp := filepath.Join(dir, "beacon.yml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("server:\n  addr: \":9800\"\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case cfg := <-got:
		assert.Equal(t, ":9800", cfg.Server.Addr)
	case <-time.After(watchTimeout):
		t.Fatal("onChange never invoked after file replacement")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9600\"\n"), 0644))

	w, err := NewWatcher(path, func(Config) {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
