package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSync(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "premium.yaml"), readTestdata(t, "premium.yaml"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loan.dmn"), readTestdata(t, "loan.dmn"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	reg := New(NewMemoryStore(), nil)
	w, err := NewWatcher(reg, dir, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.fs.Close()

	require.NoError(t, w.Sync())
	assert.Equal(t, 2, reg.Len())
}

func TestWatcherFollowsChanges(t *testing.T) {
	dir := t.TempDir()
	reg := New(NewMemoryStore(), nil)
	w, err := NewWatcher(reg, dir, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	path := filepath.Join(dir, "premium.yaml")
	require.NoError(t, os.WriteFile(path, readTestdata(t, "premium.yaml"), 0o644))
	assert.Eventually(t, func() bool {
		_, err := reg.Get("premium")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, err := reg.Get("premium")
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(New(NewMemoryStore(), nil), filepath.Join(t.TempDir(), "nope"), 0)
	assert.Error(t, err)
}
