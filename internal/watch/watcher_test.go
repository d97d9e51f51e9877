package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const debounce = 50 * time.Millisecond

func touch(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func startWatcher(t *testing.T, artifact string, run RunFunc) *Watcher {
	t.Helper()
	w, err := New(artifact, run, debounce)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_RunsOnceForABurst(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, ".coverage")

	var runs atomic.Int32
	w := startWatcher(t, artifact, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		touch(t, artifact, "v")
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * debounce)
	assert.EqualValues(t, 1, runs.Load())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.GreaterOrEqual(t, stats.Events, 1)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()

	var runs atomic.Int32
	startWatcher(t, filepath.Join(dir, ".coverage"), func(context.Context) error {
		runs.Add(1)
		return nil
	})

	touch(t, filepath.Join(dir, ".coverage-journal"), "x")
	touch(t, filepath.Join(dir, "test_calc.py"), "x")
	time.Sleep(6 * debounce)
	assert.Zero(t, runs.Load())
}

func TestWatcher_NeverOverlapsRuns(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, ".coverage")

	var (
		active, maxActive, runs atomic.Int32
		once                    sync.Once
		started                 = make(chan struct{})
	)
	startWatcher(t, artifact, func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		once.Do(func() { close(started) })
		time.Sleep(3 * debounce)
		active.Add(-1)
		runs.Add(1)
		return nil
	})

	touch(t, artifact, "1")
	<-started
	touch(t, artifact, "2")

	require.Eventually(t, func() bool { return runs.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, maxActive.Load())
}

func TestWatcher_RecreatedArtifact(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, ".coverage")
	touch(t, artifact, "old")

	var runs atomic.Int32
	startWatcher(t, artifact, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, os.Remove(artifact))
	touch(t, artifact, "new")
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RunErrorsAreCounted(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, ".coverage")

	w := startWatcher(t, artifact, func(context.Context) error {
		return errors.New("coverage unavailable")
	})
	touch(t, artifact, "x")
	require.Eventually(t, func() bool { return w.Stats().Errors == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ContextCancelEndsLoop(t *testing.T) {
	dir := t.TempDir()
	w, err := New(filepath.Join(dir, ".coverage"), func(context.Context) error { return nil }, debounce)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not exit")
	}
	w.Stop()
}

func TestNew_Errors(t *testing.T) {
	_, err := New(".coverage", nil, 0)
	assert.Error(t, err)

	w, err := New(filepath.Join(t.TempDir(), "missing", ".coverage"), func(context.Context) error { return nil }, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounceDur)
	assert.Error(t, w.Start(context.Background()), "directory must exist")
	w.Stop()
}

func TestWatcher_FailedStartReleasesWatcher(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", ".coverage"), func(context.Context) error { return nil }, 0)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	// A closed fsnotify watcher refuses new paths.
	assert.ErrorIs(t, w.watcher.Add(t.TempDir()), fsnotify.ErrClosed)
}
