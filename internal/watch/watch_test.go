package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, exclude []string) *Watcher {
	t.Helper()
	w, err := New(Config{
		Root:     root,
		Debounce: 100 * time.Millisecond,
		Settle:   50 * time.Millisecond,
		Exclude:  exclude,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	return w
}

func nextBatch(t *testing.T, w *Watcher) Batch {
	t.Helper()
	select {
	case b, ok := <-w.Batches():
		require.True(t, ok, "watcher closed")
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no batch received")
	}
	return Batch{}
}

func TestWatcherDebouncesBurst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	w := startWatcher(t, root, nil)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "b.py"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("aa"), 0o644))

	b := nextBatch(t, w)
	assert.Equal(t, []string{"a.txt", "src/b.py"}, b.Paths)
}

func TestWatcherExcludesAndFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".matrixrun"), 0o755))
	w := startWatcher(t, root, []string{".matrixrun/**", "**/*.log"})

	require.NoError(t, os.WriteFile(filepath.Join(root, ".matrixrun", "history.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "debug.log"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))

	// Give the watcher time to register the new directory before writing into it.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "mod.go"), []byte("package pkg"), 0o644))

	b := nextBatch(t, w)
	assert.Equal(t, []string{"pkg/mod.go"}, b.Paths)
}

func TestWatcherIgnoresChangesWhilePaused(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ai", "integrations"), 0o755))
	w := startWatcher(t, root, nil)

	// Simulates a step writing cache files into the watched tree during a run.
	w.Pause()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ai", "integrations", ".pytest_cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ai", "integrations", "out.pyc"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	w.Resume()

	select {
	case b := <-w.Batches():
		t.Fatalf("unexpected batch from paused changes: %v", b.Paths)
	case <-time.After(400 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "ai", "integrations", "client.py"), []byte("x"), 0o644))
	b := nextBatch(t, w)
	assert.Equal(t, []string{"ai/integrations/client.py"}, b.Paths)
}

func TestWatcherCloseBeforeStart(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Exclude: []string{"src/[a"}})
	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "src/[a", pe.Pattern)
}
