package indexing

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/enumerate"
)

// TestMain fails the package when a worker, watcher or debounce timer outlives its test
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sliceEnumerator lists fixed paths and records the roots it was asked for
type sliceEnumerator struct {
	mu    sync.Mutex
	paths []string
	roots []string
}

func (s *sliceEnumerator) Enumerate(ctx context.Context, root string, noIgnore bool) (enumerate.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = append(s.roots, root)
	return enumerate.FromSlice(s.paths), nil
}

func (s *sliceEnumerator) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roots...)
}

// blockingEnumerator parks the worker until release is closed
type blockingEnumerator struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingEnumerator() *blockingEnumerator {
	return &blockingEnumerator{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingEnumerator) Enumerate(ctx context.Context, root string, noIgnore bool) (enumerate.Listing, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return enumerate.FromSlice(nil), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type funcEnumerator func(root string) (enumerate.Listing, error)

func (f funcEnumerator) Enumerate(ctx context.Context, root string, noIgnore bool) (enumerate.Listing, error) {
	return f(root)
}

// syncBuffer is written by the worker goroutine and read by the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEngine(t *testing.T, en enumerate.Enumerator) (*Engine, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	e := New(en, debug.NewLogger(out))
	t.Cleanup(func() { _ = e.Close() })
	return e, out
}

// canonicalTempDir resolves platform temp symlinks such as /var -> /private/var
func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeFiles(t *testing.T, root string, files ...string) []string {
	t.Helper()
	var paths []string
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
		paths = append(paths, p)
	}
	return paths
}

func waitIdle(t *testing.T, info *ProjectInfo) {
	t.Helper()
	require.Eventually(t, func() bool { return !info.IsUpdating() }, 5*time.Second, 5*time.Millisecond,
		"rebuild of %s never finished", info.RootPath)
}

func entryPaths(entries []*FileEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}
