package search

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/errors"
	"github.com/standardbeagle/hopper/internal/indexing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// parkedEnumerator never finishes a listing until the engine closes
type parkedEnumerator struct{}

func (parkedEnumerator) Enumerate(ctx context.Context, root string, noIgnore bool) (enumerate.Listing, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestService(t *testing.T, en enumerate.Enumerator, opts Options) *Service {
	t.Helper()
	engine := indexing.New(en, nil)
	t.Cleanup(func() { _ = engine.Close() })
	return New(engine, []enumerate.Strategy{enumerate.NewNative(enumerate.Options{})}, opts, nil)
}

func nativeService(t *testing.T) *Service {
	return newTestService(t, enumerate.NewNative(enumerate.Options{}), Options{})
}

func tempRoot(t *testing.T, files ...string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFiles(t, root, files...)
	return root
}

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}
}

func TestCanonicalRoot(t *testing.T) {
	root := tempRoot(t, "file.txt")

	got, err := CanonicalRoot(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	for _, bad := range []string{"", "  ", filepath.Join(root, "missing"), filepath.Join(root, "file.txt")} {
		_, err := CanonicalRoot(bad)
		assert.True(t, errors.IsInput(err), "%q: %v", bad, err)
	}

	if runtime.GOOS != "windows" {
		link := filepath.Join(tempRoot(t), "link")
		require.NoError(t, os.Symlink(root, link))
		got, err := CanonicalRoot(link)
		require.NoError(t, err)
		assert.Equal(t, root, got, "symlinked roots share one index")
	}
}

func TestUpdateSearch_Snapshot(t *testing.T) {
	root := tempRoot(t, "readMe.txt", "read_me.md", "other.txt")
	s := nativeService(t)

	require.Eventually(t, func() bool {
		snap, err := s.UpdateSearch(root, "rm", 0, 10)
		return err == nil && !snap.IsUpdating
	}, 5*time.Second, 10*time.Millisecond)

	snap, err := s.UpdateSearch(root, "rm", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalCount)
	assert.Equal(t, 2, snap.MatchesCount)
	require.Len(t, snap.Matches, 1)
	assert.Equal(t, filepath.Base(snap.Matches[0].Path), snap.Matches[0].Name)

	snap, err = s.UpdateSearch(root, "zzz", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.MatchesCount)
	assert.NotNil(t, snap.Matches)
	assert.Empty(t, snap.Matches)

	_, err = s.UpdateSearch(root, "rm", -1, 10)
	assert.True(t, errors.IsInput(err))
	_, err = s.UpdateSearch(root, "rm", 0, -1)
	assert.True(t, errors.IsInput(err))
}

func TestUpdateSearch_NeverWaits(t *testing.T) {
	root := tempRoot(t)
	s := newTestService(t, parkedEnumerator{}, Options{Timeout: time.Hour})

	start := time.Now()
	snap, err := s.UpdateSearch(root, "rm", 0, 10)
	require.NoError(t, err)
	assert.True(t, snap.IsUpdating)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOpenFirstMatch(t *testing.T) {
	root := tempRoot(t, "readMe.txt", "src/runMain.go")
	s := nativeService(t)
	ctx := context.Background()

	m, err := s.OpenFirstMatch(ctx, root, "rm")
	require.NoError(t, err)
	assert.True(t, m.Found)
	assert.Contains(t, []string{filepath.Join(root, "readMe.txt"), filepath.Join(root, "src", "runMain.go")}, m.Path)

	m, err = s.OpenFirstMatch(ctx, root, "rn")
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.Equal(t, "could not find match", m.Message)
	assert.Equal(t, []string{"rm"}, m.Suggestions)

	_, err = s.OpenFirstMatch(ctx, filepath.Join(root, "nope"), "rm")
	assert.True(t, errors.IsInput(err))
}

func TestOpenFirstMatch_EmptyKeyOpensNewest(t *testing.T) {
	root := tempRoot(t, "old_notes.txt", "fresh_build.go", "mid_point.md")
	base := time.Now().Add(-24 * time.Hour)
	for i, name := range []string{"old_notes.txt", "mid_point.md", "fresh_build.go"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(filepath.Join(root, name), at, at))
	}
	s := newTestService(t, enumerate.NewNative(enumerate.Options{}), Options{
		Now: func() time.Time { return time.Now().Add(time.Hour) },
	})
	ctx := context.Background()

	m, err := s.OpenFirstMatch(ctx, root, "")
	require.NoError(t, err)
	require.True(t, m.Found)
	assert.Equal(t, filepath.Join(root, "fresh_build.go"), m.Path)

	s.OnBufferOpen(filepath.Join(root, "old_notes.txt"))
	m, err = s.OpenFirstMatch(ctx, root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "old_notes.txt"), m.Path, "an open moves the file to the front")

	snap, err := s.UpdateSearch(root, "", 0, 1)
	require.NoError(t, err)
	require.Len(t, snap.Matches, 1)
	assert.Equal(t, filepath.Join(root, "old_notes.txt"), snap.Matches[0].Path)
}

func TestOpenFirstMatch_EmptyKeyEmptyProject(t *testing.T) {
	root := tempRoot(t)
	s := nativeService(t)

	m, err := s.OpenFirstMatch(context.Background(), root, "")
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.Empty(t, m.Suggestions)
}

func TestOpenFirstMatch_RefreshesOnMiss(t *testing.T) {
	root := tempRoot(t, "existing.txt")
	s := nativeService(t)
	ctx := context.Background()

	_, err := s.OpenFirstMatch(ctx, root, "e")
	require.NoError(t, err)

	writeFiles(t, root, "brandNew.txt")
	m, err := s.OpenFirstMatch(ctx, root, "bn")
	require.NoError(t, err)
	assert.True(t, m.Found, "a miss triggers one refresh and retry")
	assert.Equal(t, filepath.Join(root, "brandNew.txt"), m.Path)
}

func TestOpenNextMatch(t *testing.T) {
	root := tempRoot(t, "userModel.go", "user_model.py", "user_model_test.go", "solo.go")
	s := nativeService(t)
	ctx := context.Background()

	current := filepath.Join(root, "userModel.go")
	m, err := s.OpenNextMatch(ctx, root, current)
	require.NoError(t, err)
	assert.True(t, m.Found)
	assert.Equal(t, filepath.Join(root, "user_model.py"), m.Path, "only files sharing the key alternate")

	m, err = s.OpenNextMatch(ctx, root, filepath.Join(root, "solo.go"))
	require.NoError(t, err)
	assert.False(t, m.Found)

	m, err = s.OpenNextMatch(ctx, root, filepath.Join(root, "123.go"))
	require.NoError(t, err)
	assert.False(t, m.Found, "unkeyed files have no alternate")

	_, err = s.OpenNextMatch(ctx, root, "")
	assert.True(t, errors.IsInput(err))
}

func TestOnBufferOpen_Reranks(t *testing.T) {
	root := tempRoot(t, "app_config.go", "api_client.go")
	older := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "app_config.go"), older, older))

	s := newTestService(t, enumerate.NewNative(enumerate.Options{}), Options{
		Now: func() time.Time { return time.Now().Add(time.Hour) },
	})
	ctx := context.Background()

	m, err := s.OpenFirstMatch(ctx, root, "ac")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "api_client.go"), m.Path)

	s.OnBufferOpen(filepath.Join(root, "app_config.go"))
	m, err = s.OpenFirstMatch(ctx, root, "ac")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "app_config.go"), m.Path)

	s.OnBufferOpen("")
	s.OnBufferOpen(filepath.Join(root, "never_indexed.go"))
}

func TestListAllFiles(t *testing.T) {
	outer := tempRoot(t, "a.txt", "inner/b.txt", "inner/456")
	inner := filepath.Join(outer, "inner")
	other := tempRoot(t, "c.txt")
	s := nativeService(t)

	files, err := s.ListAllFiles(context.Background(), []string{outer, inner, other})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(outer, "a.txt"),
		filepath.Join(outer, "inner", "b.txt"),
		filepath.Join(other, "c.txt"),
	}, files, "nested roots list shared files once and unkeyed files not at all")
	assert.True(t, sort.StringsAreSorted(files))

	_, err = s.ListAllFiles(context.Background(), nil)
	assert.True(t, errors.IsInput(err))
}

func TestListByExactName(t *testing.T) {
	root := tempRoot(t, "a/Makefile", "b/Makefile", "c/other")
	s := nativeService(t)
	ctx := context.Background()

	paths, err := s.ListByExactName(ctx, root, "Makefile")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a", "Makefile"), filepath.Join(root, "b", "Makefile")}, paths)

	paths, err = s.ListByExactName(ctx, root, "missing")
	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)

	_, err = s.ListByExactName(ctx, root, "a/Makefile")
	assert.True(t, errors.IsInput(err))
}

func TestWait_TimesOutWithinOnePollInterval(t *testing.T) {
	root := tempRoot(t)
	opts := Options{Timeout: 150 * time.Millisecond, PollInterval: 25 * time.Millisecond}
	s := newTestService(t, parkedEnumerator{}, opts)

	start := time.Now()
	_, err := s.OpenFirstMatch(context.Background(), root, "rm")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err), "got %v", err)
	assert.GreaterOrEqual(t, elapsed, opts.Timeout)
	// Scheduling slack on loaded machines on top of the one interval bound
	assert.Less(t, elapsed, opts.Timeout+opts.PollInterval+250*time.Millisecond)
}

func TestWait_HonoursContext(t *testing.T) {
	root := tempRoot(t)
	s := newTestService(t, parkedEnumerator{}, Options{Timeout: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.ListByExactName(ctx, root, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.ListAllFiles(ctx, []string{root})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestForceRefresh(t *testing.T) {
	root := tempRoot(t, "first.txt")
	s := nativeService(t)

	require.NoError(t, s.ForceRefresh(root))
	assert.True(t, errors.IsInput(s.ForceRefresh(filepath.Join(root, "first.txt"))))

	info := s.Engine().Project(root)
	require.NotNil(t, info)
	require.Eventually(t, func() bool { return !info.IsUpdating() }, 5*time.Second, 10*time.Millisecond)
}

func TestProfile(t *testing.T) {
	root := tempRoot(t, "x.txt", "y/z.txt")
	s := nativeService(t)

	timings, err := s.Profile(context.Background(), root, 2)
	require.NoError(t, err)
	require.Len(t, timings, 1)
	assert.Equal(t, "native", timings[0].Strategy)
	assert.Equal(t, 2, timings[0].Files)

	_, err = s.Profile(context.Background(), filepath.Join(root, "nope"), 1)
	assert.True(t, errors.IsInput(err))
}

func TestSuggestKeys(t *testing.T) {
	keys := []string{"rm", "rmt", "r", "abc", "zzzz", "tiat"}
	assert.Equal(t, []string{"r", "rm", "rmt"}, suggestKeys("rn", keys, 3))
	assert.Equal(t, []string{"rm"}, suggestKeys("rmt", keys, 1))
	assert.Empty(t, suggestKeys("q", keys, 3))
	assert.Empty(t, suggestKeys("rn", nil, 3))
}
