package indexing

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveTime(t *testing.T) {
	mod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := mod.Add(time.Hour)
	earlier := mod.Add(-time.Hour)

	assert.Equal(t, mod, effectiveTime(mod, time.Time{}, false))
	assert.Equal(t, later, effectiveTime(mod, later, true))
	assert.Equal(t, mod, effectiveTime(mod, earlier, true), "an old open never demotes a fresh edit")
}

func TestRanking_NewestModificationFirst(t *testing.T) {
	root := canonicalTempDir(t)
	paths := writeFiles(t, root, "old_one.txt", "open_order.txt", "our_own.txt")
	base := time.Now().Add(-24 * time.Hour)
	for i, p := range paths {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(p, at, at))
	}

	e, _ := newTestEngine(t, &sliceEnumerator{paths: paths})
	info := e.GetOrCreate(root)
	waitIdle(t, info)

	entries, _ := e.Lookup(info, "oo", 0, -1, "")
	assert.Equal(t, []string{paths[2], paths[1], paths[0]}, entryPaths(entries))
}

func TestRanking_OpenOutranksLaterModification(t *testing.T) {
	root := canonicalTempDir(t)
	paths := writeFiles(t, root, "main_view.go", "model_value.go")
	t1 := time.Now().Add(-3 * time.Hour)
	t3 := time.Now().Add(-2 * time.Hour)
	t2 := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(paths[0], t1, t1))
	require.NoError(t, os.Chtimes(paths[1], t3, t3))

	e, _ := newTestEngine(t, &sliceEnumerator{paths: paths})
	info := e.GetOrCreate(root)
	waitIdle(t, info)

	entries, _ := e.Lookup(info, "mv", 0, -1, "")
	require.Equal(t, []string{paths[1], paths[0]}, entryPaths(entries))

	e.RecordOpen(paths[0], t2)
	assert.Equal(t, 1, e.Rerank("mv"))

	entries, _ = e.Lookup(info, "mv", 0, -1, "")
	assert.Equal(t, []string{paths[0], paths[1]}, entryPaths(entries))

	entries, _ = e.Lookup(info, AllFilesKey, 0, -1, "")
	assert.Equal(t, []string{paths[0], paths[1]}, entryPaths(entries), "the all-files bucket follows opens too")

	at, ok := e.LastOpened(paths[0])
	assert.True(t, ok)
	assert.True(t, at.Equal(t2))
}

func TestRanking_SurvivesRebuild(t *testing.T) {
	root := canonicalTempDir(t)
	paths := writeFiles(t, root, "first_thing.txt", "final_test.txt")
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(paths[0], old, old))

	e, _ := newTestEngine(t, &sliceEnumerator{paths: paths})
	info := e.GetOrCreate(root)
	waitIdle(t, info)
	e.RecordOpen(paths[0], time.Now().Add(time.Minute))

	e.RequestRefresh(info)
	waitIdle(t, info)

	entries, _ := e.Lookup(info, "ft", 0, 1, "")
	require.Len(t, entries, 1)
	assert.Equal(t, paths[0], entries[0].Path, "open times feed every rebuild's sort")
}

func TestRerank_UnknownKey(t *testing.T) {
	e, _ := newTestEngine(t, &sliceEnumerator{})
	info := e.GetOrCreate("/repo")
	waitIdle(t, info)

	assert.Equal(t, 0, e.Rerank("nothing"))
	assert.Equal(t, 1, e.Rerank(AllFilesKey), "every project has an all-files bucket")
}

func TestRanking_StableForTies(t *testing.T) {
	root := canonicalTempDir(t)
	paths := writeFiles(t, root, "tie_apple.txt", "tie_avocado.txt", "tie_acorn.txt")
	same := time.Now().Add(-time.Hour)
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, same, same))
	}

	e, _ := newTestEngine(t, &sliceEnumerator{paths: paths})
	info := e.GetOrCreate(root)
	waitIdle(t, info)

	entries, _ := e.Lookup(info, "ta", 0, -1, "")
	assert.Equal(t, paths, entryPaths(entries), "ties keep scan order")
}
