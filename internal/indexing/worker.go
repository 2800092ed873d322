package indexing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/errors"
	"github.com/standardbeagle/hopper/internal/humps"
	"github.com/standardbeagle/hopper/pkg/pathutil"
)

// run drains the queue one root at a time until Close.
func (e *Engine) run() {
	defer close(e.done)
	for {
		root, ok := e.queue.pop(e.ctx)
		if !ok {
			return
		}
		e.process(root)
	}
}

// process rebuilds one root inside a recovery boundary. Whatever happens,
// the project leaves the worker with updating cleared so it can be
// refreshed again.
func (e *Engine) process(root string) {
	info := e.projectForRebuild(root)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Recovered("rebuild "+root, r)
		}
		info.updating.Set(false)
	}()

	if !info.updating.Get() {
		panic(fmt.Sprintf("rebuild of %s dequeued while not marked updating", root))
	}

	if err := e.rebuild(info); err != nil {
		e.logger.Exception("rebuild "+root, err)
	}
}

// projectForRebuild returns the project for a dequeued root. Roots only enter
// the queue through GetOrCreate or RequestRefresh, so the insert is a
// fallback that never enqueues.
func (e *Engine) projectForRebuild(root string) *ProjectInfo {
	if info := e.Project(root); info != nil {
		return info
	}
	var info *ProjectInfo
	e.projects.Write(func(m *map[string]*ProjectInfo) {
		info = (*m)[root]
		if info == nil {
			info = newProjectInfo(root)
			(*m)[root] = info
		}
	})
	return info
}

// rebuild replaces the project's index with a fresh scan of its root.
// Readers may see the new generation while it fills.
func (e *Engine) rebuild(info *ProjectInfo) error {
	root := info.RootPath
	debug.LogIndexing("rebuilding %s\n", root)
	info.reset()

	listing, err := e.enumerator.Enumerate(e.ctx, root, false)
	if err != nil {
		return errors.NewIndexingError("enumerate", err).WithRoot(root).WithRecoverable(true)
	}
	defer listing.Close()

	for listing.Next() {
		raw := listing.Path()
		path, ok := canonicalize(root, raw)
		if !ok {
			debug.LogIndexing("discarding %s outside %s\n", raw, root)
			continue
		}

		name := filepath.Base(raw)
		info.appendName(name, path)

		key := humps.FromFileName(name)
		if key == "" {
			continue
		}
		info.appendEntry(key, newFileEntry(path, name))
	}
	listErr := listing.Err()

	// A failed listing still leaves a usable partial index behind
	e.statAll(info)
	e.sortAll(info)

	debug.LogIndexing("indexed %d files under %s\n", info.TotalCount(), root)
	if listErr != nil {
		return errors.NewIndexingError("list", listErr).WithRoot(root).WithRecoverable(true)
	}
	return nil
}

// statAll fills in modification times. Files deleted mid-scan keep the zero time.
func (e *Engine) statAll(info *ProjectInfo) {
	for _, entry := range info.Entries(AllFilesKey) {
		st, err := os.Stat(entry.Path)
		if err != nil {
			continue
		}
		entry.modTime.Set(st.ModTime())
	}
}

func (e *Engine) sortAll(info *ProjectInfo) {
	for _, list := range info.lists() {
		e.sortFileList(list)
	}
}

// canonicalize resolves a listed path against root and reports whether the
// result still lies beneath it. Paths that cannot be resolved are cleaned
// instead, so entries listed by a VCS but missing on disk are kept.
func canonicalize(root, p string) (string, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		resolved = filepath.Clean(p)
	}
	if pathutil.Within(resolved, root) {
		return resolved, true
	}
	return "", false
}
