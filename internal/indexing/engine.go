// Package indexing keeps one file index per project root and rebuilds it in
// the background.
//
// An Engine owns every piece of shared state: the project map, the map of
// last-opened times, and a FIFO queue drained by a single worker goroutine.
// Callers never wait for a scan; they read whatever generation is current and
// poll ProjectInfo.IsUpdating when they need a finished one.
//
// Lock order, outermost first: project map, a project's idMap or nameMap, one
// bucket, then leaf values (last-opened map, entry modification time). No
// path acquires them in the reverse direction.
package indexing

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/guard"
)

// Engine is the process-wide indexing context.
type Engine struct {
	enumerator enumerate.Enumerator
	logger     *debug.Logger

	projects   *guard.RWValue[map[string]*ProjectInfo]
	lastOpened *guard.RWValue[map[string]time.Time]
	queue      *rootQueue

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New starts an Engine whose worker lists files with en. A nil logger discards.
func New(en enumerate.Enumerator, logger *debug.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		enumerator: en,
		logger:     logger,
		projects:   guard.NewRWValue(make(map[string]*ProjectInfo)),
		lastOpened: guard.NewRWValue(make(map[string]time.Time)),
		queue:      newRootQueue(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go e.run()
	return e
}

// Close stops the worker, aborting a running enumeration, and waits for it
// to exit. Queued roots are dropped.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done
	})
	return nil
}

// GetOrCreate returns the index for a canonical root, creating it and
// enqueueing its first rebuild when absent. Concurrent callers for the same
// root get the same ProjectInfo and cause exactly one enqueue.
func (e *Engine) GetOrCreate(root string) *ProjectInfo {
	if info := e.Project(root); info != nil {
		return info
	}

	var info *ProjectInfo
	created := false
	e.projects.Write(func(m *map[string]*ProjectInfo) {
		info = (*m)[root]
		if info == nil {
			info = newProjectInfo(root)
			(*m)[root] = info
			created = true
		}
	})
	if created {
		debug.LogIndexing("created project %s\n", root)
		e.queue.push(root)
	}
	return info
}

// Project returns the index for root, or nil when it was never requested.
func (e *Engine) Project(root string) *ProjectInfo {
	var info *ProjectInfo
	e.projects.Read(func(m map[string]*ProjectInfo) {
		info = m[root]
	})
	return info
}

// Projects returns every known index ordered by root.
func (e *Engine) Projects() []*ProjectInfo {
	var out []*ProjectInfo
	e.projects.Read(func(m map[string]*ProjectInfo) {
		out = make([]*ProjectInfo, 0, len(m))
		for _, info := range m {
			out = append(out, info)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RootPath < out[j].RootPath })
	return out
}

// RequestRefresh enqueues a rebuild unless one is already queued or running.
func (e *Engine) RequestRefresh(info *ProjectInfo) {
	if info.updating.Swap(true) {
		debug.LogIndexing("refresh of %s already pending\n", info.RootPath)
		return
	}
	e.queue.push(info.RootPath)
}

// QueueLen is the number of roots waiting for the worker.
func (e *Engine) QueueLen() int {
	return e.queue.len()
}

// Enqueued is the number of rebuilds ever enqueued.
func (e *Engine) Enqueued() int {
	return e.queue.total()
}

// Lookup returns the entries for key at [offset, offset+limit) of the
// bucket after dropping exclude and files that no longer exist. A negative
// limit means no upper bound.
//
// The count is the length of the stored bucket, not of the filtered view, so
// it may exceed the number of entries a caller can page through.
func (e *Engine) Lookup(info *ProjectInfo, key string, offset, limit int, exclude string) ([]*FileEntry, int) {
	list := info.list(key)
	if list == nil {
		return nil, 0
	}
	if offset < 0 {
		offset = 0
	}

	var (
		out []*FileEntry
		raw int
	)
	list.Read(func(entries []*FileEntry) {
		raw = len(entries)
		seen := 0
		for _, entry := range entries {
			if limit >= 0 && len(out) >= limit {
				return
			}
			if exclude != "" && entry.Path == exclude {
				continue
			}
			if _, err := os.Stat(entry.Path); err != nil {
				continue
			}
			if seen >= offset {
				out = append(out, entry)
			}
			seen++
		}
	})
	return out, raw
}
