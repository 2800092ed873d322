package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/pkg/pathutil"
)

// Watcher turns file system changes under indexed roots into refresh
// requests. Only events that change the set of files count: creates,
// removes and renames. Events are debounced per root.
type Watcher struct {
	watcher   *fsnotify.Watcher
	engine    *Engine
	search    config.Search
	logger    *debug.Logger
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu    sync.Mutex
	roots map[string]*config.GitignoreParser

	statsMu         sync.Mutex
	eventsProcessed int64
	refreshes       int64
	errorCount      int64
	lastEventTime   time.Time
}

// NewWatcher creates a Watcher feeding engine. It does nothing until Watch.
func NewWatcher(engine *Engine, search config.Search, debounce time.Duration, logger *debug.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher: fsw,
		engine:  engine,
		search:  search,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		roots:   make(map[string]*config.GitignoreParser),
	}
	w.debouncer = newEventDebouncer(debounce, w.flush)

	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// Watch adds watches for every directory under root. Watching a root twice
// is a no-op.
func (w *Watcher) Watch(root string) error {
	w.mu.Lock()
	if _, ok := w.roots[root]; ok {
		w.mu.Unlock()
		return nil
	}
	var parser *config.GitignoreParser
	if w.search.RespectGitignore {
		parser = config.NewGitignoreParser()
		if err := parser.LoadGitignore(root); err != nil {
			debug.LogIndexing("watcher: no ignore files for %s: %v\n", root, err)
		}
	}
	w.roots[root] = parser
	w.mu.Unlock()

	debug.LogIndexing("starting file watcher for %s\n", root)
	if err := w.addWatches(root, root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}
	return nil
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.roots))
	for root := range w.roots {
		out = append(out, root)
	}
	return out
}

// Close stops watching. Pending debounced events are dropped.
func (w *Watcher) Close() error {
	w.cancel()
	w.debouncer.stop()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// addWatches recursively adds watches to the directories under start, which
// lies inside the watched root.
func (w *Watcher) addWatches(root, start string) error {
	// Track visited directories to prevent infinite loops from symlink cycles
	visitedDirs := make(map[string]bool)

	return filepath.Walk(start, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visitedDirs[realPath] {
			return filepath.SkipDir
		}
		visitedDirs[realPath] = true

		if path != root && w.shouldIgnoreDirectory(root, path) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Error("failed to add watch for %s: %v", path, err)
			w.incrementStats(0, 0, 1)
		}
		return nil
	})
}

// shouldIgnoreDirectory applies the configured ignore_dirs patterns, the
// hidden-directory rule, and the root's ignore files.
func (w *Watcher) shouldIgnoreDirectory(root, path string) bool {
	name := filepath.Base(path)
	if !w.search.ShowHidden && strings.HasPrefix(name, ".") {
		return true
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.search.IgnoreDirs {
		target := name
		if strings.Contains(pattern, "/") {
			target = rel
		}
		if matched, _ := doublestar.Match(pattern, target); matched {
			return true
		}
	}

	w.mu.Lock()
	parser := w.roots[root]
	w.mu.Unlock()
	return parser != nil && parser.ShouldIgnore(rel, true)
}

// rootOf returns the longest watched root containing path.
func (w *Watcher) rootOf(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	best := ""
	for root := range w.roots {
		if pathutil.Within(path, root) && len(root) > len(best) {
			best = root
		}
	}
	return best
}

// processEvents processes file system events from fsnotify
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher: %v", err)
			w.incrementStats(0, 0, 1)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	path := event.Name
	root := w.rootOf(path)
	if root == "" {
		return
	}
	debug.LogIndexing("watcher: %v %s\n", event.Op, path)

	// New directories need their own watches before files appear in them
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.shouldIgnoreDirectory(root, path) {
				return
			}
			if err := w.addWatches(root, path); err != nil {
				w.logger.Error("failed to watch new directory %s: %v", path, err)
			}
		}
	}

	w.incrementStats(1, 0, 0)
	w.debouncer.addEvent(root)
}

// flush requests one refresh per root with pending events.
func (w *Watcher) flush(roots []string) {
	for _, root := range roots {
		info := w.engine.Project(root)
		if info == nil {
			continue
		}
		w.engine.RequestRefresh(info)
		w.incrementStats(0, 1, 0)
	}
}

func (w *Watcher) incrementStats(events, refreshes, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.eventsProcessed += events
	w.refreshes += refreshes
	w.errorCount += errors
	if events > 0 {
		w.lastEventTime = time.Now()
	}
}

// WatchStats contains statistics about file watching operations
type WatchStats struct {
	Roots           int       `json:"roots"`
	EventsProcessed int64     `json:"events_processed"`
	Refreshes       int64     `json:"refreshes"`
	ErrorCount      int64     `json:"error_count"`
	LastEventTime   time.Time `json:"last_event_time"`
	IsActive        bool      `json:"is_active"`
}

// GetStats returns current watch statistics
func (w *Watcher) GetStats() WatchStats {
	roots := len(w.Roots())

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return WatchStats{
		Roots:           roots,
		EventsProcessed: w.eventsProcessed,
		Refreshes:       w.refreshes,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// eventDebouncer collects roots with pending events and hands them to fn
// once no new event arrived for the debounce period.
type eventDebouncer struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	fn       func(roots []string)
}

func newEventDebouncer(debounce time.Duration, fn func(roots []string)) *eventDebouncer {
	return &eventDebouncer{
		pending:  make(map[string]struct{}),
		debounce: debounce,
		fn:       fn,
	}
}

func (d *eventDebouncer) addEvent(root string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending[root] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// stop cancels a pending flush. Events pending at shutdown are dropped since
// the engine is being torn down too.
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]struct{})
}

func (d *eventDebouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	roots := make([]string, 0, len(d.pending))
	for root := range d.pending {
		roots = append(roots, root)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	d.fn(roots)
}
