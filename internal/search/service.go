// Package search answers jump-to-file queries against the indexing engine.
//
// Every method takes a project root as the caller sees it; roots are
// canonicalized (absolute, symlinks resolved) before they reach the engine,
// so one directory always maps to one index. Methods that need a finished
// index wait for it with a bounded poll and fail with *errors.TimeoutError
// when the project is still updating after Options.Timeout.
package search

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/errors"
	"github.com/standardbeagle/hopper/internal/humps"
	"github.com/standardbeagle/hopper/internal/indexing"
)

// Options bounds the waits of the query methods.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration

	// Now is the clock used for buffer-open events; nil means time.Now.
	Now func() time.Time
}

// OptionsFromConfig reads the wait section.
func OptionsFromConfig(w config.Wait) Options {
	return Options{Timeout: w.Timeout(), PollInterval: w.PollInterval()}
}

// FileMatch is the client-facing projection of an index entry.
type FileMatch struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Snapshot is the non-blocking view returned by UpdateSearch. MatchesCount
// is the stored size of the key's bucket, which may exceed the number of
// matches a client can page through once vanished files are filtered out.
type Snapshot struct {
	TotalCount   int         `json:"totalCount"`
	IsUpdating   bool        `json:"isUpdating"`
	MatchesCount int         `json:"matchesCount"`
	Matches      []FileMatch `json:"matches"`
}

// Match is the outcome of an open request. When Found is false the Message
// explains why and Suggestions may list nearby keys.
type Match struct {
	Path        string   `json:"path,omitempty"`
	Found       bool     `json:"found"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Service is the query surface over one Engine.
type Service struct {
	engine     *indexing.Engine
	strategies []enumerate.Strategy
	opts       Options
	logger     *debug.Logger
}

// New returns a Service. strategies are the ones Profile times.
func New(engine *indexing.Engine, strategies []enumerate.Strategy, opts Options, logger *debug.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(config.DefaultWaitTimeoutMs) * time.Millisecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Duration(config.DefaultWaitPollIntervalMs) * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{engine: engine, strategies: strategies, opts: opts, logger: logger}
}

// Engine exposes the underlying engine for status reporting.
func (s *Service) Engine() *indexing.Engine {
	return s.engine
}

// CanonicalRoot resolves root to the absolute, symlink-free path used as the
// index identity. It must name an existing directory.
func CanonicalRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.NewInputError("root", root, "must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.NewInputError("root", root, err.Error())
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.NewInputError("root", root, "directory does not exist")
	}
	st, err := os.Stat(resolved)
	if err != nil {
		return "", errors.NewInputError("root", root, "directory does not exist")
	}
	if !st.IsDir() {
		return "", errors.NewInputError("root", root, "not a directory")
	}
	return resolved, nil
}

// canonicalFile resolves a file path the way the worker does; files that
// cannot be resolved keep their cleaned absolute form.
func canonicalFile(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func (s *Service) project(root string) (*indexing.ProjectInfo, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}
	return s.engine.GetOrCreate(canonical), nil
}

// ForceRefresh schedules a rebuild of root unless one is already pending.
func (s *Service) ForceRefresh(root string) error {
	info, err := s.project(root)
	if err != nil {
		return err
	}
	s.engine.RequestRefresh(info)
	debug.LogSearch("refresh requested for %s\n", info.RootPath)
	return nil
}

// OpenFirstMatch returns the best ranked file for key. An empty key ranks
// every keyed file, so it opens the project's most recently touched file. An
// empty lookup triggers one refresh and one retry before reporting no match.
func (s *Service) OpenFirstMatch(ctx context.Context, root, key string) (Match, error) {
	info, err := s.project(root)
	if err != nil {
		return Match{}, err
	}
	return s.openMatch(ctx, info, key, "")
}

// OpenNextMatch returns the best ranked file sharing the key of current,
// other than current itself.
func (s *Service) OpenNextMatch(ctx context.Context, root, current string) (Match, error) {
	info, err := s.project(root)
	if err != nil {
		return Match{}, err
	}
	if current == "" {
		return Match{}, errors.NewInputError("path", current, "must not be empty")
	}
	key := humps.FromFileName(filepath.Base(current))
	if key == "" {
		return noMatch(nil), nil
	}
	return s.openMatch(ctx, info, key, canonicalFile(current))
}

func (s *Service) openMatch(ctx context.Context, info *indexing.ProjectInfo, key, exclude string) (Match, error) {
	if err := s.wait(ctx, info); err != nil {
		return Match{}, err
	}
	if entries, _ := s.engine.Lookup(info, key, 0, 1, exclude); len(entries) > 0 {
		return Match{Path: entries[0].Path, Found: true}, nil
	}

	debug.LogSearch("no match for %q in %s, refreshing\n", key, info.RootPath)
	s.engine.RequestRefresh(info)
	if err := s.wait(ctx, info); err != nil {
		return Match{}, err
	}
	if entries, _ := s.engine.Lookup(info, key, 0, 1, exclude); len(entries) > 0 {
		return Match{Path: entries[0].Path, Found: true}, nil
	}
	return noMatch(suggestKeys(key, info.Keys(), maxSuggestions)), nil
}

func noMatch(suggestions []string) Match {
	return Match{Message: errors.ErrNoMatch.Error(), Suggestions: suggestions}
}

// UpdateSearch returns the current state of root's index for key without
// waiting, so a client can poll while IsUpdating is true.
func (s *Service) UpdateSearch(root, key string, offset, limit int) (Snapshot, error) {
	info, err := s.project(root)
	if err != nil {
		return Snapshot{}, err
	}
	if offset < 0 {
		return Snapshot{}, errors.NewInputError("offset", "", "must not be negative")
	}
	if limit < 0 {
		return Snapshot{}, errors.NewInputError("limit", "", "must not be negative")
	}

	entries, raw := s.engine.Lookup(info, key, offset, limit, "")
	snap := Snapshot{
		TotalCount:   info.TotalCount(),
		IsUpdating:   info.IsUpdating(),
		MatchesCount: raw,
		Matches:      make([]FileMatch, 0, len(entries)),
	}
	for _, e := range entries {
		snap.Matches = append(snap.Matches, FileMatch{Path: e.Path, Name: e.Name})
	}
	return snap, nil
}

// OnBufferOpen records that path was just opened and re-ranks its key in
// every project that indexes it.
func (s *Service) OnBufferOpen(path string) {
	if path == "" {
		return
	}
	canonical := canonicalFile(path)
	s.engine.RecordOpen(canonical, s.opts.Now())
	key := humps.FromFileName(filepath.Base(canonical))
	n := s.engine.Rerank(key)
	debug.LogSearch("opened %s, re-ranked %q in %d projects\n", canonical, key, n)
}

// ListAllFiles returns every keyed file indexed under roots, each path once,
// sorted. Roots are waited for concurrently.
func (s *Service) ListAllFiles(ctx context.Context, roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, errors.NewInputError("roots", "", "at least one root is required")
	}
	infos := make([]*indexing.ProjectInfo, 0, len(roots))
	for _, root := range roots {
		info, err := s.project(root)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	lists := make([][]string, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			if err := s.wait(gctx, info); err != nil {
				return err
			}
			for _, e := range info.Entries(indexing.AllFilesKey) {
				lists[i] = append(lists[i], e.Path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListByExactName returns every indexed path whose base name is name, in
// scan order.
func (s *Service) ListByExactName(ctx context.Context, root, name string) ([]string, error) {
	info, err := s.project(root)
	if err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, errors.NewInputError("name", name, "must be a base file name")
	}
	if err := s.wait(ctx, info); err != nil {
		return nil, err
	}
	paths := info.PathsNamed(name)
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// Profile times every configured strategy against root.
func (s *Service) Profile(ctx context.Context, root string, rounds int) ([]enumerate.Timing, error) {
	canonical, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}
	return enumerate.Profile(ctx, s.strategies, canonical, rounds), nil
}

// wait polls until info is no longer updating. The deadline overruns
// Options.Timeout by at most one poll interval.
func (s *Service) wait(ctx context.Context, info *indexing.ProjectInfo) error {
	if !info.IsUpdating() {
		return nil
	}
	start := time.Now()
	deadline := time.NewTimer(s.opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !info.IsUpdating() {
				return nil
			}
		case <-deadline.C:
			if !info.IsUpdating() {
				return nil
			}
			debug.LogSearch("timed out waiting for %s\n", info.RootPath)
			return errors.NewTimeoutError(info.RootPath, time.Since(start))
		}
	}
}
