package enumerate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/hopper/internal/config"
)

// Native walks the tree in-process. It never declines a readable directory,
// which makes it the usual last entry of a preference order.
type Native struct {
	opts Options
}

// NewNative returns the in-process walker.
func NewNative(opts Options) *Native {
	return &Native{opts: opts}
}

func (n *Native) Name() string { return config.StrategyNative }

func (n *Native) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "enumerate", Path: root, Err: errors.New("not a directory")}
	}

	w := &walker{
		root: root,
		opts: n.opts,
	}
	if n.opts.RespectGitignore && !noIgnore {
		w.gitignore = config.NewGitignoreParser()
		if err := w.gitignore.LoadGitignore(root); err != nil {
			return nil, err
		}
	}
	if n.opts.FollowLinks {
		w.visited = make(map[string]bool)
		if real, err := filepath.EvalSymlinks(root); err == nil {
			w.visited[real] = true
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &nativeListing{
		paths:  make(chan string, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		defer close(l.paths)
		l.err = w.walk(ctx, root, "", l.paths)
	}()
	return l, nil
}

type walker struct {
	root      string
	opts      Options
	gitignore *config.GitignoreParser
	visited   map[string]bool // real paths of directories entered through links
}

// walk sends every accepted file below dir. rel is dir relative to the root
// in slash form, empty for the root itself.
func (w *walker) walk(ctx context.Context, dir, rel string, out chan<- string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if rel == "" {
			return err
		}
		// Unreadable subdirectories are skipped like the external tools do
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		childRel := path.Join(rel, name)

		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(full)
			if err != nil {
				continue // dangling link
			}
			if target.IsDir() {
				if !w.opts.FollowLinks {
					continue
				}
				real, err := filepath.EvalSymlinks(full)
				if err != nil || w.visited[real] {
					continue
				}
				w.visited[real] = true
			}
			isDir = target.IsDir()
		}

		if w.skip(name, childRel, isDir) {
			continue
		}

		if isDir {
			if err := w.walk(ctx, full, childRel, out); err != nil {
				return err
			}
			continue
		}

		select {
		case out <- full:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *walker) skip(name, rel string, isDir bool) bool {
	if !w.opts.ShowHidden && strings.HasPrefix(name, ".") {
		return true
	}

	patterns := w.opts.IgnoreFiles
	if isDir {
		patterns = w.opts.IgnoreDirs
	}
	for _, p := range patterns {
		target := name
		if strings.Contains(p, "/") {
			target = rel
		}
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}

	return w.gitignore != nil && w.gitignore.ShouldIgnore(rel, isDir)
}

type nativeListing struct {
	paths  chan string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	path   string
	closed bool
	once   sync.Once
}

func (l *nativeListing) Next() bool {
	p, ok := <-l.paths
	l.path = p
	return ok
}

func (l *nativeListing) Path() string { return l.path }

// Err waits for the walk to finish, so call it only once Next has returned
// false or after Close.
func (l *nativeListing) Err() error {
	<-l.done
	if l.closed && errors.Is(l.err, context.Canceled) {
		return nil
	}
	return l.err
}

// Close stops the walk and waits for the walking goroutine to exit.
func (l *nativeListing) Close() error {
	l.once.Do(func() {
		l.closed = true
		l.cancel()
		for range l.paths {
		}
		<-l.done
	})
	return nil
}
