// Package enumerate lists the files under a project root. Several strategies
// exist (external tools such as rg or git, a native walker, a user command);
// a Chain tries them in the configured preference order and the first one
// able to start a listing wins.
package enumerate

import (
	"context"
	"errors"
	"fmt"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	hoppererrors "github.com/standardbeagle/hopper/internal/errors"
)

var (
	// ErrUnsupported is returned by a strategy that cannot run for a root:
	// its tool is missing, the root is not a repository of its kind, or the
	// platform is unsupported.
	ErrUnsupported = errors.New("strategy unsupported")

	// ErrExhausted is returned by a Chain when no strategy produced a listing.
	ErrExhausted = errors.New("could not find valid search type")
)

// Listing is a lazy, finite, non-restartable sequence of file paths.
// Paths are absolute or relative to the enumerated root.
//
//	for l.Next() {
//	    use(l.Path())
//	}
//	if err := l.Err(); err != nil { ... }
//	l.Close()
type Listing interface {
	Next() bool
	Path() string
	Err() error
	Close() error
}

// Enumerator produces a Listing for a root. noIgnore disables VCS ignore files.
type Enumerator interface {
	Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error)
}

// Strategy is a named Enumerator that may decline with ErrUnsupported.
type Strategy interface {
	Enumerator
	Name() string
}

// Options carries the settings every strategy reads.
type Options struct {
	FollowLinks       bool
	ShowHidden        bool
	RecurseSubmodules bool
	RespectGitignore  bool
	CustomCommand     string
	Encoding          string
	IgnoreDirs        []string
	IgnoreFiles       []string
}

// OptionsFromConfig copies the search section of the configuration.
func OptionsFromConfig(s config.Search) Options {
	return Options{
		FollowLinks:       s.FollowLinks,
		ShowHidden:        s.ShowHidden,
		RecurseSubmodules: s.RecurseSubmodules,
		RespectGitignore:  s.RespectGitignore,
		CustomCommand:     s.CustomCommand,
		Encoding:          s.Encoding,
		IgnoreDirs:        append([]string(nil), s.IgnoreDirs...),
		IgnoreFiles:       append([]string(nil), s.IgnoreFiles...),
	}
}

// New returns the strategy registered under name.
func New(name string, opts Options) (Strategy, error) {
	switch name {
	case config.StrategyRg:
		return &rgStrategy{opts: opts}, nil
	case config.StrategyHg:
		return &hgStrategy{opts: opts}, nil
	case config.StrategyGit:
		return &gitStrategy{opts: opts}, nil
	case config.StrategyPt:
		return &ptStrategy{opts: opts}, nil
	case config.StrategyFind:
		return &findStrategy{opts: opts}, nil
	case config.StrategyAg:
		return &agStrategy{opts: opts}, nil
	case config.StrategyNative:
		return NewNative(opts), nil
	case config.StrategyCustom:
		return &customStrategy{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", name)
	}
}

// Chain tries strategies in order.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain over the given strategies.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// FromConfig builds the chain described by the search section. A configured
// custom command runs before every other strategy, as the user asked for it
// explicitly.
func FromConfig(s config.Search) (*Chain, error) {
	opts := OptionsFromConfig(s)

	order := s.PreferenceOrder
	if s.CustomCommand != "" && !s.HasStrategy(config.StrategyCustom) {
		order = append([]string{config.StrategyCustom}, order...)
	}

	strategies := make([]Strategy, 0, len(order))
	for _, name := range order {
		st, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}
	return NewChain(strategies...), nil
}

// Strategies returns the strategies in preference order.
func (c *Chain) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// Enumerate returns the listing of the first strategy that accepts root.
// Strategies failing to start are logged and skipped.
func (c *Chain) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	var failures []error
	for _, st := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		listing, err := st.Enumerate(ctx, root, noIgnore)
		switch {
		case err == nil:
			debug.LogEnumerate("using %s for %s\n", st.Name(), root)
			return listing, nil
		case errors.Is(err, ErrUnsupported):
			debug.LogEnumerate("%s unsupported for %s\n", st.Name(), root)
		default:
			debug.LogEnumerate("%s failed for %s: %v\n", st.Name(), root, err)
			failures = append(failures, fmt.Errorf("%s: %w", st.Name(), err))
		}
	}

	if cause := hoppererrors.NewMultiError(failures).ErrorOrNil(); cause != nil {
		return nil, fmt.Errorf("%w: %w", ErrExhausted, cause)
	}
	return nil, ErrExhausted
}

// Collect drains a listing into a slice and closes it.
func Collect(l Listing) ([]string, error) {
	defer l.Close()

	var paths []string
	for l.Next() {
		paths = append(paths, l.Path())
	}
	return paths, l.Err()
}

// sliceListing serves a precomputed list of paths.
type sliceListing struct {
	paths []string
	pos   int
}

// FromSlice wraps paths in a Listing.
func FromSlice(paths []string) Listing {
	return &sliceListing{paths: paths, pos: -1}
}

func (s *sliceListing) Next() bool {
	if s.pos+1 >= len(s.paths) {
		s.pos = len(s.paths)
		return false
	}
	s.pos++
	return true
}

func (s *sliceListing) Path() string {
	if s.pos < 0 || s.pos >= len(s.paths) {
		return ""
	}
	return s.paths[s.pos]
}

func (s *sliceListing) Err() error   { return nil }
func (s *sliceListing) Close() error { return nil }
