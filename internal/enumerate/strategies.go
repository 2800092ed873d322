package enumerate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/hopper/internal/config"
)

// hasAncestorDir reports whether dir/name, or name in any ancestor of dir, is a directory.
func hasAncestorDir(dir, name string) bool {
	dir = filepath.Clean(dir)
	for {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// without returns patterns minus the entries equal to drop.
func without(patterns []string, drop string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}

// visiblePatterns drops dot patterns when hidden files are not shown, since
// the tool already skips them.
func visiblePatterns(opts Options) []string {
	all := append(append([]string{}, opts.IgnoreDirs...), opts.IgnoreFiles...)
	if opts.ShowHidden {
		return all
	}
	out := all[:0]
	for _, p := range all {
		if !strings.HasPrefix(p, ".") {
			out = append(out, p)
		}
	}
	return out
}

func requireTool(name string) error {
	if _, err := lookPath(name); err != nil {
		return ErrUnsupported
	}
	return nil
}

// rg --files lists relative to its working directory.
type rgStrategy struct{ opts Options }

func (s *rgStrategy) Name() string { return config.StrategyRg }

func (s *rgStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if err := requireTool("rg"); err != nil {
		return nil, err
	}
	return runCommands(ctx, root, s.opts, false, rgArgs(s.opts, noIgnore))
}

func rgArgs(opts Options, noIgnore bool) []string {
	args := []string{"rg", "--no-messages", "--files", "--color", "never"}
	for _, p := range visiblePatterns(opts) {
		args = append(args, "-g", "!"+p)
	}
	if opts.FollowLinks {
		args = append(args, "-L")
	}
	if opts.ShowHidden {
		args = append(args, "--hidden")
	}
	if noIgnore {
		args = append(args, "--no-ignore")
	}
	return args
}

// hg files only works inside a Mercurial working copy.
type hgStrategy struct{ opts Options }

func (s *hgStrategy) Name() string { return config.StrategyHg }

func (s *hgStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if !hasAncestorDir(root, ".hg") {
		return nil, ErrUnsupported
	}
	if err := requireTool("hg"); err != nil {
		return nil, err
	}
	return runCommands(ctx, root, s.opts, false, hgArgs(s.opts, root))
}

func hgArgs(opts Options, root string) []string {
	args := []string{"hg", "files"}
	for _, d := range without(opts.IgnoreDirs, ".hg") {
		args = append(args, "-X", expandGlob(d, true))
	}
	for _, f := range without(opts.IgnoreFiles, ".hg") {
		args = append(args, "-X", expandGlob(f, false))
	}
	return append(args, root)
}

// expandGlob turns a name pattern into an hg pattern matching at any depth.
func expandGlob(pattern string, dir bool) string {
	if filepath.IsAbs(pattern) {
		if dir {
			return filepath.Join(pattern, "*")
		}
		return pattern
	}
	if dir {
		return "**/" + pattern + "/*"
	}
	return "**/" + pattern
}

// git lists tracked files, then untracked ones.
type gitStrategy struct{ opts Options }

func (s *gitStrategy) Name() string { return config.StrategyGit }

func (s *gitStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if !hasAncestorDir(root, ".git") {
		return nil, ErrUnsupported
	}
	if err := requireTool("git"); err != nil {
		return nil, err
	}
	tracked, others := gitArgs(s.opts, noIgnore)
	return runCommands(ctx, root, s.opts, false, tracked, others)
}

func gitArgs(opts Options, noIgnore bool) (tracked, others []string) {
	tracked = []string{"git", "ls-files"}
	if opts.RecurseSubmodules {
		tracked = append(tracked, "--recurse-submodules")
	}

	others = []string{"git", "ls-files", "--others"}
	if !noIgnore {
		others = append(others, "--exclude-standard")
	}
	for _, p := range without(opts.IgnoreDirs, ".git") {
		others = append(others, "-x", p)
	}
	for _, p := range without(opts.IgnoreFiles, ".git") {
		others = append(others, "-x", p)
	}
	return tracked, others
}

// pt, the platinum searcher. Not used on Windows.
type ptStrategy struct{ opts Options }

func (s *ptStrategy) Name() string { return config.StrategyPt }

func (s *ptStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if isWindows {
		return nil, ErrUnsupported
	}
	if err := requireTool("pt"); err != nil {
		return nil, err
	}
	return runCommands(ctx, root, s.opts, false, ptArgs(s.opts, root, noIgnore))
}

func ptArgs(opts Options, root string, noIgnore bool) []string {
	args := []string{"pt", "--nocolor"}
	for _, p := range visiblePatterns(opts) {
		args = append(args, "--ignore="+p)
	}
	if opts.FollowLinks {
		args = append(args, "-f")
	}
	if opts.ShowHidden {
		args = append(args, "--hidden")
	}
	if noIgnore {
		args = append(args, "-U")
	}
	return append(args, "-g=", root)
}

// find prunes ignored directories and hidden entries itself. Not used on Windows.
type findStrategy struct{ opts Options }

func (s *findStrategy) Name() string { return config.StrategyFind }

func (s *findStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if isWindows {
		return nil, ErrUnsupported
	}
	if err := requireTool("find"); err != nil {
		return nil, err
	}
	return runCommands(ctx, root, s.opts, true, findArgs(s.opts, root))
}

func findArgs(opts Options, root string) []string {
	args := []string{"find"}
	if opts.FollowLinks {
		args = append(args, "-L")
	}
	// The root itself is matched first so a dot-named root is never pruned
	args = append(args, root, "-path", root, "-o")
	for _, d := range opts.IgnoreDirs {
		args = append(args, "-type", "d", "-name", d, "-prune", "-o")
	}
	for _, f := range opts.IgnoreFiles {
		args = append(args, "-type", "f", "-name", f, "-o")
	}
	if !opts.ShowHidden {
		args = append(args, "-name", ".*", "-prune", "-o")
	}
	return append(args, "-type", "f", "-print")
}

// ag, the silver searcher. Not used on Windows.
type agStrategy struct{ opts Options }

func (s *agStrategy) Name() string { return config.StrategyAg }

func (s *agStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if isWindows {
		return nil, ErrUnsupported
	}
	if err := requireTool("ag"); err != nil {
		return nil, err
	}
	return runCommands(ctx, root, s.opts, false, agArgs(s.opts, root, noIgnore))
}

func agArgs(opts Options, root string, noIgnore bool) []string {
	args := []string{"ag", "--nocolor", "--silent"}
	for _, p := range visiblePatterns(opts) {
		args = append(args, "--ignore", p)
	}
	if opts.FollowLinks {
		args = append(args, "-f")
	}
	if opts.ShowHidden {
		args = append(args, "--hidden")
	}
	if noIgnore {
		args = append(args, "-U")
	}
	return append(args, "-g", "", root)
}

// customStrategy runs the user's command line through the shell with %s
// replaced by the quoted root.
type customStrategy struct{ opts Options }

func (s *customStrategy) Name() string { return config.StrategyCustom }

func (s *customStrategy) Enumerate(ctx context.Context, root string, noIgnore bool) (Listing, error) {
	if s.opts.CustomCommand == "" {
		return nil, ErrUnsupported
	}
	return runCommands(ctx, root, s.opts, false, shellCommand(customLine(s.opts.CustomCommand, root)))
}

func customLine(template, root string) string {
	return strings.Replace(template, "%s", shellQuote(root), 1)
}
