package config

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFileNames are read from a project root, later files overriding earlier ones.
var IgnoreFileNames = []string{".gitignore", ".ignore"}

// GitignoreParser handles parsing and matching .gitignore files
type GitignoreParser struct {
	patterns []GitignorePattern
}

type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool // Trailing slash: matches directories only
	Anchored  bool // Leading or inner slash: matches relative to the root only
}

// NewGitignoreParser creates a new gitignore parser
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{
		patterns: make([]GitignorePattern, 0),
	}
}

// LoadGitignore loads patterns from the ignore files in rootPath.
// Missing files are not an error.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	for _, name := range IgnoreFileNames {
		file, err := os.Open(filepath.Join(rootPath, name))
		if err != nil {
			continue
		}
		err = gp.ReadPatterns(file)
		file.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadPatterns parses one pattern per line from r
func (gp *GitignoreParser) ReadPatterns(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern adds a single gitignore line. Invalid globs are dropped.
func (gp *GitignoreParser) AddPattern(line string) {
	pattern, ok := parsePattern(line)
	if ok {
		gp.patterns = append(gp.patterns, pattern)
	}
}

// Len returns the number of active patterns
func (gp *GitignoreParser) Len() int {
	return len(gp.patterns)
}

func parsePattern(line string) (GitignorePattern, bool) {
	pattern := GitignorePattern{}

	if strings.HasPrefix(line, "!") {
		pattern.Negate = true
		line = line[1:]
	} else if strings.HasPrefix(line, `\!`) || strings.HasPrefix(line, `\#`) {
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		pattern.Directory = true
		line = strings.TrimRight(line, "/")
	}

	if strings.HasPrefix(line, "/") {
		pattern.Anchored = true
		line = strings.TrimLeft(line, "/")
	} else if strings.Contains(line, "/") {
		pattern.Anchored = true
	}

	if line == "" || !doublestar.ValidatePattern(line) {
		return pattern, false
	}
	pattern.Pattern = line
	return pattern, true
}

// ShouldIgnore reports whether rel, a path relative to the root, is ignored.
// A path is ignored when it or any of its parent directories matches; the
// last matching pattern decides, so negations re-include.
func (gp *GitignoreParser) ShouldIgnore(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}

	ignored := false
	for _, pattern := range gp.patterns {
		if pattern.matches(rel, isDir) {
			ignored = !pattern.Negate
		}
	}
	return ignored
}

func (p GitignorePattern) matches(rel string, isDir bool) bool {
	// Walk every ancestor directory, then the path itself
	for i := 0; i <= len(rel); i++ {
		if i < len(rel) && rel[i] != '/' {
			continue
		}
		prefix := rel[:i]
		prefixIsDir := i < len(rel) || isDir
		if p.matchesOne(prefix, prefixIsDir) {
			return true
		}
	}
	return false
}

func (p GitignorePattern) matchesOne(rel string, isDir bool) bool {
	if p.Directory && !isDir {
		return false
	}
	target := rel
	if !p.Anchored {
		target = path.Base(rel)
	}
	matched, err := doublestar.Match(p.Pattern, target)
	return err == nil && matched
}
