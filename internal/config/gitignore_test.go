package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGitignoreParser_BasicPatterns tests fundamental gitignore pattern matching
func TestGitignoreParser_BasicPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{"Simple file match", "README.md", "README.md", false, true},
		{"Simple file no match", "README.md", "main.js", false, false},
		{"Unanchored name matches at depth", "README.md", "docs/README.md", false, true},
		{"Directory pattern matches directory", "node_modules/", "node_modules", true, true},
		{"Directory pattern matches files inside", "node_modules/", "node_modules/react/index.js", false, true},
		{"Directory pattern does not match file", "node_modules/", "node_modules", false, false},
		{"Anchored pattern matches at root", "/build", "build", true, true},
		{"Anchored pattern ignores nested", "/build", "src/build", true, false},
		{"Suffix wildcard", "*.min.js", "dist/app.min.js", false, true},
		{"Suffix wildcard no match", "*.min.js", "app.js", false, false},
		{"Double star", "**/*.log", "var/log/app.log", false, true},
		{"Inner slash anchors", "docs/*.md", "docs/intro.md", false, true},
		{"Inner slash anchors no match nested", "docs/*.md", "site/docs/intro.md", false, false},
		{"Question mark", "file?.txt", "file1.txt", false, true},
		{"Character class", "file[0-9].txt", "fileA.txt", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewGitignoreParser()
			parser.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, parser.ShouldIgnore(tt.path, tt.isDir))
		})
	}
}

func TestGitignoreParser_NegationPriority(t *testing.T) {
	parser := NewGitignoreParser()
	parser.AddPattern("*.log")
	parser.AddPattern("!keep.log")

	assert.True(t, parser.ShouldIgnore("debug.log", false))
	assert.False(t, parser.ShouldIgnore("keep.log", false))

	parser.AddPattern("keep.log")
	assert.True(t, parser.ShouldIgnore("keep.log", false), "the last matching pattern wins")
}

func TestGitignoreParser_ReadPatterns(t *testing.T) {
	content := `
# comment
*.tmp

/vendor/
\#literal
trailing.txt
`
	parser := NewGitignoreParser()
	require.NoError(t, parser.ReadPatterns(strings.NewReader(content)))

	assert.Equal(t, 4, parser.Len())
	assert.True(t, parser.ShouldIgnore("a/b.tmp", false))
	assert.True(t, parser.ShouldIgnore("vendor/x/y.go", false))
	assert.False(t, parser.ShouldIgnore("src/vendor/y.go", false))
	assert.True(t, parser.ShouldIgnore("#literal", false))
	assert.True(t, parser.ShouldIgnore("trailing.txt", false))
}

func TestGitignoreParser_LoadGitignore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.o\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ignore"), []byte("!main.o\n"), 0644))

	parser := NewGitignoreParser()
	require.NoError(t, parser.LoadGitignore(dir))

	assert.True(t, parser.ShouldIgnore("lib.o", false))
	assert.False(t, parser.ShouldIgnore("main.o", false), ".ignore is applied after .gitignore")
}

func TestGitignoreParser_EdgeCases(t *testing.T) {
	parser := NewGitignoreParser()
	parser.AddPattern("!")
	parser.AddPattern("/")
	parser.AddPattern("[unclosed")
	assert.Equal(t, 0, parser.Len(), "empty and invalid patterns are dropped")

	parser.AddPattern("*")
	assert.False(t, parser.ShouldIgnore("", false), "the root itself is never ignored")
	assert.False(t, parser.ShouldIgnore(".", true))
	assert.True(t, parser.ShouldIgnore("anything", false))

	assert.NoError(t, NewGitignoreParser().LoadGitignore(filepath.Join(t.TempDir(), "missing")))
}
