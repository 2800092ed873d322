// Package humps derives the short lookup keys used for jump-to-file queries.
//
// A key takes the first letter of a file-name stem plus one letter for every
// later "hump": a word that follows a run of non-letters, or an uppercase
// letter that follows a lowercase one. "readMe", "read_me" and "README.md"
// therefore all share the key "rm" or "r":
//
//	Derive("readMe")         // "rm"
//	Derive("this.is.a.test") // "tiat"
//	Derive("read_MEE")       // "rm"
//
// Runs of uppercase letters only count once, so fully capitalised words do
// not need every letter typed.
package humps

import (
	"strings"
)

// separator replaces every run of non-letter characters before the walk.
const separator = '_'

// Derive returns the humps key for a file-name stem. The result contains only
// lowercase ASCII letters and is empty when the stem has no letters at all.
func Derive(stem string) string {
	cleaned := collapse(stem)
	cleaned = strings.TrimPrefix(cleaned, string(separator))
	cleaned = strings.TrimSuffix(cleaned, string(separator))
	if cleaned == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(cleaned) / 2)
	b.WriteByte(toLower(cleaned[0]))
	prevUpper := isUpper(cleaned[0])

	for i := 1; i < len(cleaned); {
		c := cleaned[i]

		// collapse guarantees a letter after every inner separator
		if c == separator {
			next := cleaned[i+1]
			b.WriteByte(toLower(next))
			prevUpper = isUpper(next)
			i += 2
			continue
		}

		upper := isUpper(c)
		if upper && !prevUpper {
			b.WriteByte(toLower(c))
		}
		prevUpper = upper
		i++
	}

	return b.String()
}

// FromFileName derives the key for a base file name, dropping its extension
// first. Leading dots are part of the stem, so ".bashrc" keys as "b".
func FromFileName(name string) string {
	return Derive(Stem(name))
}

// Stem strips the final extension from a base file name. A name made only of
// leading dots plus a word (".bashrc") has no extension.
func Stem(name string) string {
	rest := strings.TrimLeft(name, ".")
	dot := strings.LastIndexByte(rest, '.')
	if dot <= 0 {
		return name
	}
	return name[:len(name)-len(rest)+dot]
}

// collapse maps every maximal run of non-letters to a single separator.
func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isLetter(c) {
			b.WriteByte(c)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte(separator)
			inRun = true
		}
	}
	return b.String()
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isUpper(c byte) bool {
	return 'A' <= c && c <= 'Z'
}

func toLower(c byte) byte {
	if isUpper(c) {
		return c + ('a' - 'A')
	}
	return c
}
