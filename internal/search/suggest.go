package search

import (
	"sort"

	"github.com/hbollon/go-edlib"
)

const maxSuggestions = 3

// suggestKeys returns up to n indexed keys closest to key by Levenshtein
// distance. Keys that would have to be rewritten entirely are left out.
func suggestKeys(key string, keys []string, n int) []string {
	type candidate struct {
		key      string
		distance int
	}

	limit := len(key)
	if limit < 1 {
		limit = 1
	}

	var candidates []candidate
	for _, k := range keys {
		if k == key {
			continue
		}
		d := edlib.LevenshteinDistance(key, k)
		if d >= limit && d >= len(k) {
			continue
		}
		candidates = append(candidates, candidate{key: k, distance: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].key < candidates[j].key
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.key)
	}
	return out
}
