package indexing

import (
	"sort"
	"time"
)

// effectiveTime ranks a file by whichever is later: its last open or its
// last modification. Files never opened rank by modification alone.
func effectiveTime(modTime, opened time.Time, wasOpened bool) time.Time {
	if wasOpened && opened.After(modTime) {
		return opened
	}
	return modTime
}

// sortFileList orders a bucket newest first. Ties keep their previous order.
func (e *Engine) sortFileList(list *entryList) {
	list.Write(func(entries *[]*FileEntry) {
		ranked := make([]time.Time, len(*entries))
		e.lastOpened.Read(func(opened map[string]time.Time) {
			for i, entry := range *entries {
				at, ok := opened[entry.Path]
				ranked[i] = effectiveTime(entry.ModTime(), at, ok)
			}
		})
		sort.Stable(byRank{entries: *entries, times: ranked})
	})
}

type byRank struct {
	entries []*FileEntry
	times   []time.Time
}

func (r byRank) Len() int           { return len(r.entries) }
func (r byRank) Less(i, j int) bool { return r.times[i].After(r.times[j]) }
func (r byRank) Swap(i, j int) {
	r.entries[i], r.entries[j] = r.entries[j], r.entries[i]
	r.times[i], r.times[j] = r.times[j], r.times[i]
}

// RecordOpen stores at as the last-opened time of path. Entries are never purged.
func (e *Engine) RecordOpen(path string, at time.Time) {
	e.lastOpened.Write(func(m *map[string]time.Time) {
		(*m)[path] = at
	})
}

// LastOpened returns the recorded open time of path.
func (e *Engine) LastOpened(path string) (time.Time, bool) {
	var (
		at time.Time
		ok bool
	)
	e.lastOpened.Read(func(m map[string]time.Time) {
		at, ok = m[path]
	})
	return at, ok
}

// Rerank re-sorts the bucket for key, together with the all-files bucket, in
// every project that has one and returns how many projects were touched.
func (e *Engine) Rerank(key string) int {
	n := 0
	for _, info := range e.Projects() {
		list := info.list(key)
		if list == nil {
			continue
		}
		e.sortFileList(list)
		if key != AllFilesKey {
			if all := info.list(AllFilesKey); all != nil {
				e.sortFileList(all)
			}
		}
		n++
	}
	return n
}
