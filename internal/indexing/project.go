package indexing

import (
	"sort"
	"time"

	"github.com/standardbeagle/hopper/internal/guard"
)

// AllFilesKey is the idMap key holding every keyed entry of a project.
const AllFilesKey = ""

// FileEntry is one indexed file. Path and Name never change after creation;
// the modification time is written only by the refresh worker.
type FileEntry struct {
	Path string
	Name string

	modTime *guard.Value[time.Time]
}

func newFileEntry(path, name string) *FileEntry {
	return &FileEntry{
		Path:    path,
		Name:    name,
		modTime: guard.NewValue(time.Time{}),
	}
}

// ModTime returns the last modification time seen by a rebuild, or the zero
// time when the file could not be stated.
func (e *FileEntry) ModTime() time.Time {
	return e.modTime.Get()
}

type entryList = guard.RWValue[[]*FileEntry]
type pathList = guard.RWValue[[]string]

// ProjectInfo is the index of one canonical root.
//
// Lock order: idMap or nameMap, then a single list, then leaf values.
type ProjectInfo struct {
	RootPath string

	idMap      *guard.RWValue[map[string]*entryList]
	nameMap    *guard.RWValue[map[string]*pathList]
	totalCount *guard.Value[int]
	updating   *guard.Value[bool]
}

// newProjectInfo returns an empty index marked as updating, since its first
// rebuild is enqueued together with its creation.
func newProjectInfo(root string) *ProjectInfo {
	return &ProjectInfo{
		RootPath:   root,
		idMap:      guard.NewRWValue(freshIDMap()),
		nameMap:    guard.NewRWValue(make(map[string]*pathList)),
		totalCount: guard.NewValue(0),
		updating:   guard.NewValue(true),
	}
}

func freshIDMap() map[string]*entryList {
	return map[string]*entryList{
		AllFilesKey: guard.NewRWValue([]*FileEntry(nil)),
	}
}

// TotalCount is the number of files with a non-empty key in the current generation.
func (p *ProjectInfo) TotalCount() int {
	return p.totalCount.Get()
}

// IsUpdating reports whether a rebuild is queued or running.
func (p *ProjectInfo) IsUpdating() bool {
	return p.updating.Get()
}

// Keys returns the non-empty lookup keys currently indexed, sorted.
func (p *ProjectInfo) Keys() []string {
	var keys []string
	p.idMap.Read(func(m map[string]*entryList) {
		keys = make([]string, 0, len(m))
		for k := range m {
			if k != AllFilesKey {
				keys = append(keys, k)
			}
		}
	})
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of the bucket for key in ranked order, or nil when
// the key is unknown. AllFilesKey yields every keyed entry.
func (p *ProjectInfo) Entries(key string) []*FileEntry {
	list := p.list(key)
	if list == nil {
		return nil
	}
	var out []*FileEntry
	list.Read(func(entries []*FileEntry) {
		out = append([]*FileEntry(nil), entries...)
	})
	return out
}

// PathsNamed returns every path whose base name is exactly name, in scan order.
func (p *ProjectInfo) PathsNamed(name string) []string {
	var list *pathList
	p.nameMap.Read(func(m map[string]*pathList) {
		list = m[name]
	})
	if list == nil {
		return nil
	}
	var out []string
	list.Read(func(paths []string) {
		out = append([]string(nil), paths...)
	})
	return out
}

func (p *ProjectInfo) list(key string) *entryList {
	var list *entryList
	p.idMap.Read(func(m map[string]*entryList) {
		list = m[key]
	})
	return list
}

// lists snapshots the bucket pointers so callers can lock them one at a time.
func (p *ProjectInfo) lists() map[string]*entryList {
	out := make(map[string]*entryList)
	p.idMap.Read(func(m map[string]*entryList) {
		for k, v := range m {
			out[k] = v
		}
	})
	return out
}

// reset starts a new generation: both maps are replaced wholesale and the
// counter goes back to zero.
func (p *ProjectInfo) reset() {
	p.totalCount.Set(0)
	p.idMap.Store(freshIDMap())
	p.nameMap.Store(make(map[string]*pathList))
}

func (p *ProjectInfo) appendName(name, path string) {
	var list *pathList
	p.nameMap.Read(func(m map[string]*pathList) {
		list = m[name]
	})
	if list == nil {
		p.nameMap.Write(func(m *map[string]*pathList) {
			list = (*m)[name]
			if list == nil {
				list = guard.NewRWValue([]string(nil))
				(*m)[name] = list
			}
		})
	}
	list.Write(func(paths *[]string) {
		*paths = append(*paths, path)
	})
}

// appendEntry adds e to the all-files bucket and to the bucket for key,
// creating the latter under exclusive access when it does not exist yet.
func (p *ProjectInfo) appendEntry(key string, e *FileEntry) {
	var all, list *entryList
	p.idMap.Read(func(m map[string]*entryList) {
		all = m[AllFilesKey]
		list = m[key]
	})
	if list == nil {
		p.idMap.Write(func(m *map[string]*entryList) {
			list = (*m)[key]
			if list == nil {
				list = guard.NewRWValue([]*FileEntry(nil))
				(*m)[key] = list
			}
		})
	}

	all.Write(func(entries *[]*FileEntry) {
		*entries = append(*entries, e)
	})
	list.Write(func(entries *[]*FileEntry) {
		*entries = append(*entries, e)
	})
	p.totalCount.Update(func(n int) int { return n + 1 })
}
