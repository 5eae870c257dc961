package book

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/yuanying/oebpsimport/internal/metadata"
)

// Book is the import target. Resources may be added from several goroutines.
type Book struct {
	Metadata metadata.Metadata

	mu        sync.Mutex
	resources []*Resource
	byPath    map[string]*Resource
	reserved  map[string]bool // lower-cased new paths
}

// New returns an empty book.
func New() *Book {
	return &Book{
		byPath:   make(map[string]*Resource),
		reserved: make(map[string]bool),
	}
}

// SetMetadata replaces the book metadata.
func (b *Book) SetMetadata(md metadata.Metadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Metadata = md
}

// Reserve claims a unique path for a file named name in the folder of kind
// and returns it. A name already taken (case-insensitively) gets a numeric
// suffix before its extension.
func (b *Book) Reserve(kind Kind, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := path.Join(kind.Folder(), name)
	for i := 1; b.reserved[strings.ToLower(candidate)]; i++ {
		candidate = path.Join(kind.Folder(), fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	b.reserved[strings.ToLower(candidate)] = true
	return candidate
}

// Add inserts a loaded resource. Adding two resources under the same new
// path is an error.
func (b *Book) Add(r *Resource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byPath[r.NewPath]; ok {
		return fmt.Errorf("resource already exists at %q", r.NewPath)
	}
	b.resources = append(b.resources, r)
	b.byPath[r.NewPath] = r
	return nil
}

// Remove drops the resource stored at newPath. Its path stays reserved.
func (b *Book) Remove(newPath string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byPath[newPath]; !ok {
		return
	}
	delete(b.byPath, newPath)
	for i, r := range b.resources {
		if r.NewPath == newPath {
			b.resources = append(b.resources[:i], b.resources[i+1:]...)
			break
		}
	}
}

// Resource returns the resource stored at newPath.
func (b *Book) Resource(newPath string) (*Resource, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byPath[newPath]
	return r, ok
}

// Resources returns spine resources in reading order followed by the rest
// sorted by new path.
func (b *Book) Resources() []*Resource {
	b.mu.Lock()
	out := make([]*Resource, len(b.resources))
	copy(out, b.resources)
	b.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i], out[j]
		if ri.InSpine() != rj.InSpine() {
			return ri.InSpine()
		}
		if ri.InSpine() && ri.ReadingOrder != rj.ReadingOrder {
			return ri.ReadingOrder < rj.ReadingOrder
		}
		return ri.NewPath < rj.NewPath
	})
	return out
}

// ReadingOrder returns the spine resources in reading order.
func (b *Book) ReadingOrder() []*Resource {
	var out []*Resource
	for _, r := range b.Resources() {
		if r.InSpine() {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of resources.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.resources)
}
