package opf

// Registry maps manifest identifiers to absolute file paths and keeps the
// set of paths already claimed by an identifier.
//
// Some producers (InDesign in particular) list the same file several times
// under different identifiers. Only the first identifier for a path becomes
// the canonical entry; later ones are kept as aliases that resolve to the
// same path but never cause a second load.
type Registry struct {
	items   []Item
	byID    map[string]int    // canonical id -> index into items
	byPath  map[string]int    // dedup set: pathKey -> index into items
	aliases map[string]Item   // alias id -> its own item
	aliasOf map[string]string // alias id -> canonical id
	byCanon map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]int),
		byPath:  make(map[string]int),
		aliases: make(map[string]Item),
		aliasOf: make(map[string]string),
		byCanon: make(map[string][]string),
	}
}

// Register records item and reports whether its path was newly added to the
// dedup set. A false result means the identifier was stored as an alias of
// the entry that already owns the path, or that the identifier itself was
// already registered (in which case nothing changes).
func (r *Registry) Register(item Item) bool {
	if r.Contains(item.ID) {
		return false
	}
	key := pathKey(item.Path)
	if idx, ok := r.byPath[key]; ok {
		canon := r.items[idx].ID
		r.aliases[item.ID] = item
		r.aliasOf[item.ID] = canon
		r.byCanon[canon] = append(r.byCanon[canon], item.ID)
		return false
	}
	r.items = append(r.items, item)
	r.byID[item.ID] = len(r.items) - 1
	r.byPath[key] = len(r.items) - 1
	return true
}

// Contains reports whether id was registered, canonically or as an alias.
func (r *Registry) Contains(id string) bool {
	if _, ok := r.byID[id]; ok {
		return true
	}
	_, ok := r.aliasOf[id]
	return ok
}

// Resolve returns the absolute path registered for id.
func (r *Registry) Resolve(id string) (string, bool) {
	it, ok := r.Item(id)
	if !ok {
		return "", false
	}
	return it.Path, true
}

// Canonical returns the identifier that owns the path id resolves to.
// For a canonical identifier that is id itself.
func (r *Registry) Canonical(id string) (string, bool) {
	if _, ok := r.byID[id]; ok {
		return id, true
	}
	canon, ok := r.aliasOf[id]
	return canon, ok
}

// Item returns the manifest item declared under id, alias or not.
func (r *Registry) Item(id string) (Item, bool) {
	if idx, ok := r.byID[id]; ok {
		return r.items[idx], true
	}
	it, ok := r.aliases[id]
	return it, ok
}

// HasPath reports whether path is already claimed by an identifier.
// Paths compare after NFC normalization.
func (r *Registry) HasPath(path string) bool {
	_, ok := r.byPath[pathKey(path)]
	return ok
}

// IDForPath returns the canonical identifier owning path.
func (r *Registry) IDForPath(path string) (string, bool) {
	idx, ok := r.byPath[pathKey(path)]
	if !ok {
		return "", false
	}
	return r.items[idx].ID, true
}

// Items returns the canonical entries in document order.
func (r *Registry) Items() []Item {
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// Aliases returns the items that alias the canonical identifier id, in
// document order.
func (r *Registry) Aliases(id string) []Item {
	ids := r.byCanon[id]
	if len(ids) == 0 {
		return nil
	}
	out := make([]Item, 0, len(ids))
	for _, a := range ids {
		out = append(out, r.aliases[a])
	}
	return out
}

// Len returns the number of unique paths.
func (r *Registry) Len() int {
	return len(r.items)
}
