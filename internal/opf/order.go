package opf

// ReadingOrder is the spine in document order. Entries whose idref does not
// name a manifest identifier are kept but flagged invalid.
type ReadingOrder struct {
	entries []SpineEntry
}

// NewReadingOrder returns an empty reading order.
func NewReadingOrder() *ReadingOrder {
	return &ReadingOrder{}
}

// Append adds an entry at the end of the sequence.
func (o *ReadingOrder) Append(e SpineEntry) {
	o.entries = append(o.entries, e)
}

// Entries returns every entry, valid or not, in document order.
func (o *ReadingOrder) Entries() []SpineEntry {
	out := make([]SpineEntry, len(o.entries))
	copy(out, o.entries)
	return out
}

// Valid returns the entries that reference a manifest identifier.
func (o *ReadingOrder) Valid() []SpineEntry {
	out := make([]SpineEntry, 0, len(o.entries))
	for _, e := range o.entries {
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}

// IDs returns the idref of each valid entry in order.
func (o *ReadingOrder) IDs() []string {
	valid := o.Valid()
	ids := make([]string, len(valid))
	for i, e := range valid {
		ids[i] = e.IDRef
	}
	return ids
}

// Positions returns the indexes of id within IDs.
func (o *ReadingOrder) Positions(id string) []int {
	var pos []int
	for i, ref := range o.IDs() {
		if ref == id {
			pos = append(pos, i)
		}
	}
	return pos
}

// Len returns the number of entries including invalid ones.
func (o *ReadingOrder) Len() int {
	return len(o.entries)
}

// validate flags entries whose idref is unknown to reg and returns them.
func (o *ReadingOrder) validate(reg *Registry) []SpineEntry {
	var bad []SpineEntry
	for i := range o.entries {
		o.entries[i].Valid = reg.Contains(o.entries[i].IDRef)
		if !o.entries[i].Valid {
			bad = append(bad, o.entries[i])
		}
	}
	return bad
}
