package book

// Resource is a file loaded into the book.
type Resource struct {
	ID         string   `json:"id"`                // canonical manifest identifier
	Aliases    []string `json:"aliases,omitempty"` // other identifiers listing the same file
	Kind       Kind     `json:"kind"`
	Href       string   `json:"href"`        // manifest href as written
	SourcePath string   `json:"source_path"` // absolute path in the extracted container
	NewPath    string   `json:"new_path"`    // slash-separated path inside the book
	MediaType  string   `json:"media_type,omitempty"`
	Size       int64    `json:"size"`

	// ReadingOrder is the first spine position of the resource, -1 when the
	// resource is not in the spine. Positions lists every occurrence.
	ReadingOrder int               `json:"reading_order"`
	Positions    []int             `json:"positions,omitempty"`
	Linear       bool              `json:"linear"`
	Semantics    map[string]string `json:"semantics,omitempty"`

	// Text resources
	Title       string   `json:"title,omitempty"`
	Stylesheets []string `json:"stylesheets,omitempty"`
	Images      []string `json:"images,omitempty"`

	// Image resources
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Warning is set when the bytes loaded but could not be inspected.
	Warning string `json:"warning,omitempty"`

	file string // output file written by the loader, staged or committed
}

// InSpine reports whether the resource has a reading-order index.
func (r *Resource) InSpine() bool {
	return r.ReadingOrder >= 0
}

// HasSemantic reports whether the resource carries the semantic key.
func (r *Resource) HasSemantic(key string) bool {
	_, ok := r.Semantics[key]
	return ok
}
