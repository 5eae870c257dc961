package opf

// Package holds everything a single scan of a package document produces.
type Package struct {
	Path               string // absolute path of the package document
	Dir                string // directory hrefs are resolved against
	Root               string // container root no href may leave
	Version            string
	UniqueIdentifierID string // package unique-identifier attribute
	TOCID              string // spine toc attribute (EPUB 2 NCX item ID)
	PageDirection      string // spine page-progression-direction

	Metadata  []MetaElement
	Manifest  *Registry
	Spine     *ReadingOrder
	Semantics *SemanticTags
	Guide     []GuideReference

	Diagnostics []Diagnostic
}

// MetaElement is a metadata record captured verbatim from a Dublin Core
// element or a generic meta element.
type MetaElement struct {
	Name       string
	Value      string
	Attributes map[string]string
	DublinCore bool
}

// Attr returns the named attribute value, or "" when absent.
func (m MetaElement) Attr(name string) string {
	return m.Attributes[name]
}

// Item represents an item in the manifest.
type Item struct {
	ID         string
	Href       string // as written in the package document
	Path       string // absolute and cleaned
	MediaType  string
	Properties []string
}

// HasProperty reports whether the item declares the given EPUB 3 property.
func (it Item) HasProperty(prop string) bool {
	for _, p := range it.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

// SpineEntry represents an itemref in the spine.
type SpineEntry struct {
	IDRef  string
	Linear bool
	Valid  bool // IDRef names a manifest identifier
}

// GuideReference represents a guide reference element.
type GuideReference struct {
	Type  string
	Title string
	Href  string
}
