package opf

import "sort"

// Semantic keys produced while scanning.
const (
	SemanticCoverImage = "cover-image"
	SemanticNav        = "nav"
)

// SemanticTags maps a manifest identifier to key/value semantic information,
// e.g. "cover" -> "true" for the guide's cover page. Every tag produced while
// scanning has the value "true": the guide type is the key and the reference
// title is kept only in Package.Guide.
type SemanticTags struct {
	tags map[string]map[string]string
}

// NewSemanticTags returns an empty tag set.
func NewSemanticTags() *SemanticTags {
	return &SemanticTags{tags: make(map[string]map[string]string)}
}

// Set records key=value for id, replacing any earlier value for key.
func (s *SemanticTags) Set(id, key, value string) {
	m, ok := s.tags[id]
	if !ok {
		m = make(map[string]string)
		s.tags[id] = m
	}
	m[key] = value
}

// For returns a copy of the tags recorded for id; nil when there are none.
func (s *SemanticTags) For(id string) map[string]string {
	m := s.tags[id]
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns the union of the tags of ids. Earlier ids win on conflicting
// keys.
func (s *SemanticTags) Merge(ids ...string) map[string]string {
	var out map[string]string
	for _, id := range ids {
		for k, v := range s.tags[id] {
			if out == nil {
				out = make(map[string]string)
			}
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}
	return out
}

// IDs returns the tagged identifiers in sorted order.
func (s *SemanticTags) IDs() []string {
	ids := make([]string, 0, len(s.tags))
	for id := range s.tags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tagged identifiers.
func (s *SemanticTags) Len() int {
	return len(s.tags)
}
