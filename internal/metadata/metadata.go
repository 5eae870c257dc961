// Package metadata turns the raw metadata records of a package document
// into the book's metadata.
package metadata

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yuanying/oebpsimport/internal/opf"
)

// Fallback chooses the book identifier when the declared unique identifier
// matches no dc:identifier element.
type Fallback int

const (
	// FallbackFirst uses the first dc:identifier in document order.
	FallbackFirst Fallback = iota
	// FallbackSynthesize generates a urn:uuid identifier.
	FallbackSynthesize
	// FallbackNone leaves the identifier empty.
	FallbackNone
)

func (f Fallback) String() string {
	switch f {
	case FallbackFirst:
		return "first"
	case FallbackSynthesize:
		return "synthesize"
	case FallbackNone:
		return "none"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// ParseFallback parses the name of a fallback policy.
func ParseFallback(s string) (Fallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return FallbackFirst, nil
	case "synthesize":
		return FallbackSynthesize, nil
	case "none":
		return FallbackNone, nil
	}
	return 0, fmt.Errorf("unknown identifier fallback %q (want first, synthesize or none)", s)
}

// How the book identifier was chosen.
const (
	SourceDeclared    = "declared"
	SourceFirst       = "first"
	SourceSynthesized = "synthesized"
)

// Metadata is the book metadata built from the package document.
type Metadata struct {
	Identifier       string    `json:"identifier"`
	IdentifierScheme string    `json:"identifier_scheme,omitempty"`
	IdentifierSource string    `json:"identifier_source,omitempty"`
	Title            string    `json:"title,omitempty"`
	Language         string    `json:"language,omitempty"`
	Creators         []Creator `json:"creators,omitempty"`

	// Elements groups every record by lower-cased name; Names keeps the
	// first-seen order of the groups.
	Elements map[string][]opf.MetaElement `json:"-"`
	Names    []string                     `json:"names,omitempty"`
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`   // e.g., "aut" for author, "edt" for editor
	FileAs string `json:"file_as,omitempty"`
}

// First returns the value of the first record named name.
func (m Metadata) First(name string) string {
	if els := m.Elements[strings.ToLower(name)]; len(els) > 0 {
		return els[0].Value
	}
	return ""
}

// All returns the values of every record named name.
func (m Metadata) All(name string) []string {
	els := m.Elements[strings.ToLower(name)]
	out := make([]string, 0, len(els))
	for _, el := range els {
		out = append(out, el.Value)
	}
	return out
}

// Load groups elements by name and resolves the book identifier. It never
// fails; identity problems are returned as diagnostics.
func Load(elements []opf.MetaElement, uniqueID string, fallback Fallback) (Metadata, []opf.Diagnostic) {
	md := Metadata{Elements: make(map[string][]opf.MetaElement)}
	for _, el := range elements {
		key := strings.ToLower(el.Name)
		if key == "" {
			continue
		}
		if _, seen := md.Elements[key]; !seen {
			md.Names = append(md.Names, key)
		}
		md.Elements[key] = append(md.Elements[key], el)
	}

	md.Title = firstDC(md, "title")
	md.Language = firstDC(md, "language")
	md.Creators = creators(elements)

	diags := resolveIdentifier(&md, uniqueID, fallback)
	return md, diags
}

func firstDC(md Metadata, name string) string {
	for _, el := range md.Elements[name] {
		if el.DublinCore {
			return el.Value
		}
	}
	return ""
}

func resolveIdentifier(md *Metadata, uniqueID string, fallback Fallback) []opf.Diagnostic {
	var ids []opf.MetaElement
	for _, el := range md.Elements["identifier"] {
		if el.DublinCore {
			ids = append(ids, el)
		}
	}

	if uniqueID != "" {
		for _, el := range ids {
			if el.Attr("id") == uniqueID {
				md.setIdentifier(el, SourceDeclared)
				return nil
			}
		}
	}

	msg := fmt.Sprintf("unique-identifier %q matches no dc:identifier", uniqueID)
	if uniqueID == "" {
		msg = "package declares no unique-identifier"
	}

	switch fallback {
	case FallbackFirst:
		if len(ids) > 0 {
			md.setIdentifier(ids[0], SourceFirst)
			msg += "; using the first dc:identifier"
		} else {
			msg += "; no dc:identifier to fall back to"
		}
	case FallbackSynthesize:
		md.Identifier = "urn:uuid:" + uuid.NewString()
		md.IdentifierScheme = "UUID"
		md.IdentifierSource = SourceSynthesized
		msg += "; synthesized " + md.Identifier
	default:
		msg += "; identifier left empty"
	}

	return []opf.Diagnostic{{
		Kind:    opf.KindIdentityResolution,
		Element: "identifier",
		ID:      uniqueID,
		Message: msg,
	}}
}

func (m *Metadata) setIdentifier(el opf.MetaElement, source string) {
	m.Identifier = el.Value
	m.IdentifierScheme = el.Attr("opf:scheme")
	if m.IdentifierScheme == "" {
		m.IdentifierScheme = el.Attr("scheme")
	}
	m.IdentifierSource = source
}

// creators collects dc:creator records, taking the role and file-as either
// from EPUB 2 opf: attributes or from EPUB 3 refining meta elements.
func creators(elements []opf.MetaElement) []Creator {
	var out []Creator
	byID := make(map[string]int)
	for _, el := range elements {
		if !el.DublinCore || !strings.EqualFold(el.Name, "creator") {
			continue
		}
		c := Creator{
			Name:   el.Value,
			Role:   el.Attr("opf:role"),
			FileAs: el.Attr("opf:file-as"),
		}
		if id := el.Attr("id"); id != "" {
			byID["#"+id] = len(out)
		}
		out = append(out, c)
	}

	for _, el := range elements {
		if el.DublinCore {
			continue
		}
		idx, ok := byID[el.Attr("refines")]
		if !ok {
			continue
		}
		switch el.Name {
		case "role":
			out[idx].Role = el.Value
		case "file-as":
			out[idx].FileAs = el.Value
		}
	}
	return out
}
