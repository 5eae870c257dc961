// Package opf reads OEBPS package documents (the .opf file of an EPUB).
package opf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	nsOPF      = "http://www.idpf.org/2007/opf"
	nsOEBPS1   = "http://openebook.org/namespaces/oeb-package/1.0/"
	nsDC       = "http://purl.org/dc/elements/1.1/"
	nsDCLegacy = "http://purl.org/dc/elements/1.0/"
	nsXML      = "http://www.w3.org/XML/1998/namespace"
)

type namespace int

const (
	nsOther namespace = iota
	nsPackage
	nsDublinCore
)

func classify(space string) namespace {
	switch space {
	case nsDC, nsDCLegacy:
		return nsDublinCore
	case "", nsOPF, nsOEBPS1:
		return nsPackage
	}
	return nsOther
}

type section int

const (
	sectionNone section = iota
	sectionMetadata
	sectionManifest
	sectionSpine
	sectionGuide
)

// OEBPS 1.x wraps metadata in dc-metadata and x-metadata.
var sectionNames = map[string]section{
	"metadata":    sectionMetadata,
	"dc-metadata": sectionMetadata,
	"x-metadata":  sectionMetadata,
	"manifest":    sectionManifest,
	"spine":       sectionSpine,
	"guide":       sectionGuide,
}

type elementKey struct {
	section section
	ns      namespace
	local   string
}

// anyLocal matches every local name in a namespace.
const anyLocal = "*"

type rule struct {
	read func(s *scanner, start xml.StartElement) error
	// consumes is set when read returns after the element's end tag.
	consumes bool
}

var dispatch = map[elementKey]rule{
	{sectionNone, nsPackage, "package"}:       {read: readPackage},
	{sectionNone, nsPackage, "spine"}:         {read: readSpine},
	{sectionMetadata, nsDublinCore, anyLocal}: {read: readDublinCore, consumes: true},
	{sectionMetadata, nsPackage, "meta"}:      {read: readMeta, consumes: true},
	{sectionManifest, nsPackage, "item"}:      {read: readManifestItem},
	{sectionSpine, nsPackage, "itemref"}:      {read: readItemRef},
	{sectionGuide, nsPackage, "reference"}:    {read: readGuideReference},
}

func lookup(sec section, name xml.Name) (rule, bool) {
	ns := classify(name.Space)
	if r, ok := dispatch[elementKey{sec, ns, name.Local}]; ok {
		return r, true
	}
	r, ok := dispatch[elementKey{sec, ns, anyLocal}]
	return r, ok
}

// Parse reads the package document at path in a single forward scan.
// Hrefs are resolved against the document's directory and must stay inside
// root, the directory the container was extracted to. An empty root confines
// hrefs to the document's directory.
func Parse(path, root string, logger *slog.Logger) (*Package, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}
	if root != "" {
		if root, err = filepath.Abs(root); err != nil {
			return nil, &ParseError{Path: abs, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
		}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, &ParseError{Path: abs, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}
	defer f.Close()

	pkg, err := ParseReader(f, filepath.Dir(abs), root, logger)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = abs
		}
		return nil, err
	}
	pkg.Path = abs
	return pkg, nil
}

// ParseReader scans a package document from r, resolving hrefs against dir
// and rejecting those that leave root (dir when root is empty).
// A document that is not well-formed yields a *ParseError and no package.
func ParseReader(r io.Reader, dir, root string, logger *slog.Logger) (*Package, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dir = filepath.Clean(dir)
	if root == "" {
		root = dir
	}
	root = filepath.Clean(root)

	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	s := &scanner{
		d:      d,
		dir:    dir,
		root:   root,
		logger: logger,
		pkg: &Package{
			Dir:       dir,
			Root:      root,
			Manifest:  NewRegistry(),
			Spine:     NewReadingOrder(),
			Semantics: NewSemanticTags(),
		},
	}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.pkg, nil
}

type pendingReference struct {
	ref  GuideReference
	line int
}

type scanner struct {
	d      *xml.Decoder
	dir    string
	root   string
	logger *slog.Logger
	pkg    *Package

	stack      []section // one entry per open element
	sawPackage bool
	coverIDs   []string
	guide      []pendingReference
}

func (s *scanner) run() error {
	for {
		tok, err := s.d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			cur := s.section()
			next := cur
			if sec, ok := sectionNames[t.Name.Local]; ok && classify(t.Name.Space) == nsPackage {
				next = sec
			}
			if r, ok := lookup(cur, t.Name); ok {
				if err := r.read(s, t); err != nil {
					return s.fail(err)
				}
				if r.consumes {
					continue
				}
			}
			s.stack = append(s.stack, next)
		case xml.EndElement:
			if len(s.stack) > 0 {
				s.stack = s.stack[:len(s.stack)-1]
			}
		}
	}

	if !s.sawPackage {
		return &ParseError{Err: ErrNoPackage}
	}
	s.finish()
	return nil
}

func (s *scanner) fail(err error) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &ParseError{Line: se.Line, Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &ParseError{Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}
	return &ParseError{Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
}

func (s *scanner) section() section {
	if len(s.stack) == 0 {
		return sectionNone
	}
	return s.stack[len(s.stack)-1]
}

func (s *scanner) line() int {
	line, _ := s.d.InputPos()
	return line
}

// text collects the character data of the element just started, consuming
// everything up to its end tag.
func (s *scanner) text() (string, error) {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := s.d.Token()
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *scanner) warn(kind Kind, element, id, path string, line int, msg string) {
	d := Diagnostic{Kind: kind, Element: element, ID: id, Path: path, Line: line, Message: msg}
	s.pkg.Diagnostics = append(s.pkg.Diagnostics, d)
	s.logger.Warn(msg, "kind", kind.String(), "element", element, "id", id, "path", path, "line", line)
}

// finish runs the checks that need the whole manifest.
func (s *scanner) finish() {
	reg := s.pkg.Manifest

	for _, e := range s.pkg.Spine.validate(reg) {
		s.warn(KindElementValidation, "itemref", e.IDRef, "", 0, "spine itemref references unknown manifest id")
	}

	for _, id := range s.coverIDs {
		s.pkg.Semantics.Set(id, SemanticCoverImage, "true")
		if !reg.Contains(id) {
			s.warn(KindElementValidation, "meta", id, "", 0, "cover meta references unknown manifest id")
		}
	}

	for _, p := range s.guide {
		path, err := resolveHref(s.root, s.dir, p.ref.Href)
		if err != nil {
			s.warn(KindElementValidation, "reference", "", p.ref.Href, p.line, fmt.Sprintf("guide reference skipped: %v", err))
			continue
		}
		id, ok := reg.IDForPath(path)
		if !ok {
			s.warn(KindElementValidation, "reference", "", path, p.line, "guide reference matches no manifest item")
			continue
		}
		s.pkg.Semantics.Set(id, p.ref.Type, "true")
	}
}

func readPackage(s *scanner, start xml.StartElement) error {
	s.sawPackage = true
	s.pkg.Version, _ = attr(start, "version")
	s.pkg.UniqueIdentifierID, _ = attr(start, "unique-identifier")
	return nil
}

func readDublinCore(s *scanner, start xml.StartElement) error {
	attrs := attributes(start)
	value, err := s.text()
	if err != nil {
		return err
	}
	s.pkg.Metadata = append(s.pkg.Metadata, MetaElement{
		Name:       start.Name.Local,
		Value:      value,
		Attributes: attrs,
		DublinCore: true,
	})
	return nil
}

// readMeta captures both the EPUB 2 name/content form and the EPUB 3
// property form whose value is the element text.
func readMeta(s *scanner, start xml.StartElement) error {
	line := s.line()
	attrs := attributes(start)
	text, err := s.text()
	if err != nil {
		return err
	}

	name := attrs["name"]
	if name == "" {
		name = attrs["property"]
	}
	value, ok := attrs["content"]
	if !ok || value == "" {
		value = text
	}
	if name == "" {
		s.warn(KindElementValidation, "meta", "", "", line, "meta element has neither name nor property")
		return nil
	}

	if attrs["name"] == "cover" && value != "" {
		s.coverIDs = append(s.coverIDs, value)
	}
	s.pkg.Metadata = append(s.pkg.Metadata, MetaElement{Name: name, Value: value, Attributes: attrs})
	return nil
}

func readManifestItem(s *scanner, start xml.StartElement) error {
	line := s.line()
	id, _ := attr(start, "id")
	href, _ := attr(start, "href")
	switch {
	case id == "":
		s.warn(KindElementValidation, "item", "", href, line, "manifest item missing id attribute")
		return nil
	case href == "":
		s.warn(KindElementValidation, "item", id, "", line, "manifest item missing href attribute")
		return nil
	}

	reg := s.pkg.Manifest
	if reg.Contains(id) {
		s.warn(KindElementValidation, "item", id, href, line, "duplicate manifest id")
		return nil
	}

	path, err := resolveHref(s.root, s.dir, href)
	if err != nil {
		s.warn(KindElementValidation, "item", id, href, line, fmt.Sprintf("manifest item skipped: %v", err))
		return nil
	}

	item := Item{ID: id, Href: href, Path: path}
	item.MediaType, _ = attr(start, "media-type")
	if props, ok := attr(start, "properties"); ok {
		item.Properties = strings.Fields(props)
	}

	if !reg.Register(item) {
		canon, _ := reg.Canonical(id)
		s.logger.Debug("manifest item aliases an already listed file", "id", id, "canonical", canon, "path", path)
	}

	if item.HasProperty(SemanticCoverImage) {
		s.pkg.Semantics.Set(id, SemanticCoverImage, "true")
	}
	if item.HasProperty(SemanticNav) {
		s.pkg.Semantics.Set(id, SemanticNav, "true")
	}
	return nil
}

func readSpine(s *scanner, start xml.StartElement) error {
	s.pkg.TOCID, _ = attr(start, "toc")
	s.pkg.PageDirection, _ = attr(start, "page-progression-direction")
	return nil
}

func readItemRef(s *scanner, start xml.StartElement) error {
	idref, _ := attr(start, "idref")
	if idref == "" {
		s.warn(KindElementValidation, "itemref", "", "", s.line(), "spine itemref missing idref attribute")
		return nil
	}
	linear, _ := attr(start, "linear")
	s.pkg.Spine.Append(SpineEntry{IDRef: idref, Linear: linear != "no"})
	return nil
}

func readGuideReference(s *scanner, start xml.StartElement) error {
	line := s.line()
	var ref GuideReference
	ref.Type, _ = attr(start, "type")
	ref.Title, _ = attr(start, "title")
	ref.Href, _ = attr(start, "href")
	if ref.Type == "" || ref.Href == "" {
		s.warn(KindElementValidation, "reference", "", ref.Href, line, "guide reference missing type or href attribute")
		return nil
	}
	s.pkg.Guide = append(s.pkg.Guide, ref)
	s.guide = append(s.guide, pendingReference{ref: ref, line: line})
	return nil
}

// attr returns an unprefixed or OPF-namespaced attribute.
func attr(start xml.StartElement, local string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == local && classify(a.Name.Space) == nsPackage {
			return strings.TrimSpace(a.Value), true
		}
	}
	return "", false
}

// attributes returns every attribute of start except namespace declarations.
// OPF and xml namespaced attributes keep their conventional prefixes.
func attributes(start xml.StartElement) map[string]string {
	m := make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		m[attrName(a.Name)] = a.Value
	}
	return m
}

func attrName(n xml.Name) string {
	switch n.Space {
	case "":
		return n.Local
	case nsOPF:
		return "opf:" + n.Local
	case nsXML:
		return "xml:" + n.Local
	default:
		return n.Space + ":" + n.Local
	}
}
