package opf

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// writeOPF writes content to <tmp>/OEBPS/content.opf and returns its path.
func writeOPF(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "OEBPS")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	path := filepath.Join(dir, "content.opf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write opf: %v", err)
	}
	return path
}

const epub2OPF = `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Sample Book Title</dc:title>
    <dc:creator opf:role="aut" opf:file-as="Doe, John">John Doe</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid" opf:scheme="ISBN">urn:isbn:1234567890</dc:identifier>
    <meta name="cover" content="cover-image"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="cover-image" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="cover" href="text/cover.xhtml" media-type="application/xhtml+xml"/>
    <item id="chapter1" href="text/chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="stylesheet" href="css/style.css" media-type="text/css"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="cover" linear="no"/>
    <itemref idref="chapter1"/>
  </spine>
  <guide>
    <reference type="cover" title="Cover" href="text/cover.xhtml"/>
    <reference type="text" title="Start" href="text/chapter1.xhtml#start"/>
  </guide>
</package>`

func TestParse_EPUB20(t *testing.T) {
	path := writeOPF(t, epub2OPF)
	dir := filepath.Dir(path)

	pkg, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if pkg.Version != "2.0" {
		t.Errorf("Version = %q, want %q", pkg.Version, "2.0")
	}
	if pkg.UniqueIdentifierID != "bookid" {
		t.Errorf("UniqueIdentifierID = %q, want %q", pkg.UniqueIdentifierID, "bookid")
	}
	if pkg.TOCID != "ncx" {
		t.Errorf("TOCID = %q, want %q", pkg.TOCID, "ncx")
	}
	if len(pkg.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none", pkg.Diagnostics)
	}

	// Metadata keeps document order and raw attributes
	wantNames := []string{"title", "creator", "language", "identifier", "cover"}
	if len(pkg.Metadata) != len(wantNames) {
		t.Fatalf("Metadata count = %d, want %d", len(pkg.Metadata), len(wantNames))
	}
	for i, name := range wantNames {
		if pkg.Metadata[i].Name != name {
			t.Errorf("Metadata[%d].Name = %q, want %q", i, pkg.Metadata[i].Name, name)
		}
	}
	creator := pkg.Metadata[1]
	if creator.Value != "John Doe" {
		t.Errorf("creator.Value = %q, want %q", creator.Value, "John Doe")
	}
	if creator.Attr("opf:role") != "aut" {
		t.Errorf("creator opf:role = %q, want %q", creator.Attr("opf:role"), "aut")
	}
	if creator.Attr("opf:file-as") != "Doe, John" {
		t.Errorf("creator opf:file-as = %q, want %q", creator.Attr("opf:file-as"), "Doe, John")
	}
	if got := pkg.Metadata[3].Attr("id"); got != "bookid" {
		t.Errorf("identifier id = %q, want %q", got, "bookid")
	}
	if got := pkg.Metadata[4].Value; got != "cover-image" {
		t.Errorf("cover meta value = %q, want %q", got, "cover-image")
	}

	// Manifest
	if pkg.Manifest.Len() != 5 {
		t.Fatalf("Manifest.Len() = %d, want 5", pkg.Manifest.Len())
	}
	wantOrder := []string{"ncx", "cover-image", "cover", "chapter1", "stylesheet"}
	for i, it := range pkg.Manifest.Items() {
		if it.ID != wantOrder[i] {
			t.Errorf("Items()[%d].ID = %q, want %q", i, it.ID, wantOrder[i])
		}
	}
	ch1, ok := pkg.Manifest.Item("chapter1")
	if !ok {
		t.Fatal("chapter1 not found in manifest")
	}
	if want := filepath.Join(dir, "text", "chapter1.xhtml"); ch1.Path != want {
		t.Errorf("chapter1.Path = %q, want %q", ch1.Path, want)
	}
	if ch1.Href != "text/chapter1.xhtml" {
		t.Errorf("chapter1.Href = %q, want %q", ch1.Href, "text/chapter1.xhtml")
	}
	if ch1.MediaType != "application/xhtml+xml" {
		t.Errorf("chapter1.MediaType = %q, want %q", ch1.MediaType, "application/xhtml+xml")
	}

	// Spine
	entries := pkg.Spine.Entries()
	if len(entries) != 2 {
		t.Fatalf("Spine count = %d, want 2", len(entries))
	}
	if entries[0].IDRef != "cover" || entries[0].Linear {
		t.Errorf("Spine[0] = %+v, want cover non-linear", entries[0])
	}
	if entries[1].IDRef != "chapter1" || !entries[1].Linear || !entries[1].Valid {
		t.Errorf("Spine[1] = %+v, want valid linear chapter1", entries[1])
	}

	// Guide and semantics
	if len(pkg.Guide) != 2 {
		t.Fatalf("Guide count = %d, want 2", len(pkg.Guide))
	}
	if pkg.Guide[0].Title != "Cover" {
		t.Errorf("Guide[0].Title = %q, want %q", pkg.Guide[0].Title, "Cover")
	}
	if got := pkg.Semantics.For("cover")["cover"]; got != "true" {
		t.Errorf("Semantics[cover][cover] = %q, want %q", got, "true")
	}
	if got := pkg.Semantics.For("chapter1")["text"]; got != "true" {
		t.Errorf("Semantics[chapter1][text] = %q, want %q", got, "true")
	}
	if got := pkg.Semantics.For("cover-image")[SemanticCoverImage]; got != "true" {
		t.Errorf("Semantics[cover-image][cover-image] = %q, want %q", got, "true")
	}
}

func TestParse_EPUB30(t *testing.T) {
	path := writeOPF(t, `<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title id="t1">EPUB 3.0 Sample</dc:title>
    <dc:creator id="creator01">Author Name</dc:creator>
    <meta refines="#creator01" property="role" scheme="marc:relators">aut</meta>
    <dc:identifier id="uid">urn:uuid:12345678-1234-1234-1234-123456789012</dc:identifier>
    <meta property="dcterms:modified">2024-01-15T12:00:00Z</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="cover" href="images/cover.png" media-type="image/png" properties="cover-image"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine page-progression-direction="rtl">
    <itemref idref="ch1"/>
  </spine>
</package>`)

	pkg, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if pkg.PageDirection != "rtl" {
		t.Errorf("PageDirection = %q, want %q", pkg.PageDirection, "rtl")
	}

	var role MetaElement
	for _, m := range pkg.Metadata {
		if m.Name == "role" {
			role = m
		}
	}
	if role.Value != "aut" {
		t.Errorf("role.Value = %q, want %q", role.Value, "aut")
	}
	if role.Attr("refines") != "#creator01" {
		t.Errorf("role refines = %q, want %q", role.Attr("refines"), "#creator01")
	}
	if role.Attr("scheme") != "marc:relators" {
		t.Errorf("role scheme = %q, want %q", role.Attr("scheme"), "marc:relators")
	}

	cover, _ := pkg.Manifest.Item("cover")
	if !cover.HasProperty("cover-image") {
		t.Errorf("cover.Properties = %v, want cover-image", cover.Properties)
	}
	if got := pkg.Semantics.For("cover")[SemanticCoverImage]; got != "true" {
		t.Errorf("Semantics[cover][cover-image] = %q, want %q", got, "true")
	}
	if got := pkg.Semantics.For("nav")[SemanticNav]; got != "true" {
		t.Errorf("Semantics[nav][nav] = %q, want %q", got, "true")
	}
}

func TestParse_DuplicateManifestPaths(t *testing.T) {
	path := writeOPF(t, `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest>
    <item id="x1" href="a.html" media-type="application/xhtml+xml"/>
    <item id="x2" href="a.html" media-type="application/xhtml+xml"/>
    <item id="x3" href="./sub/../a.html" media-type="application/xhtml+xml"/>
    <item id="b" href="b.html" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="x1"/>
    <itemref idref="x2"/>
  </spine>
</package>`)

	pkg, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	reg := pkg.Manifest
	if reg.Len() != 2 {
		t.Fatalf("Manifest.Len() = %d, want 2", reg.Len())
	}
	p1, _ := reg.Resolve("x1")
	for _, id := range []string{"x2", "x3"} {
		p, ok := reg.Resolve(id)
		if !ok {
			t.Fatalf("Resolve(%q) not found", id)
		}
		if p != p1 {
			t.Errorf("Resolve(%q) = %q, want %q", id, p, p1)
		}
		if canon, _ := reg.Canonical(id); canon != "x1" {
			t.Errorf("Canonical(%q) = %q, want %q", id, canon, "x1")
		}
	}
	aliases := reg.Aliases("x1")
	if len(aliases) != 2 || aliases[0].ID != "x2" || aliases[1].Href != "./sub/../a.html" {
		t.Errorf("Aliases(x1) = %+v", aliases)
	}
	for _, e := range pkg.Spine.Entries() {
		if !e.Valid {
			t.Errorf("spine entry %q flagged invalid", e.IDRef)
		}
	}
	if len(pkg.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none", pkg.Diagnostics)
	}
}

func TestParse_UnknownSpineIDRef(t *testing.T) {
	path := writeOPF(t, `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest>
    <item id="ch1" href="ch1.html" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="missing"/>
    <itemref idref="ch1"/>
  </spine>
</package>`)

	pkg, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	entries := pkg.Spine.Entries()
	if len(entries) != 2 {
		t.Fatalf("Spine count = %d, want 2", len(entries))
	}
	if entries[0].Valid {
		t.Error("Spine[0].Valid = true, want false")
	}
	if ids := pkg.Spine.IDs(); len(ids) != 1 || ids[0] != "ch1" {
		t.Errorf("IDs() = %v, want [ch1]", ids)
	}
	if len(pkg.Diagnostics) != 1 {
		t.Fatalf("Diagnostics count = %d, want 1", len(pkg.Diagnostics))
	}
	d := pkg.Diagnostics[0]
	if d.Kind != KindElementValidation || d.ID != "missing" || d.Element != "itemref" {
		t.Errorf("Diagnostic = %+v", d)
	}
}

func TestParse_GuideMatchesByPath(t *testing.T) {
	path := writeOPF(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		`<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest>
    <item id="cid" href="Text/cover.html" media-type="application/xhtml+xml"/>
    <item id="accent" href="Text/cafe`+"\u0301"+`.html" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="cid"/></spine>
  <guide>
    <reference type="cover" href="Text/../Text/cover.html"/>
    <reference type="text" href="Text/caf%C3%A9.html#p1"/>
    <reference type="toc" href="Text/nowhere.html"/>
    <reference type="loi" href="http://example.com/x.html"/>
  </guide>
</package>`)

	pkg, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := pkg.Semantics.For("cid")["cover"]; got != "true" {
		t.Errorf("Semantics[cid][cover] = %q, want %q", got, "true")
	}
	if got := pkg.Semantics.For("accent")["text"]; got != "true" {
		t.Errorf("Semantics[accent][text] = %q, want %q", got, "true")
	}
	if len(pkg.Diagnostics) != 2 {
		t.Fatalf("Diagnostics count = %d, want 2: %v", len(pkg.Diagnostics), pkg.Diagnostics)
	}
	for _, d := range pkg.Diagnostics {
		if d.Element != "reference" {
			t.Errorf("Diagnostic element = %q, want reference", d.Element)
		}
	}
}

func TestParse_MissingAttributesAreRecoverable(t *testing.T) {
	path := writeOPF(t, `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata><meta content="orphan"/></metadata>
  <manifest>
    <item href="noid.html" media-type="application/xhtml+xml"/>
    <item id="nohref" media-type="application/xhtml+xml"/>
    <item id="ok" href="ok.html" media-type="application/xhtml+xml"/>
    <item id="ok" href="again.html" media-type="application/xhtml+xml"/>
    <item id="remote" href="https://example.com/a.html" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref/>
    <itemref idref="ok"/>
  </spine>
</package>`)

	pkg, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if pkg.Manifest.Len() != 1 {
		t.Errorf("Manifest.Len() = %d, want 1", pkg.Manifest.Len())
	}
	if pkg.Spine.Len() != 1 {
		t.Errorf("Spine.Len() = %d, want 1", pkg.Spine.Len())
	}
	if len(pkg.Metadata) != 0 {
		t.Errorf("Metadata count = %d, want 0", len(pkg.Metadata))
	}
	// meta, noid, nohref, duplicate id, remote, itemref
	if len(pkg.Diagnostics) != 6 {
		t.Fatalf("Diagnostics count = %d, want 6: %v", len(pkg.Diagnostics), pkg.Diagnostics)
	}
	for _, d := range pkg.Diagnostics {
		if d.Kind != KindElementValidation {
			t.Errorf("Diagnostic kind = %v, want element", d.Kind)
		}
		if d.Line == 0 {
			t.Errorf("Diagnostic %q has no line", d.Message)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"unclosed", `<package xmlns="http://www.idpf.org/2007/opf"><manifest><item id="a" href="a.html"/>`, ErrMalformed},
		{"mismatched", `<package xmlns="http://www.idpf.org/2007/opf"><manifest></spine></package>`, ErrMalformed},
		{"bad attribute", `<package xmlns="http://www.idpf.org/2007/opf"><manifest><item id=a/></manifest></package>`, ErrMalformed},
		{"no package", `<?xml version="1.0"?><html/>`, ErrNoPackage},
		{"empty", ``, ErrNoPackage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := ParseReader(strings.NewReader(tt.content), "/book", "", nil)
			if err == nil {
				t.Fatal("ParseReader succeeded, want error")
			}
			if pkg != nil {
				t.Errorf("ParseReader returned partial package %+v", pkg)
			}
			if !IsParseError(err) {
				t.Errorf("error %v is not a *ParseError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_Unreadable(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.opf"), "", nil)
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("error = %v, want ErrUnreadable", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || !strings.HasSuffix(pe.Path, "missing.opf") {
		t.Errorf("ParseError path = %+v", pe)
	}
}

func TestParse_Idempotent(t *testing.T) {
	path := writeOPF(t, epub2OPF)

	first, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, err := Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !reflect.DeepEqual(first.Manifest, second.Manifest) {
		t.Error("Manifest differs between runs")
	}
	if !reflect.DeepEqual(first.Spine, second.Spine) {
		t.Error("Spine differs between runs")
	}
	if !reflect.DeepEqual(first.Semantics, second.Semantics) {
		t.Error("Semantics differs between runs")
	}
	if !reflect.DeepEqual(first.Metadata, second.Metadata) {
		t.Error("Metadata differs between runs")
	}
}

func TestParse_LegacyEncodingAndNamespaces(t *testing.T) {
	content := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		`<package xmlns="http://openebook.org/namespaces/oeb-package/1.0/" unique-identifier="id">
  <metadata>
    <dc-metadata xmlns:dc="http://purl.org/dc/elements/1.0/">
      <dc:Title>Caf` + "\xe9" + `</dc:Title>
      <dc:Identifier id="id">legacy-1</dc:Identifier>
    </dc-metadata>
  </metadata>
  <manifest><item id="a" href="a.html" media-type="text/x-oeb1-document"/></manifest>
  <spine><itemref idref="a"/></spine>
</package>`

	pkg, err := ParseReader(strings.NewReader(content), "/book", "", nil)
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(pkg.Metadata) != 2 {
		t.Fatalf("Metadata count = %d, want 2", len(pkg.Metadata))
	}
	if pkg.Metadata[0].Name != "Title" || pkg.Metadata[0].Value != "Café" {
		t.Errorf("Metadata[0] = %+v, want Title=Café", pkg.Metadata[0])
	}
	if pkg.Manifest.Len() != 1 {
		t.Errorf("Manifest.Len() = %d, want 1", pkg.Manifest.Len())
	}
}

func TestParse_HrefsOutsideContainer(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("host secret"), 0o644); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}
	path := writeOPF(t, `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest>
    <item id="abs" href="`+filepath.ToSlash(secret)+`" media-type="text/plain"/>
    <item id="rel" href="../../../../../../../../../../etc/hostname" media-type="text/plain"/>
    <item id="shared" href="../images/a.png" media-type="image/png"/>
  </manifest>
  <spine/>
  <guide>
    <reference type="cover" href="../../outside.html"/>
  </guide>
</package>`)
	root := filepath.Dir(filepath.Dir(path))

	pkg, err := Parse(path, root, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if pkg.Manifest.Len() != 1 {
		t.Fatalf("Manifest.Len() = %d, want 1", pkg.Manifest.Len())
	}
	if p, ok := pkg.Manifest.Resolve("shared"); !ok || p != filepath.Join(root, "images", "a.png") {
		t.Errorf("Resolve(shared) = %q, %v", p, ok)
	}
	for _, id := range []string{"abs", "rel"} {
		if pkg.Manifest.Contains(id) {
			t.Errorf("manifest contains %q, want it skipped", id)
		}
	}

	if len(pkg.Diagnostics) != 3 {
		t.Fatalf("Diagnostics count = %d, want 3: %v", len(pkg.Diagnostics), pkg.Diagnostics)
	}
	for _, d := range pkg.Diagnostics {
		if d.Kind != KindElementValidation || !strings.Contains(d.Message, ErrOutsideContainer.Error()) {
			t.Errorf("Diagnostic = %v, want an element warning about leaving the container", d)
		}
	}

	// without a root, hrefs are confined to the document's directory
	pkg, err = Parse(path, "", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if pkg.Manifest.Len() != 0 {
		t.Errorf("Manifest.Len() = %d, want 0", pkg.Manifest.Len())
	}
}
