// Package importer imports a packaged OEBPS/EPUB container into a book.
package importer

import (
	"context"
	"fmt"

	"github.com/yuanying/oebpsimport/internal/book"
	"github.com/yuanying/oebpsimport/internal/epub"
	"github.com/yuanying/oebpsimport/internal/metadata"
	"github.com/yuanying/oebpsimport/internal/opf"
)

// Result is the outcome of a successful import.
type Result struct {
	Book    *book.Book
	Package *opf.Package
	// References maps every manifest href, as written, to the new path of
	// the file inside the book. Link rewriting consumes it.
	References  map[string]string
	Diagnostics []opf.Diagnostic
	// ExtractedDir is the extracted container when Options.KeepExtracted is
	// set.
	ExtractedDir string
}

// Importer runs one import. It holds no state between imports.
type Importer struct {
	opts Options
}

// New creates an importer.
func New(opts Options) *Importer {
	return &Importer{opts: opts.normalize()}
}

// Import extracts the container at path and imports it.
func (im *Importer) Import(ctx context.Context, path string) (*Result, error) {
	log := im.opts.Logger

	ex, err := epub.Extract(path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to extract container: %w", err)
	}
	if !im.opts.KeepExtracted {
		defer func() {
			if err := ex.Cleanup(); err != nil {
				log.Warn("failed to remove extracted container", "dir", ex.Dir, "error", err)
			}
		}()
	}

	res, err := im.ImportDir(ctx, ex.Dir)
	if err != nil {
		return nil, err
	}
	if im.opts.KeepExtracted {
		res.ExtractedDir = ex.Dir
	}
	return res, nil
}

// ImportDir imports an already extracted container.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*Result, error) {
	log := im.opts.Logger

	opfPath, err := epub.LocatePackageDocument(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to locate package document: %w", err)
	}
	log.Debug("located package document", "path", opfPath)

	pkg, err := opf.Parse(opfPath, dir, log)
	if err != nil {
		return nil, err
	}
	log.Info("parsed package document",
		"version", pkg.Version,
		"metadata", len(pkg.Metadata),
		"files", pkg.Manifest.Len(),
		"spine", pkg.Spine.Len(),
		"warnings", len(pkg.Diagnostics))

	md, mdDiags := metadata.Load(pkg.Metadata, pkg.UniqueIdentifierID, im.opts.IdentifierFallback)
	for _, d := range mdDiags {
		log.Warn(d.Message, "kind", d.Kind.String(), "id", d.ID)
	}

	b := book.New()
	b.SetMetadata(md)

	refs, loadDiags, err := LoadFolderStructure(ctx, pkg, b, im.opts)
	if err != nil {
		return nil, err
	}

	diags := make([]opf.Diagnostic, 0, len(pkg.Diagnostics)+len(mdDiags)+len(loadDiags))
	diags = append(diags, pkg.Diagnostics...)
	diags = append(diags, mdDiags...)
	diags = append(diags, loadDiags...)

	return &Result{
		Book:        b,
		Package:     pkg,
		References:  refs,
		Diagnostics: diags,
	}, nil
}
