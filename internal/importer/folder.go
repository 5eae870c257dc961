package importer

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/yuanying/oebpsimport/internal/book"
	"github.com/yuanying/oebpsimport/internal/opf"
)

// FileLoadError reports a manifest file that could not be loaded in strict
// mode.
type FileLoadError struct {
	ID   string
	Path string
	Err  error
}

func (e *FileLoadError) Error() string {
	return fmt.Sprintf("failed to load %q (%s): %v", e.ID, e.Path, e.Err)
}

func (e *FileLoadError) Unwrap() error { return e.Err }

// loadPlan is one unique file and every href that must map to it.
type loadPlan struct {
	req   book.LoadRequest
	hrefs []string
}

// LoadFolderStructure loads every unique manifest file into b and returns
// the map from each manifest href, as written, to the file's new book path.
//
// Which files load, under which identity, reading-order index and path, is
// fixed before any load starts, so the result does not depend on the order
// loads complete in. Files listed under several identifiers load once and
// every alias href maps to the same new path.
//
// Nothing is added to b, and nothing staged by a book.Stager loader is
// committed, until every load has finished. On error b holds no resources
// from this call and the loader's output is discarded.
func LoadFolderStructure(ctx context.Context, pkg *opf.Package, b *book.Book, opts Options) (map[string]string, []opf.Diagnostic, error) {
	opts = opts.normalize()
	plans := planLoads(pkg, b)

	results := make([]*book.Resource, len(plans))
	failures := make([]error, len(plans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range plans {
		g.Go(func() error {
			req := plans[i].req
			res, err := opts.Loader.Load(gctx, req)
			if err != nil {
				failures[i] = err
				if opts.Strict {
					return &FileLoadError{ID: req.ID, Path: req.SourcePath, Err: err}
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		discard(opts, results)
		return nil, nil, err
	}

	// Output becomes visible only now, in plan order.
	stager, _ := opts.Loader.(book.Stager)
	for i, res := range results {
		if res == nil {
			continue
		}
		err := b.Add(res)
		if err == nil && stager != nil {
			if err = stager.Commit(res); err != nil {
				b.Remove(res.NewPath)
			}
		}
		if err == nil {
			continue
		}
		results[i] = nil
		failures[i] = err
		if opts.Strict {
			for _, done := range results[:i] {
				if done != nil {
					b.Remove(done.NewPath)
				}
			}
			discard(opts, append(results, res))
			return nil, nil, &FileLoadError{ID: res.ID, Path: res.SourcePath, Err: err}
		}
		discard(opts, []*book.Resource{res})
	}

	refs := make(map[string]string, len(plans))
	var diags []opf.Diagnostic
	for i, p := range plans {
		if results[i] == nil {
			d := opf.Diagnostic{
				Kind:    opf.KindFileLoad,
				Element: "item",
				ID:      p.req.ID,
				Path:    p.req.SourcePath,
				Message: failures[i].Error(),
			}
			diags = append(diags, d)
			opts.Logger.Warn("skipping file that failed to load", "id", d.ID, "path", d.Path, "error", failures[i])
			continue
		}
		for _, h := range p.hrefs {
			if _, ok := refs[h]; !ok {
				refs[h] = results[i].NewPath
			}
		}
	}

	opts.Logger.Info("loaded folder structure", "files", len(plans)-len(diags), "failed", len(diags), "references", len(refs))
	return refs, diags, nil
}

// discard drops whatever the loader wrote for resources.
func discard(opts Options, resources []*book.Resource) {
	stager, ok := opts.Loader.(book.Stager)
	if !ok {
		return
	}
	for _, res := range resources {
		if res == nil {
			continue
		}
		if err := stager.Discard(res); err != nil {
			opts.Logger.Warn("failed to remove loaded file", "id", res.ID, "path", res.NewPath, "error", err)
		}
	}
}

// planLoads walks the manifest in document order and decides, for each
// unique file, its new path, reading-order positions and semantic tags.
func planLoads(pkg *opf.Package, b *book.Book) []loadPlan {
	reg := pkg.Manifest

	positions := make(map[string][]int)
	linear := make(map[string]bool)
	for i, e := range pkg.Spine.Valid() {
		canon, ok := reg.Canonical(e.IDRef)
		if !ok {
			continue
		}
		if _, seen := positions[canon]; !seen {
			linear[canon] = e.Linear
		}
		positions[canon] = append(positions[canon], i)
	}

	items := reg.Items()
	plans := make([]loadPlan, 0, len(items))
	for _, it := range items {
		ids := []string{it.ID}
		hrefs := []string{it.Href}
		var aliasIDs []string
		for _, a := range reg.Aliases(it.ID) {
			ids = append(ids, a.ID)
			aliasIDs = append(aliasIDs, a.ID)
			hrefs = append(hrefs, a.Href)
		}

		kind := book.KindFor(it.MediaType, it.Path)
		req := book.LoadRequest{
			ID:           it.ID,
			Aliases:      aliasIDs,
			Href:         it.Href,
			SourcePath:   it.Path,
			MediaType:    it.MediaType,
			NewPath:      b.Reserve(kind, filepath.Base(it.Path)),
			ReadingOrder: -1,
			Semantics:    pkg.Semantics.Merge(ids...),
		}
		if pos := positions[it.ID]; len(pos) > 0 {
			req.ReadingOrder = pos[0]
			req.Positions = pos
			req.Linear = linear[it.ID]
		}
		plans = append(plans, loadPlan{req: req, hrefs: hrefs})
	}
	return plans
}
