package book

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadRequest describes one file to load and the identity it is loaded under.
// Everything except the bytes is decided before the load starts.
type LoadRequest struct {
	ID           string
	Aliases      []string
	Href         string
	SourcePath   string
	MediaType    string
	NewPath      string
	ReadingOrder int // -1 when not in the spine
	Positions    []int
	Linear       bool
	Semantics    map[string]string
}

// FileLoader turns a file of the extracted container into a resource.
type FileLoader interface {
	Load(ctx context.Context, req LoadRequest) (*Resource, error)
}

// Stager is implemented by loaders whose output stays pending until the
// caller commits it, so an aborted import leaves nothing behind.
type Stager interface {
	Commit(res *Resource) error
	Discard(res *Resource) error
}

// DiskLoader reads files from the extracted container and, when Dir is set,
// stages a copy under Dir that Commit moves to the new book path.
type DiskLoader struct {
	Dir    string
	Logger *slog.Logger
}

// NewDiskLoader creates a loader writing into dir. An empty dir loads and
// inspects files without copying them.
func NewDiskLoader(dir string, logger *slog.Logger) *DiskLoader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DiskLoader{Dir: dir, Logger: logger}
}

// Load reads req.SourcePath and inspects it according to its kind.
// Inspection problems are recorded on Resource.Warning; only I/O failures
// are returned as errors.
func (l *DiskLoader) Load(ctx context.Context, req LoadRequest) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.SourcePath, err)
	}

	res := &Resource{
		ID:           req.ID,
		Aliases:      req.Aliases,
		Kind:         KindFor(req.MediaType, req.SourcePath),
		Href:         req.Href,
		SourcePath:   req.SourcePath,
		NewPath:      req.NewPath,
		MediaType:    req.MediaType,
		Size:         int64(len(data)),
		ReadingOrder: req.ReadingOrder,
		Positions:    req.Positions,
		Linear:       req.Linear,
		Semantics:    req.Semantics,
	}

	switch res.Kind {
	case KindText:
		if err := inspectHTML(res, data); err != nil {
			res.Warning = err.Error()
		}
	case KindImage:
		if err := inspectImage(res, data); err != nil {
			res.Warning = err.Error()
		}
	}
	if res.Warning != "" {
		l.Logger.Warn("resource loaded without inspection", "id", res.ID, "path", res.NewPath, "reason", res.Warning)
	}

	if l.Dir != "" {
		staged, err := stageFile(l.Dir, data)
		if err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", res.NewPath, err)
		}
		res.file = staged
	}

	l.Logger.Debug("loaded resource", "id", res.ID, "kind", res.Kind.String(), "path", res.NewPath, "bytes", res.Size)
	return res, nil
}

// Commit moves a staged resource to its new path under Dir.
func (l *DiskLoader) Commit(res *Resource) error {
	if l.Dir == "" || res.file == "" {
		return nil
	}
	dst := filepath.Join(l.Dir, filepath.FromSlash(res.NewPath))
	if res.file == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to write %s: %w", res.NewPath, err)
	}
	if err := os.Rename(res.file, dst); err != nil {
		return fmt.Errorf("failed to write %s: %w", res.NewPath, err)
	}
	res.file = dst
	return nil
}

// Discard removes whatever the loader wrote for res, staged or committed.
func (l *DiskLoader) Discard(res *Resource) error {
	if res.file == "" {
		return nil
	}
	err := os.Remove(res.file)
	res.file = ""
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// stageFile writes data to a hidden temporary file directly under dir. The
// file sits on the same filesystem as its destination so Commit is a rename.
func stageFile(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".oebpsimport-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", err
	}
	return tmpName, nil
}
