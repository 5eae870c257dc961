// Package epub expands a packaged container into a directory and locates its
// package document.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

const (
	epubMimetype   = "application/epub+zip"
	opfMediaType   = "application/oebps-package+xml"
	containerPath  = "META-INF/container.xml"
	extractPattern = "oebpsimport-*"
)

var (
	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
	ErrContainerNotFound  = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound    = errors.New("OPF path not found in container.xml")
	ErrOPFNotFound        = errors.New("package document not found")
	ErrUnsafePath         = errors.New("archive entry escapes the extraction directory")
)

// Extraction is a container expanded into a temporary directory. The caller
// owns the directory and removes it with Cleanup.
type Extraction struct {
	Dir string
	// Warnings lists problems with the mimetype entry. They do not stop the
	// import: plenty of readable books get it wrong.
	Warnings []error
}

// Cleanup removes the extracted tree.
func (e *Extraction) Cleanup() error {
	if e == nil || e.Dir == "" {
		return nil
	}
	return os.RemoveAll(e.Dir)
}

// Extract expands the zip container at path into a new temporary directory.
func Extract(path string, logger *slog.Logger) (*Extraction, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer zr.Close()

	dir, err := os.MkdirTemp("", extractPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	ex := &Extraction{Dir: dir}

	if err := validateMimetype(zr.File); err != nil {
		logger.Warn("container mimetype is not valid", "path", path, "error", err)
		ex.Warnings = append(ex.Warnings, err)
	}

	for _, f := range zr.File {
		if err := extractFile(dir, f); err != nil {
			ex.Cleanup()
			return nil, err
		}
	}

	logger.Debug("extracted container", "path", path, "dir", dir, "entries", len(zr.File))
	return ex, nil
}

func extractFile(dir string, f *zip.File) error {
	name := normalizePath(f.Name)
	if name == "" {
		return nil
	}
	if !filepath.IsLocal(filepath.FromSlash(strings.TrimSuffix(name, "/"))) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	dst := filepath.Join(dir, filepath.FromSlash(name))

	if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
		return os.MkdirAll(dst, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", name, err)
	}
	return out.Close()
}

// validateMimetype checks that the mimetype file exists and is valid
func validateMimetype(files []*zip.File) error {
	var f *zip.File
	for _, zf := range files {
		if normalizePath(zf.Name) == "mimetype" {
			f = zf
			break
		}
	}
	if f == nil {
		return ErrMimetypeNotFound
	}

	// Check that mimetype is not compressed
	if f.Method != zip.Store {
		return ErrMimetypeCompressed
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, 64))
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}
	if strings.TrimSpace(string(content)) != epubMimetype {
		return ErrInvalidMimetype
	}
	return nil
}

// LocatePackageDocument returns the absolute path of the package document of
// an extracted container. It reads META-INF/container.xml and, when that is
// missing, falls back to the first .opf file in the tree.
func LocatePackageDocument(dir string) (string, error) {
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(containerPath)))
	if errors.Is(err, fs.ErrNotExist) {
		return findOPF(dir)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read container.xml: %w", err)
	}

	rel, err := parseContainer(content)
	if err != nil {
		return "", err
	}

	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %s escapes the container", ErrOPFNotFound, rel)
	}
	opfPath := filepath.Join(dir, filepath.FromSlash(rel))
	if _, err := os.Stat(opfPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrOPFNotFound, rel)
	}
	return opfPath, nil
}

// parseContainer parses container.xml to extract OPF path
func parseContainer(content []byte) (string, error) {
	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	// Find the OPF file path
	for _, rf := range c.Rootfiles.Rootfile {
		if (rf.MediaType == opfMediaType || rf.MediaType == "") && rf.FullPath != "" {
			return normalizePath(rf.FullPath), nil
		}
	}

	// If no media-type match, use the first one
	if len(c.Rootfiles.Rootfile) > 0 && c.Rootfiles.Rootfile[0].FullPath != "" {
		return normalizePath(c.Rootfiles.Rootfile[0].FullPath), nil
	}

	return "", ErrOPFPathNotFound
}

func findOPF(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".opf") {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search for package document: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %w", ErrContainerNotFound, ErrOPFNotFound)
	}
	return found, nil
}

// normalizePath normalizes archive paths (backslashes, ./ prefix, leading /)
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimLeft(path, "/")
	return path
}
