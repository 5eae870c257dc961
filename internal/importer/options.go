package importer

import (
	"log/slog"

	"github.com/yuanying/oebpsimport/internal/book"
	"github.com/yuanying/oebpsimport/internal/metadata"
)

const (
	// DefaultConcurrency is the number of files loaded at once when Options
	// does not say otherwise.
	DefaultConcurrency = 4
	// MaxConcurrency caps Options.Concurrency.
	MaxConcurrency = 32
)

// Options holds options for one import.
type Options struct {
	// OutputDir receives the book's content tree. Empty loads and inspects
	// files without copying them.
	OutputDir string
	// Strict aborts the import on the first file that fails to load.
	// Otherwise the file is skipped and reported as a diagnostic.
	Strict bool
	// IdentifierFallback picks the book identifier when the declared
	// unique-identifier matches no dc:identifier.
	IdentifierFallback metadata.Fallback
	// Concurrency bounds parallel file loads; values are clamped to
	// [1, MaxConcurrency] and 0 means DefaultConcurrency.
	Concurrency int
	// KeepExtracted leaves the extracted container on disk.
	KeepExtracted bool
	// Loader replaces the default disk loader.
	Loader book.FileLoader
	Logger *slog.Logger
}

func (o Options) normalize() Options {
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Concurrency > MaxConcurrency {
		o.Concurrency = MaxConcurrency
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Loader == nil {
		o.Loader = book.NewDiskLoader(o.OutputDir, o.Logger)
	}
	return o
}
