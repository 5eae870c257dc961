package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/oebpsimport/internal/book"
	"github.com/yuanying/oebpsimport/internal/importer"
	"github.com/yuanying/oebpsimport/internal/metadata"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

type cliOptions struct {
	InputPath string
	JSON      bool
	Import    importer.Options
	Logger    *slog.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oebpsimport <book.epub>",
		Short: "Import an OEBPS/EPUB container into a normalized book tree",
		Long: `oebpsimport reads the package document of an OEBPS or EPUB container,
resolves its manifest, reading order and metadata, and copies every
unique content file into a Text/Styles/Images/... folder layout.

Recoverable problems in the package document are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringP("output-dir", "o", "", "Directory to write the book tree to (default: inspect only)")
	f.Bool("strict", false, "Fail when a manifest file cannot be loaded")
	f.String("identifier-fallback", metadata.FallbackFirst.String(), "Identifier to use when unique-identifier matches nothing: first, synthesize or none")
	f.IntP("concurrency", "j", importer.DefaultConcurrency, "Number of files loaded in parallel")
	f.Bool("keep-extracted", false, "Keep the extracted container on disk")
	f.Bool("json", false, "Print the import result as JSON")
	f.String("log-level", defaultLogLevel, "Log level: debug, info, warn or error")
	f.String("log-format", defaultLogFormat, "Log format: text or json")
	f.BoolP("verbose", "v", false, "Shorthand for --log-level debug")
	return cmd
}

func readCLIOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	f := cmd.Flags()
	outputDir, _ := f.GetString("output-dir")
	strict, _ := f.GetBool("strict")
	fallbackName, _ := f.GetString("identifier-fallback")
	concurrency, _ := f.GetInt("concurrency")
	keep, _ := f.GetBool("keep-extracted")
	asJSON, _ := f.GetBool("json")
	level, _ := f.GetString("log-level")
	format, _ := f.GetString("log-format")
	verbose, _ := f.GetBool("verbose")

	fallback, err := metadata.ParseFallback(fallbackName)
	if err != nil {
		return cliOptions{}, fmt.Errorf("invalid --identifier-fallback: %w", err)
	}
	if concurrency < 1 || concurrency > importer.MaxConcurrency {
		return cliOptions{}, fmt.Errorf("invalid --concurrency %d: must be between 1 and %d", concurrency, importer.MaxConcurrency)
	}
	if _, ok := parseLevel(level); !ok {
		return cliOptions{}, fmt.Errorf("invalid --log-level %q: must be debug, info, warn or error", level)
	}
	switch strings.ToLower(format) {
	case "text", "json":
	default:
		return cliOptions{}, fmt.Errorf("invalid --log-format %q: must be text or json", format)
	}
	if verbose {
		level = "debug"
	}

	logger := buildLogger(os.Stderr, level, format)
	return cliOptions{
		InputPath: args[0],
		JSON:      asJSON,
		Logger:    logger,
		Import: importer.Options{
			OutputDir:          outputDir,
			Strict:             strict,
			IdentifierFallback: fallback,
			Concurrency:        concurrency,
			KeepExtracted:      keep,
			Logger:             logger,
		},
	}, nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	lv, _ := parseLevel(level)
	hopts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func run(ctx context.Context, out io.Writer, opts cliOptions) error {
	opts.Logger.Info("importing", "input", opts.InputPath, "output_dir", opts.Import.OutputDir)

	res, err := importer.New(opts.Import).Import(ctx, opts.InputPath)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if res.ExtractedDir != "" {
		opts.Logger.Info("kept extracted container", "dir", res.ExtractedDir)
	}

	if opts.JSON {
		return writeJSON(out, res)
	}
	writeSummary(out, res)
	return nil
}

type jsonResult struct {
	Metadata    metadata.Metadata `json:"metadata"`
	Resources   []*book.Resource  `json:"resources"`
	References  map[string]string `json:"references"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
}

func writeJSON(w io.Writer, res *importer.Result) error {
	out := jsonResult{
		Metadata:   res.Book.Metadata,
		Resources:  res.Book.Resources(),
		References: res.References,
	}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.String())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSummary(w io.Writer, res *importer.Result) {
	md := res.Book.Metadata
	fmt.Fprintf(w, "Title:       %s\n", md.Title)
	fmt.Fprintf(w, "Language:    %s\n", md.Language)
	fmt.Fprintf(w, "Identifier:  %s (%s)\n", md.Identifier, md.IdentifierSource)
	for _, c := range md.Creators {
		if c.Role != "" {
			fmt.Fprintf(w, "Creator:     %s (%s)\n", c.Name, c.Role)
		} else {
			fmt.Fprintf(w, "Creator:     %s\n", c.Name)
		}
	}

	fmt.Fprintf(w, "\nReading order:\n")
	for _, r := range res.Book.ReadingOrder() {
		fmt.Fprintf(w, "  %3d. %s", r.ReadingOrder+1, r.NewPath)
		if r.Title != "" {
			fmt.Fprintf(w, "  %q", r.Title)
		}
		if !r.Linear {
			fmt.Fprint(w, "  (non-linear)")
		}
		fmt.Fprintln(w)
	}

	counts := make(map[book.Kind]int)
	for _, r := range res.Book.Resources() {
		counts[r.Kind]++
	}
	fmt.Fprintf(w, "\nResources:   %d", res.Book.Len())
	for k := book.KindMisc; k <= book.KindNCX; k++ {
		if counts[k] > 0 {
			fmt.Fprintf(w, "  %s=%d", k, counts[k])
		}
	}
	fmt.Fprintf(w, "\nReferences:  %d\n", len(res.References))

	if len(res.Diagnostics) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
