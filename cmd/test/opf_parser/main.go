// Test program for the package document parser
//
// Usage:
//   go run ./cmd/test/opf_parser/main.go <epub-file-path>
//
// This program will:
// - Extract the container
// - Parse the package document
// - Display metadata elements and the resolved identifier
// - List manifest items and their aliases
// - Show the reading order and semantic tags
// - Print every warning collected while parsing

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/yuanying/oebpsimport/internal/epub"
	"github.com/yuanying/oebpsimport/internal/metadata"
	"github.com/yuanying/oebpsimport/internal/opf"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <epub-file-path>\n", os.Args[0])
		os.Exit(1)
	}

	epubPath := os.Args[1]
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println("=== Package Document Parser Test ===")
	fmt.Printf("File: %s\n\n", epubPath)

	ex, err := epub.Extract(epubPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting container: %v\n", err)
		os.Exit(1)
	}
	defer ex.Cleanup()

	opfPath, err := epub.LocatePackageDocument(ex.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating package document: %v\n", err)
		os.Exit(1)
	}

	pkg, err := opf.Parse(opfPath, ex.Dir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing package document: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Package document parsed (version %s)\n", pkg.Version)

	fmt.Println("\n--- Metadata ---")
	for _, el := range pkg.Metadata {
		prefix := ""
		if el.DublinCore {
			prefix = "dc:"
		}
		fmt.Printf("  %s%s = %q\n", prefix, el.Name, el.Value)
	}

	md, mdDiags := metadata.Load(pkg.Metadata, pkg.UniqueIdentifierID, metadata.FallbackFirst)
	fmt.Printf("Identifier:  %s (%s)\n", md.Identifier, md.IdentifierSource)
	fmt.Printf("Title:       %s\n", md.Title)

	fmt.Printf("\n--- Manifest ---\n")
	fmt.Printf("Unique files: %d\n\n", pkg.Manifest.Len())
	for _, item := range pkg.Manifest.Items() {
		fmt.Printf("  %s: %s (%s)\n", item.ID, item.Href, item.MediaType)
		for _, a := range pkg.Manifest.Aliases(item.ID) {
			fmt.Printf("      alias %s: %s\n", a.ID, a.Href)
		}
	}

	fmt.Printf("\n--- Spine ---\n")
	for i, e := range pkg.Spine.Entries() {
		state := "ok"
		if !e.Valid {
			state = "not in manifest"
		}
		fmt.Printf("  %d. %s (linear: %v, %s)\n", i+1, e.IDRef, e.Linear, state)
	}

	fmt.Printf("\n--- Semantics ---\n")
	for _, id := range pkg.Semantics.IDs() {
		fmt.Printf("  %s: %v\n", id, pkg.Semantics.For(id))
	}

	diags := append(pkg.Diagnostics, mdDiags...)
	fmt.Printf("\n--- Warnings (%d) ---\n", len(diags))
	for _, d := range diags {
		fmt.Printf("  %s\n", d)
	}

	fmt.Println("\n=== Test Completed Successfully ===")
}
