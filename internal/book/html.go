package book

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// inspectHTML records the title and the stylesheet and image references of
// a text resource. References are resolved against the directory of the
// manifest href so they can be looked up in the reference map.
func inspectHTML(res *Resource, data []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse XHTML: %w", err)
	}

	res.Title = strings.TrimSpace(doc.Find("head title").First().Text())

	baseDir := path.Dir(res.Href)

	doc.Find("link[rel='stylesheet']").Each(func(i int, s *goquery.Selection) {
		if href, exists := s.Attr("href"); exists {
			if p, ok := resolveRef(baseDir, href); ok {
				res.Stylesheets = append(res.Stylesheets, p)
			}
		}
	})

	doc.Find("img[src], image").Each(func(i int, s *goquery.Selection) {
		src, exists := s.Attr("src")
		if !exists {
			// SVG <image xlink:href>; the parser drops the prefix
			src, exists = s.Attr("href")
		}
		if exists {
			if p, ok := resolveRef(baseDir, src); ok {
				res.Images = append(res.Images, p)
			}
		}
	})

	return nil
}

// resolveRef resolves a relative reference against baseDir.
// baseDir: base directory (e.g., "text" for "text/chapter1.xhtml")
// ref: relative reference (e.g., "../images/photo.jpg#x")
// returns: resolved path (e.g., "images/photo.jpg")
func resolveRef(baseDir, ref string) (string, bool) {
	ref, _, _ = strings.Cut(strings.TrimSpace(ref), "#")
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return "", false
	}
	return path.Clean(path.Join(baseDir, ref)), true
}
