package opf

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// splitFragment splits an href into the path and fragment identifier.
func splitFragment(href string) (path, fragment string) {
	path, fragment, _ = strings.Cut(href, "#")
	return path, fragment
}

// resolveHref resolves a manifest or guide href against dir and returns the
// cleaned file path. Fragments are dropped and percent escapes decoded;
// hrefs carrying a URL scheme are rejected, and so are absolute hrefs and
// hrefs that leave root.
func resolveHref(root, dir, href string) (string, error) {
	raw, _ := splitFragment(strings.TrimSpace(href))
	if raw == "" {
		return "", ErrEmptyHref
	}
	if isRemote(raw) {
		return "", ErrRemoteHref
	}
	if dec, err := url.PathUnescape(raw); err == nil {
		raw = dec
	}
	p := filepath.FromSlash(raw)
	if strings.HasPrefix(raw, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", ErrOutsideContainer
	}
	p = filepath.Join(dir, p)
	rel, err := filepath.Rel(root, p)
	if err != nil || !filepath.IsLocal(rel) {
		return "", ErrOutsideContainer
	}
	return p, nil
}

var remoteSchemes = map[string]bool{
	"http": true, "https": true, "ftp": true, "data": true, "mailto": true,
}

// isRemote reports whether href points outside the container. A one-letter
// scheme is a Windows drive, not a URL.
func isRemote(href string) bool {
	u, err := url.Parse(href)
	if err != nil || len(u.Scheme) < 2 {
		return false
	}
	return u.Host != "" || remoteSchemes[strings.ToLower(u.Scheme)]
}

// pathKey cleans p and normalizes it to NFC so differently composed
// spellings of the same name compare equal.
func pathKey(p string) string {
	return norm.NFC.String(filepath.Clean(p))
}
