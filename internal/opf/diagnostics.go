package opf

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed        = errors.New("package document is not well-formed")
	ErrNoPackage        = errors.New("package element not found")
	ErrUnreadable       = errors.New("package document is unreadable")
	ErrRemoteHref       = errors.New("remote href")
	ErrEmptyHref        = errors.New("empty href")
	ErrOutsideContainer = errors.New("href points outside the container")
)

// Kind classifies a recoverable diagnostic.
type Kind int

const (
	KindElementValidation Kind = iota + 1
	KindIdentityResolution
	KindFileLoad
)

func (k Kind) String() string {
	switch k {
	case KindElementValidation:
		return "element"
	case KindIdentityResolution:
		return "identity"
	case KindFileLoad:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Diagnostic is a non-fatal problem surfaced alongside a successful result.
type Diagnostic struct {
	Kind    Kind
	Element string // element local name, e.g. "item"
	ID      string
	Path    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	s := d.Kind.String()
	if d.Element != "" {
		s += " <" + d.Element + ">"
	}
	if d.Line > 0 {
		s += fmt.Sprintf(" line %d", d.Line)
	}
	if d.ID != "" {
		s += fmt.Sprintf(" id=%q", d.ID)
	}
	if d.Path != "" {
		s += fmt.Sprintf(" path=%q", d.Path)
	}
	return s + ": " + d.Message
}

// ParseError is the fatal error for a package document that cannot be read
// or is not well-formed XML. No partial output accompanies it.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("failed to parse package document %q (line %d): %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("failed to parse package document %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is a fatal package document error.
func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}
