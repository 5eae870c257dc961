package book

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the content type of a resource. It decides the folder a resource
// is stored under inside the book.
type Kind int

const (
	KindMisc Kind = iota
	KindText
	KindStyle
	KindImage
	KindFont
	KindAudio
	KindVideo
	KindNCX
)

var kindNames = map[Kind]string{
	KindMisc:  "misc",
	KindText:  "text",
	KindStyle: "style",
	KindImage: "image",
	KindFont:  "font",
	KindAudio: "audio",
	KindVideo: "video",
	KindNCX:   "ncx",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the kind by name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText reads a kind written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown resource kind %q", text)
}

// Folder returns the book folder for resources of this kind. The NCX lives
// at the root next to the package document.
func (k Kind) Folder() string {
	switch k {
	case KindText:
		return "Text"
	case KindStyle:
		return "Styles"
	case KindImage:
		return "Images"
	case KindFont:
		return "Fonts"
	case KindAudio:
		return "Audio"
	case KindVideo:
		return "Video"
	case KindNCX:
		return ""
	default:
		return "Misc"
	}
}

var extKinds = map[string]Kind{
	".html":  KindText,
	".htm":   KindText,
	".xhtml": KindText,
	".xml":   KindText,
	".css":   KindStyle,
	".jpg":   KindImage,
	".jpeg":  KindImage,
	".png":   KindImage,
	".gif":   KindImage,
	".svg":   KindImage,
	".tif":   KindImage,
	".tiff":  KindImage,
	".bmp":   KindImage,
	".webp":  KindImage,
	".ttf":   KindFont,
	".otf":   KindFont,
	".woff":  KindFont,
	".woff2": KindFont,
	".mp3":   KindAudio,
	".m4a":   KindAudio,
	".ogg":   KindAudio,
	".mp4":   KindVideo,
	".m4v":   KindVideo,
	".webm":  KindVideo,
	".ncx":   KindNCX,
}

// KindFor classifies a resource by media type, falling back to the file
// extension when the media type is missing or unknown.
func KindFor(mediaType, path string) Kind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case mt == "application/x-dtbncx+xml":
		return KindNCX
	case strings.Contains(mt, "html"), mt == "text/x-oeb1-document":
		return KindText
	case mt == "text/css", mt == "text/x-oeb1-css":
		return KindStyle
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "font/"), strings.Contains(mt, "font-"),
		strings.HasSuffix(mt, "truetype"), strings.HasSuffix(mt, "opentype"), strings.HasSuffix(mt, "-ttf"):
		return KindFont
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	}
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return KindMisc
}
