package book

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// inspectImage records the display dimensions of a raster image, honoring
// EXIF orientation. SVG is vector data and has no pixel size.
func inspectImage(res *Resource, data []byte) error {
	if strings.EqualFold(res.MediaType, "image/svg+xml") || strings.HasSuffix(strings.ToLower(res.SourcePath), ".svg") {
		return nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("image decode failed: %w", err)
	}
	b := img.Bounds()
	res.Width = b.Dx()
	res.Height = b.Dy()
	return nil
}
