package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// MIMEType is the media type of encoded frames.
const MIMEType = "image/jpeg"

// Encode scales img to cfg.Width x cfg.Height and encodes it as JPEG at
// cfg.Quality. The image is stretched to the target size.
func Encode(img image.Image, cfg Config) ([]byte, error) {
	if img == nil {
		return nil, ErrNoFrame
	}
	dst := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: cfg.Quality}); err != nil {
		return nil, fmt.Errorf("camera: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
