package preview

import (
	"context"
	"fmt"
	"image"
)

// Decode reads the first frame of an encoded image. JPEG, PNG, GIF, BMP, TIFF
// and WebP are always available; builds with the govips tag also accept
// everything libvips can load.
func Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty source", ErrDecode)
	}

	img, err := decodeSource(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}
