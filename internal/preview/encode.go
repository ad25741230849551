package preview

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// Encode writes img as a baseline JPEG. A zero quality keeps the encoder's
// default.
func Encode(w io.Writer, img image.Image, quality int) error {
	var opts *jpeg.Options
	if quality > 0 && quality <= 100 {
		opts = &jpeg.Options{Quality: quality}
	}
	if err := jpeg.Encode(w, img, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return nil
}
