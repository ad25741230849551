package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Compose draws img into the top targetW x targetH of a black opaque canvas
// and the brand strip below it. The strip lands in a drawHeight tall
// rectangle at y=targetH; anything outside the canvas is clipped. A nil
// brand or a zero brandHeight leaves the canvas without a strip.
func Compose(ctx context.Context, img image.Image, targetW, targetH, brandHeight int, brand image.Image, drawHeight int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBounds(targetW, targetH+brandHeight); err != nil {
		return nil, fmt.Errorf("%w: allocate canvas: %v", ErrScale, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, targetW, targetH+brandHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	drawInto(canvas, image.Rect(0, 0, targetW, targetH), img)

	if brandHeight > 0 && brand != nil && drawHeight > 0 {
		drawInto(canvas, image.Rect(0, targetH, targetW, targetH+drawHeight), brand)
	}
	return canvas, nil
}

func drawInto(dst draw.Image, r image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == r.Dx() && sb.Dy() == r.Dy() {
		draw.Draw(dst, r, src, sb.Min, draw.Over)
		return
	}
	draw.ApproxBiLinear.Scale(dst, r, src, sb, draw.Over, nil)
}
