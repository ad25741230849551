package preview

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

const (
	// maxRasterDimension and maxRasterPixels bound every raster the pipeline
	// allocates so that a lying header cannot exhaust memory.
	maxRasterDimension       = 32768
	maxRasterPixels    int64 = 64 * 1024 * 1024
)

// PixelKind is the transparency class of a raster.
type PixelKind int

const (
	KindOpaqueRGB PixelKind = iota
	KindPremultipliedARGB
	KindStraightARGB
)

func (k PixelKind) String() string {
	switch k {
	case KindOpaqueRGB:
		return "opaque_rgb"
	case KindPremultipliedARGB:
		return "premultiplied_argb"
	default:
		return "straight_argb"
	}
}

// KindOf reports the transparency class of img. Any image whose pixels are
// all fully opaque is treated as opaque regardless of its color model.
func KindOf(img image.Image) PixelKind {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return KindOpaqueRGB
	}

	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model:
		return KindStraightARGB
	case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
		return KindOpaqueRGB
	}
	if _, ok := img.(*image.Paletted); ok {
		return KindStraightARGB
	}
	return KindPremultipliedARGB
}

// CheckRasterSize returns an error unless a width x height raster fits the
// allocation limits shared by every stage of the pipeline.
func CheckRasterSize(width, height int) error {
	return validateBounds(width, height)
}

func validateBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("raster bounds invalid (%d x %d)", width, height)
	}
	if width > maxRasterDimension || height > maxRasterDimension {
		return fmt.Errorf("raster dimension exceeds limit (%d x %d)", width, height)
	}
	if pixels := int64(width) * int64(height); pixels > maxRasterPixels {
		return fmt.Errorf("raster pixel count %d exceeds limit %d", pixels, maxRasterPixels)
	}
	return nil
}

// newRaster allocates a zero-origin raster of the given kind. Opaque rasters
// are *image.RGBA, everything else keeps straight alpha in *image.NRGBA.
func newRaster(kind PixelKind, width, height int) (draw.Image, error) {
	if err := validateBounds(width, height); err != nil {
		return nil, err
	}
	r := image.Rect(0, 0, width, height)
	if kind == KindOpaqueRGB {
		return image.NewRGBA(r), nil
	}
	return image.NewNRGBA(r), nil
}

func fill(dst draw.Image, c color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}
