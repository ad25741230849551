package preview

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// boxKernel is a 3x3 simple box blur, every tap 1/9.
var boxKernel = [9]float64{
	1.0 / 9, 1.0 / 9, 1.0 / 9,
	1.0 / 9, 1.0 / 9, 1.0 / 9,
	1.0 / 9, 1.0 / 9, 1.0 / 9,
}

// Blur applies the box kernel to an opaque raster. The result has the same
// dimensions and is opaque.
func Blur(src *image.RGBA, edge EdgeMode) *image.RGBA {
	if edge == EdgeClamp {
		return clampBlur(src)
	}
	return zeroBlur(src)
}

func zeroBlur(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl float64
			for ky := -1; ky <= 1; ky++ {
				sy := y + ky
				if sy < 0 || sy >= h {
					continue
				}
				for kx := -1; kx <= 1; kx++ {
					sx := x + kx
					if sx < 0 || sx >= w {
						continue
					}
					tap := boxKernel[(ky+1)*3+kx+1]
					i := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
					r += tap * float64(src.Pix[i])
					g += tap * float64(src.Pix[i+1])
					bl += tap * float64(src.Pix[i+2])
				}
			}

			o := dst.PixOffset(x, y)
			dst.Pix[o] = toByte(r)
			dst.Pix[o+1] = toByte(g)
			dst.Pix[o+2] = toByte(bl)
			dst.Pix[o+3] = 0xff
		}
	}
	return dst
}

func clampBlur(src *image.RGBA) *image.RGBA {
	blurred := imaging.Convolve3x3(src, boxKernel, nil)
	dst := image.NewRGBA(image.Rect(0, 0, blurred.Bounds().Dx(), blurred.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), blurred, blurred.Bounds().Min, draw.Src)
	return dst
}

func toByte(v float64) uint8 {
	v += 0.5
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
