package brand

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/dunamismax/previewflow/internal/preview"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultXOffset = 5

	// Strips at least this wide carry the full brand name, narrower ones
	// down to shortTextWidth fall back to the abbreviation, anything
	// narrower only carries the identifier.
	fullTextWidth  = 350
	shortTextWidth = 190
)

type location int

const (
	bottomLeft location = iota
	bottomRight
)

type label struct {
	at   location
	text string
}

// Renderer draws white text boxes on a black strip: the brand bottom left
// and the identifier bottom right.
type Renderer struct {
	xOffset int
	fonts   FontLoader
}

type Option func(*Renderer)

func WithXOffset(px int) Option {
	return func(r *Renderer) {
		if px >= 0 {
			r.xOffset = px
		}
	}
}

func WithFontLoader(loader FontLoader) Option {
	return func(r *Renderer) {
		if loader != nil {
			r.fonts = loader
		}
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		xOffset: DefaultXOffset,
		fonts:   NewFontCache(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ preview.BrandRenderer = (*Renderer)(nil)

func (r *Renderer) Create(width, height int, spec preview.FontSpec, name, abbrev, identifier string) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("brand strip size must be positive, got %dx%d", width, height)
	}
	if err := preview.CheckRasterSize(width, height); err != nil {
		return nil, fmt.Errorf("brand strip: %w", err)
	}

	strip := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(strip, strip.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	labels := labelsFor(width, name, abbrev, identifier)
	if len(labels) == 0 {
		return strip, nil
	}

	face, err := r.fonts.Face(spec.Family, spec.Point)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	for _, l := range labels {
		r.drawLabel(strip, face, l)
	}
	return strip, nil
}

func labelsFor(width int, name, abbrev, identifier string) []label {
	var labels []label
	switch {
	case width >= fullTextWidth:
		labels = append(labels, label{at: bottomLeft, text: name})
	case width >= shortTextWidth:
		labels = append(labels, label{at: bottomLeft, text: abbrev})
	}
	labels = append(labels, label{at: bottomRight, text: identifier})

	out := labels[:0]
	for _, l := range labels {
		if l.text != "" {
			out = append(out, l)
		}
	}
	return out
}

func (r *Renderer) drawLabel(dst *image.RGBA, face font.Face, l label) {
	bounds := dst.Bounds()
	metrics := face.Metrics()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	boxW := d.MeasureString(l.text).Ceil() + r.xOffset*2 + 1
	boxH := metrics.Height.Ceil()

	boxX := bounds.Min.X
	if l.at == bottomRight {
		boxX = bounds.Max.X - boxW
	}
	boxY := bounds.Max.Y - boxH

	box := image.Rect(boxX, boxY, boxX+boxW, boxY+boxH)
	draw.Draw(dst, box, image.NewUniform(color.Black), image.Point{}, draw.Src)

	d.Dot = fixed.P(boxX+r.xOffset, boxY+metrics.Ascent.Ceil())
	d.DrawString(l.text)
}
