package preview

import (
	"fmt"
	"strings"

	"golang.org/x/image/draw"
)

const (
	DefaultBrandFont      = "SansSerif"
	DefaultBrandFontPoint = 12

	// brandDrawHeight is the fixed destination height of the brand strip on
	// the canvas, independent of the configured strip height.
	brandDrawHeight = 20
)

// Interpolation selects the resampling kernel used when a raster is drawn at
// a different size.
type Interpolation int

const (
	NearestNeighbor Interpolation = iota
	Bilinear
	Bicubic
)

func (i Interpolation) String() string {
	switch i {
	case NearestNeighbor:
		return "nearest"
	case Bilinear:
		return "bilinear"
	default:
		return "bicubic"
	}
}

func (i Interpolation) interpolator() draw.Interpolator {
	switch i {
	case NearestNeighbor:
		return draw.NearestNeighbor
	case Bilinear:
		return draw.ApproxBiLinear
	default:
		return draw.CatmullRom
	}
}

// EdgeMode controls how the blur kernel samples outside the raster.
type EdgeMode int

const (
	// EdgeZero treats samples outside the raster as zero on every channel,
	// which darkens a one pixel border.
	EdgeZero EdgeMode = iota
	// EdgeClamp repeats the nearest edge pixel.
	EdgeClamp
)

func (e EdgeMode) String() string {
	if e == EdgeClamp {
		return "clamp"
	}
	return "zero"
}

func ParseEdgeMode(s string) (EdgeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return EdgeZero, nil
	case "clamp":
		return EdgeClamp, nil
	default:
		return EdgeZero, fmt.Errorf("%w: unknown blur edge mode %q", ErrConfig, s)
	}
}

// FontSpec names the font the brand strip is rendered with.
type FontSpec struct {
	Family string
	Point  int
}

// Config is read once at the start of a transform and never consulted again.
// A zero MaxWidth or MaxHeight leaves that axis unbounded.
type Config struct {
	MaxWidth       int
	MaxHeight      int
	Blurring       bool
	HQScaling      bool
	BrandHeight    int
	BrandFont      string
	BrandFontPoint int
	BrandName      string
	BrandAbbrev    string

	// FitBrandStrip draws the brand raster at BrandHeight instead of the
	// fixed 20 pixel destination height existing previews were built with.
	FitBrandStrip bool
	BlurEdge      EdgeMode
	// Quality is the JPEG quality; zero keeps the encoder default.
	Quality int
}

func DefaultConfig() Config {
	return Config{
		BrandFont:      DefaultBrandFont,
		BrandFontPoint: DefaultBrandFontPoint,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxWidth < 0:
		return fmt.Errorf("%w: maxWidth must not be negative, got %d", ErrConfig, c.MaxWidth)
	case c.MaxHeight < 0:
		return fmt.Errorf("%w: maxHeight must not be negative, got %d", ErrConfig, c.MaxHeight)
	case c.BrandHeight < 0:
		return fmt.Errorf("%w: brandHeight must not be negative, got %d", ErrConfig, c.BrandHeight)
	case c.BrandHeight > maxRasterDimension:
		return fmt.Errorf("%w: brandHeight must not exceed %d, got %d", ErrConfig, maxRasterDimension, c.BrandHeight)
	case c.BrandFontPoint < 0:
		return fmt.Errorf("%w: brandFontPoint must not be negative, got %d", ErrConfig, c.BrandFontPoint)
	case c.Quality < 0 || c.Quality > 100:
		return fmt.Errorf("%w: quality must be within 0..100, got %d", ErrConfig, c.Quality)
	case c.BlurEdge != EdgeZero && c.BlurEdge != EdgeClamp:
		return fmt.Errorf("%w: unknown blur edge mode %d", ErrConfig, c.BlurEdge)
	}
	return nil
}

// Font returns the brand font, falling back to the defaults for unset fields.
func (c Config) Font() FontSpec {
	spec := FontSpec{Family: strings.TrimSpace(c.BrandFont), Point: c.BrandFontPoint}
	if spec.Family == "" {
		spec.Family = DefaultBrandFont
	}
	if spec.Point <= 0 {
		spec.Point = DefaultBrandFontPoint
	}
	return spec
}

func (c Config) brandDrawHeight() int {
	if c.FitBrandStrip {
		return c.BrandHeight
	}
	return brandDrawHeight
}
