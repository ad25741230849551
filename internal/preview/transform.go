package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
)

// BrandRenderer produces the raster for the brand strip. It must return a
// width x height raster for well-formed input.
type BrandRenderer interface {
	Create(width, height int, font FontSpec, name, abbrev, identifier string) (image.Image, error)
}

// BrandRendererFunc adapts a plain function to BrandRenderer.
type BrandRendererFunc func(width, height int, font FontSpec, name, abbrev, identifier string) (image.Image, error)

func (f BrandRendererFunc) Create(width, height int, font FontSpec, name, abbrev, identifier string) (image.Image, error) {
	return f(width, height, font, name, abbrev, identifier)
}

// Result describes one rendered preview.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// Transformer turns source images into branded JPEG previews. It holds no
// per-call state and is safe for concurrent use when its BrandRenderer is.
type Transformer struct {
	brand BrandRenderer
}

func NewTransformer(brand BrandRenderer) *Transformer {
	return &Transformer{brand: brand}
}

// Transform renders the preview of src and returns the JPEG bytes.
func (t *Transformer) Transform(ctx context.Context, cfg Config, src []byte, identifier string, verbose io.Writer) ([]byte, error) {
	res, err := t.Render(ctx, cfg, src, identifier, verbose)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Render is Transform with the output dimensions reported alongside the bytes.
func (t *Transformer) Render(ctx context.Context, cfg Config, src []byte, identifier string, verbose io.Writer) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	img, err := Decode(ctx, src)
	if err != nil {
		return Result{}, err
	}
	sb := img.Bounds()

	tw, th, err := TargetSize(sb.Dx(), sb.Dy(), cfg.MaxWidth, cfg.MaxHeight, verbose)
	if err != nil {
		return Result{}, err
	}
	// BrandHeight is capped by Validate, so the sum cannot overflow.
	if err := validateBounds(tw, th+cfg.BrandHeight); err != nil {
		return Result{}, fmt.Errorf("%w: preview canvas: %v", ErrConfig, err)
	}

	if cfg.Blurring {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		img = Blur(Normalize(img), cfg.BlurEdge)
	}

	if cfg.HQScaling {
		img, err = Scale(ctx, img, tw, th, Bicubic, true)
		if err != nil {
			return Result{}, err
		}
	}

	var strip image.Image
	if cfg.BrandHeight > 0 {
		strip, err = t.renderBrand(tw, cfg, identifier)
		if err != nil {
			return Result{}, err
		}
	}

	canvas, err := Compose(ctx, img, tw, th, cfg.BrandHeight, strip, cfg.brandDrawHeight())
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, canvas, cfg.Quality); err != nil {
		return Result{}, err
	}

	return Result{
		Data:         buf.Bytes(),
		Width:        canvas.Bounds().Dx(),
		Height:       canvas.Bounds().Dy(),
		SourceWidth:  sb.Dx(),
		SourceHeight: sb.Dy(),
	}, nil
}

func (t *Transformer) renderBrand(width int, cfg Config, identifier string) (image.Image, error) {
	if t.brand == nil {
		return nil, fmt.Errorf("%w: no brand renderer configured", ErrBrand)
	}

	strip, err := t.brand.Create(width, cfg.BrandHeight, cfg.Font(), cfg.BrandName, cfg.BrandAbbrev, BrandIdentifier(identifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrand, err)
	}
	if strip == nil {
		return nil, fmt.Errorf("%w: renderer returned no raster", ErrBrand)
	}
	return strip, nil
}
