package pipeline

import (
	"context"
	"io"

	"github.com/dunamismax/previewflow/internal/brand"
	"github.com/dunamismax/previewflow/internal/preview"
)

// Renderer is the transform stage. *preview.Transformer satisfies it.
type Renderer interface {
	Render(ctx context.Context, cfg preview.Config, src []byte, identifier string, verbose io.Writer) (preview.Result, error)
}

// NewRenderer builds the default transform stage with the bundled fonts.
func NewRenderer() *preview.Transformer {
	return preview.NewTransformer(brand.NewRenderer())
}
