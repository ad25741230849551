package preview

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSteps(t *testing.T) {
	tests := []struct {
		name          string
		srcW, srcH    int
		targetW       int
		targetH       int
		higherQuality bool
		want          []image.Point
	}{
		{
			name: "single pass",
			srcW: 2000, srcH: 1000, targetW: 400, targetH: 200,
			want: []image.Point{{400, 200}},
		},
		{
			name: "halving never undershoots",
			srcW: 2000, srcH: 1000, targetW: 400, targetH: 200, higherQuality: true,
			want: []image.Point{{1000, 500}, {500, 250}, {400, 200}},
		},
		{
			name: "axes finish at different steps",
			srcW: 800, srcH: 600, targetW: 100, targetH: 300, higherQuality: true,
			want: []image.Point{{400, 300}, {200, 300}, {100, 300}},
		},
		{
			name: "same size draws once",
			srcW: 64, srcH: 64, targetW: 64, targetH: 64, higherQuality: true,
			want: []image.Point{{64, 64}},
		},
		{
			name: "upscale falls back to single pass",
			srcW: 50, srcH: 40, targetW: 200, targetH: 160, higherQuality: true,
			want: []image.Point{{200, 160}},
		},
		{
			name: "mixed down and up scale",
			srcW: 400, srcH: 40, targetW: 100, targetH: 80, higherQuality: true,
			want: []image.Point{{200, 40}, {100, 40}, {100, 80}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PlanSteps(tc.srcW, tc.srcH, tc.targetW, tc.targetH, tc.higherQuality)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestScaleOutputKind(t *testing.T) {
	opaque := gradientRGBA(120, 80)

	out, err := Scale(context.Background(), opaque, 30, 20, Bicubic, true)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), out.Bounds())
	assert.IsType(t, &image.RGBA{}, out)
	assert.Equal(t, KindOpaqueRGB, KindOf(out))

	translucent := image.NewNRGBA(image.Rect(0, 0, 120, 80))
	out, err = Scale(context.Background(), translucent, 30, 20, Bilinear, false)
	require.NoError(t, err)
	assert.IsType(t, &image.NRGBA{}, out)
}

func TestScaleFlattensTransparencyToWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 64))

	out, err := Scale(context.Background(), src, 16, 16, NearestNeighbor, false)
	require.NoError(t, err)

	r, g, b := rgb8(out.At(8, 8))
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestScaleUpscaleInHighQualityTerminates(t *testing.T) {
	src := solidRGBA(10, 10, color.RGBA{R: 200, A: 255})

	out, err := Scale(context.Background(), src, 40, 30, Bicubic, true)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), out.Bounds())
}

func TestScaleRejectsInvalidTarget(t *testing.T) {
	_, err := Scale(context.Background(), gradientRGBA(4, 4), 0, 4, Bicubic, false)
	require.ErrorIs(t, err, ErrScale)
}

func TestScaleRejectsOversizedRaster(t *testing.T) {
	_, err := Scale(context.Background(), gradientRGBA(4, 4), maxRasterDimension+1, 4, Bicubic, false)
	require.ErrorIs(t, err, ErrScale)
}

func TestScaleHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scale(ctx, gradientRGBA(64, 64), 8, 8, Bicubic, true)
	require.ErrorIs(t, err, context.Canceled)
}
