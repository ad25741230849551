package preview

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		maxW, maxH int
		wantW      int
		wantH      int
		wantErr    error
	}{
		{name: "wide source limited by width", srcW: 2000, srcH: 1000, maxW: 400, maxH: 400, wantW: 400, wantH: 200},
		{name: "width then height", srcW: 2000, srcH: 1000, maxW: 400, maxH: 100, wantW: 200, wantH: 100},
		{name: "landscape 4:3", srcW: 800, srcH: 600, maxW: 400, maxH: 400, wantW: 400, wantH: 300},
		{name: "fits already", srcW: 100, srcH: 100, maxW: 100, maxH: 100, wantW: 100, wantH: 100},
		{name: "unbounded axes", srcW: 640, srcH: 480, wantW: 640, wantH: 480},
		{name: "height only", srcW: 300, srcH: 900, maxH: 300, wantW: 100, wantH: 300},
		{name: "collapses to zero height", srcW: 10000, srcH: 1, maxW: 100, maxH: 100, wantErr: ErrConfig},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h, err := TargetSize(tc.srcW, tc.srcH, tc.maxW, tc.maxH, nil)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestTargetSizeStaysWithinBoundsAndKeepsAspect(t *testing.T) {
	sizes := []int{37, 100, 333, 640, 1024, 1999, 4000}
	maxima := []int{50, 128, 400, 1000}

	for _, sw := range sizes {
		for _, sh := range sizes {
			for _, mw := range maxima {
				for _, mh := range maxima {
					w, h, err := TargetSize(sw, sh, mw, mh, nil)
					if err != nil {
						require.ErrorIs(t, err, ErrConfig)
						continue
					}

					assert.LessOrEqual(t, w, mw)
					assert.LessOrEqual(t, h, mh)
					if sw <= mw && sh <= mh {
						assert.Equal(t, sw, w)
						assert.Equal(t, sh, h)
					}

					// Truncation loses under a pixel on the axis that was
					// derived from the other one.
					hErr := math.Abs(float64(h) - float64(w)*float64(sh)/float64(sw))
					wErr := math.Abs(float64(w) - float64(h)*float64(sw)/float64(sh))
					assert.LessOrEqualf(t, math.Min(hErr, wErr), 1.001,
						"source %dx%d max %dx%d target %dx%d", sw, sh, mw, mh, w, h)
				}
			}
		}
	}
}

func TestTargetSizeTrace(t *testing.T) {
	var trace bytes.Buffer
	_, _, err := TargetSize(2000, 1000, 400, 100, &trace)
	require.NoError(t, err)

	assert.Equal(t,
		"original size: 2000,1000\n"+
			"x scale factor: 0.2\n"+
			"new size: 400,200\n"+
			"y scale factor: 0.5\n"+
			"created thumbnail size: 200,100\n",
		trace.String())
}

func TestTargetSizeTraceWithoutScaling(t *testing.T) {
	var trace bytes.Buffer
	_, _, err := TargetSize(100, 50, 400, 400, &trace)
	require.NoError(t, err)

	assert.Equal(t, "original size: 100,50\ncreated thumbnail size: 100,50\n", trace.String())
}
