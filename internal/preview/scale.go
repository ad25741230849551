package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// PlanSteps returns the sizes Scale draws through, ending at the target.
//
// The higher quality plan halves each axis that is still larger than its
// target, never undershooting it. Once no axis can shrink further the plan
// jumps straight to the target, so upscaling degrades to a single pass.
func PlanSteps(srcW, srcH, targetW, targetH int, higherQuality bool) []image.Point {
	target := image.Pt(targetW, targetH)
	if !higherQuality {
		return []image.Point{target}
	}

	w, h := srcW, srcH
	var steps []image.Point
	for w != targetW || h != targetH {
		nw, nh := w, h
		if nw > targetW {
			nw = max(nw/2, targetW)
		}
		if nh > targetH {
			nh = max(nh/2, targetH)
		}
		if nw == w && nh == h {
			nw, nh = targetW, targetH
		}
		w, h = nw, nh
		steps = append(steps, image.Pt(w, h))
	}

	if len(steps) == 0 {
		steps = append(steps, target)
	}
	return steps
}

// Scale resizes src to targetW x targetH over a white background. Opaque
// sources produce *image.RGBA, all others *image.NRGBA.
func Scale(ctx context.Context, src image.Image, targetW, targetH int, interp Interpolation, higherQuality bool) (image.Image, error) {
	if targetW < 1 || targetH < 1 {
		return nil, fmt.Errorf("%w: invalid target size %dx%d", ErrScale, targetW, targetH)
	}

	kind := KindOf(src)
	b := src.Bounds()
	scaler := interp.interpolator()

	current := src
	for _, step := range PlanSteps(b.Dx(), b.Dy(), targetW, targetH, higherQuality) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dst, err := newRaster(kind, step.X, step.Y)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScale, err)
		}
		fill(dst, color.White)
		scaler.Scale(dst, dst.Bounds(), current, current.Bounds(), draw.Over, nil)
		current = dst
	}
	return current, nil
}
