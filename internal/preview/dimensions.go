package preview

import (
	"fmt"
	"io"
	"strconv"
)

// TargetSize fits srcW x srcH inside maxW x maxH. The x axis is reduced
// first and the y axis is then checked against the already reduced size;
// both axes shrink by the same factor each time. Arithmetic is float32 and
// the result is truncated, matching previews generated so far.
//
// A zero max leaves that axis unbounded. Progress lines go to trace when it
// is non-nil.
func TargetSize(srcW, srcH, maxW, maxH int, trace io.Writer) (int, int, error) {
	xsize := float32(srcW)
	ysize := float32(srcH)

	tracef(trace, "original size: %d,%d", srcW, srcH)

	if maxW > 0 && xsize > float32(maxW) {
		scale := float32(maxW) / xsize
		tracef(trace, "x scale factor: %s", formatFloat(scale))

		xsize *= scale
		ysize *= scale
		tracef(trace, "new size: %s,%s", formatFloat(xsize), formatFloat(ysize))
	}

	if maxH > 0 && ysize > float32(maxH) {
		scale := float32(maxH) / ysize
		tracef(trace, "y scale factor: %s", formatFloat(scale))

		xsize *= scale
		ysize *= scale
	}

	tracef(trace, "created thumbnail size: %s,%s", formatFloat(xsize), formatFloat(ysize))

	tw, th := int(xsize), int(ysize)
	if tw < 1 || th < 1 {
		return 0, 0, fmt.Errorf("%w: target size %dx%d is not positive (source %dx%d, max %dx%d)",
			ErrConfig, tw, th, srcW, srcH, maxW, maxH)
	}
	return tw, th, nil
}

func tracef(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}
