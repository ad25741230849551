//go:build govips && cgo

package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

// decodeSource loads the source through libvips and hands the first page to
// the Go pipeline as a lossless PNG, so alpha survives the round trip.
func decodeSource(data []byte) (image.Image, error) {
	if err := Startup(); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	if err := validateBounds(ref.Width(), ref.PageHeight()); err != nil {
		return nil, err
	}

	params := vips.NewPngExportParams()
	params.Compression = 1
	encoded, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("export intermediate png: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("read intermediate png: %w", err)
	}
	return img, nil
}
