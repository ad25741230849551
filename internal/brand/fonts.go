package brand

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontLoader resolves a family name or font file path into a face of the
// requested point size. Callers close the face when done.
type FontLoader interface {
	Face(family string, point int) (font.Face, error)
}

// FontCache parses each font once and hands out fresh faces, since a face
// must not be shared between goroutines.
type FontCache struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

func NewFontCache() *FontCache {
	return &FontCache{fonts: make(map[string]*opentype.Font)}
}

func (c *FontCache) Face(family string, point int) (font.Face, error) {
	if point <= 0 {
		return nil, fmt.Errorf("font point size must be positive, got %d", point)
	}

	f, err := c.font(family)
	if err != nil {
		return nil, err
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(point),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face %q: %w", family, err)
	}
	return face, nil
}

func (c *FontCache) font(family string) (*opentype.Font, error) {
	key := strings.TrimSpace(family)

	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.fonts[key]; ok {
		return f, nil
	}

	data, err := fontData(key)
	if err != nil {
		return nil, err
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %q: %w", family, err)
	}
	c.fonts[key] = f
	return f, nil
}

// fontData maps a family name onto the Go font family. Names that point at
// a TrueType or OpenType file on disk load that file instead.
func fontData(family string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(family)) {
	case ".ttf", ".otf":
		data, err := os.ReadFile(family)
		if err != nil {
			return nil, fmt.Errorf("read font file: %w", err)
		}
		return data, nil
	}

	name := strings.ToLower(family)
	bold := strings.Contains(name, "bold")
	italic := strings.Contains(name, "italic") || strings.Contains(name, "oblique")
	mono := strings.Contains(name, "mono") || strings.Contains(name, "courier")

	switch {
	case mono && bold:
		return gomonobold.TTF, nil
	case mono:
		return gomono.TTF, nil
	case bold && italic:
		return gobolditalic.TTF, nil
	case bold:
		return gobold.TTF, nil
	case italic:
		return goitalic.TTF, nil
	default:
		return goregular.TTF, nil
	}
}
