package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Preview tunable keys, as they appear in the repository configuration.
const (
	KeyMaxWidth       = "webui.preview.maxwidth"
	KeyMaxHeight      = "webui.preview.maxheight"
	KeyBlurring       = "webui.preview.blurring"
	KeyHQScaling      = "webui.preview.hqscaling"
	KeyBrandHeight    = "webui.preview.brand.height"
	KeyBrandFont      = "webui.preview.brand.font"
	KeyBrandFontPoint = "webui.preview.brand.fontpoint"
	KeyBrandName      = "webui.preview.brand"
	KeyBrandAbbrev    = "webui.preview.brand.abbrev"
	KeyBrandFit       = "webui.preview.brand.fit"
	KeyBlurEdge       = "webui.preview.blur.edge"
	KeyQuality        = "webui.preview.quality"

	previewEnvPrefix = "PREVIEW"
	// keyDelimiter keeps dotted keys flat; "webui.preview.brand" is both a
	// value and the prefix of other keys.
	keyDelimiter = "::"
)

// LoadPreview reads the preview tunables from an optional "key = value" file,
// letting PREVIEW_WEBUI_PREVIEW_* environment variables override each key.
// Absent keys keep the defaults from preview.DefaultConfig.
func LoadPreview(path string) (preview.Config, error) {
	return LoadPreviewWithFlags(path, nil)
}

// PreviewFlags maps command line flag names to the keys they override.
var PreviewFlags = map[string]string{
	"max-width":    KeyMaxWidth,
	"max-height":   KeyMaxHeight,
	"blur":         KeyBlurring,
	"hq":           KeyHQScaling,
	"brand-height": KeyBrandHeight,
	"brand-font":   KeyBrandFont,
	"brand-point":  KeyBrandFontPoint,
	"brand-name":   KeyBrandName,
	"brand-abbrev": KeyBrandAbbrev,
	"brand-fit":    KeyBrandFit,
	"blur-edge":    KeyBlurEdge,
	"quality":      KeyQuality,
}

// LoadPreviewWithFlags is LoadPreview with flags from fs taking precedence
// over the file and the environment when they were set explicitly.
func LoadPreviewWithFlags(path string, fs *pflag.FlagSet) (preview.Config, error) {
	v := newPreviewViper()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		// dotenv accepts the "webui.preview.x = y" lines of a properties file.
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return preview.Config{}, fmt.Errorf("read preview config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range PreviewFlags {
			flag := fs.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return preview.Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	return previewFromViper(v)
}

func newPreviewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetEnvPrefix(previewEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := preview.DefaultConfig()
	v.SetDefault(KeyMaxWidth, defaults.MaxWidth)
	v.SetDefault(KeyMaxHeight, defaults.MaxHeight)
	v.SetDefault(KeyBlurring, defaults.Blurring)
	v.SetDefault(KeyHQScaling, defaults.HQScaling)
	v.SetDefault(KeyBrandHeight, defaults.BrandHeight)
	v.SetDefault(KeyBrandFont, defaults.BrandFont)
	v.SetDefault(KeyBrandFontPoint, defaults.BrandFontPoint)
	v.SetDefault(KeyBrandName, defaults.BrandName)
	v.SetDefault(KeyBrandAbbrev, defaults.BrandAbbrev)
	v.SetDefault(KeyBrandFit, defaults.FitBrandStrip)
	v.SetDefault(KeyBlurEdge, defaults.BlurEdge.String())
	v.SetDefault(KeyQuality, defaults.Quality)
	return v
}

func previewFromViper(v *viper.Viper) (preview.Config, error) {
	var errs []error
	intKey := func(key string) int {
		n, err := cast.ToIntE(strings.TrimSpace(cast.ToString(v.Get(key))))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	boolKey := func(key string) bool {
		b, err := cast.ToBoolE(strings.TrimSpace(cast.ToString(v.Get(key))))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := preview.Config{
		MaxWidth:       intKey(KeyMaxWidth),
		MaxHeight:      intKey(KeyMaxHeight),
		Blurring:       boolKey(KeyBlurring),
		HQScaling:      boolKey(KeyHQScaling),
		BrandHeight:    intKey(KeyBrandHeight),
		BrandFont:      strings.TrimSpace(v.GetString(KeyBrandFont)),
		BrandFontPoint: intKey(KeyBrandFontPoint),
		BrandName:      strings.TrimSpace(v.GetString(KeyBrandName)),
		BrandAbbrev:    strings.TrimSpace(v.GetString(KeyBrandAbbrev)),
		FitBrandStrip:  boolKey(KeyBrandFit),
		Quality:        intKey(KeyQuality),
	}

	edge, err := preview.ParseEdgeMode(v.GetString(KeyBlurEdge))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.BlurEdge = edge

	if len(errs) > 0 {
		return preview.Config{}, fmt.Errorf("%w: %w", preview.ErrConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return preview.Config{}, err
	}
	return cfg, nil
}
