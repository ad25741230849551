// Command preview renders the branded preview of a single image file.
//
//	preview [flags] <input> [output]
//
// An input of "-" reads stdin. The output defaults to the input name with
// the preview suffix; "-" writes the JPEG to stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dunamismax/previewflow/internal/config"
	"github.com/dunamismax/previewflow/internal/logging"
	"github.com/dunamismax/previewflow/internal/pipeline"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := pflag.NewFlagSet("preview", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", os.Getenv("PREVIEW_CONFIG_FILE"), "properties file with webui.preview.* keys")
	identifier := fs.StringP("identifier", "i", "", "persistent identifier printed in the brand strip")
	verbose := fs.BoolP("verbose", "v", false, "print the sizing trace")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")

	fs.Int("max-width", 0, "maximum preview width, 0 for unbounded")
	fs.Int("max-height", 0, "maximum preview height, 0 for unbounded")
	fs.Bool("blur", false, "blur before scaling")
	fs.Bool("hq", false, "scale in halving steps")
	fs.Int("brand-height", 0, "brand strip height, 0 for none")
	fs.String("brand-font", preview.DefaultBrandFont, "brand font family or .ttf/.otf path")
	fs.Int("brand-point", preview.DefaultBrandFontPoint, "brand font size in points")
	fs.String("brand-name", "", "brand text for wide previews")
	fs.String("brand-abbrev", "", "brand text for medium previews")
	fs.Bool("brand-fit", false, "draw the brand raster at brand-height")
	fs.String("blur-edge", "zero", "blur edge handling: zero or clamp")
	fs.Int("quality", 0, "JPEG quality 1..100, 0 for the encoder default")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := logging.NewConsole("preview", *logLevel)

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "usage: preview [flags] <input> [output]")
		fs.PrintDefaults()
		return 2
	}
	input := fs.Arg(0)
	output := defaultOutput(input)
	if fs.NArg() == 2 {
		output = fs.Arg(1)
	}

	cfg, err := config.LoadPreviewWithFlags(*configFile, fs)
	if err != nil {
		logger.Error().Err(err).Msg("invalid preview config")
		return 2
	}

	if err := preview.Startup(); err != nil {
		logger.Error().Err(err).Msg("image runtime startup failed")
		return 1
	}
	defer preview.Shutdown()

	src, err := readInput(input, stdin)
	if err != nil {
		logger.Error().Err(err).Str("input", input).Msg("read failed")
		return 1
	}

	var trace io.Writer
	if *verbose {
		trace = stdout
		if output == "-" {
			trace = os.Stderr
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := pipeline.NewRenderer().Render(ctx, cfg, src, *identifier, trace)
	if err != nil {
		logger.Error().Err(err).Str("input", input).Msg("preview failed")
		return 1
	}

	if err := writeOutput(output, stdout, res.Data); err != nil {
		logger.Error().Err(err).Str("output", output).Msg("write failed")
		return 1
	}

	logger.Debug().
		Str("output", output).
		Int("width", res.Width).
		Int("height", res.Height).
		Int("bytes", len(res.Data)).
		Msg("preview written")
	return 0
}

func defaultOutput(input string) string {
	if input == "-" {
		return "-"
	}
	return preview.FilteredName(input)
}

func readInput(input string, stdin io.Reader) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(filepath.Clean(input))
}

func writeOutput(output string, stdout io.Writer, data []byte) error {
	if output == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0o644)
}
