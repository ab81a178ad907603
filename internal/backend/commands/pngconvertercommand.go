package commands

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/jo-hoe/shinguard/internal/backend/commandstructure"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// svgSniffLength bounds how much of an upload is inspected for an <svg> root.
const svgSniffLength = 4096

func hasCorrectPngSignature(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// PngConverterCommand normalises uploads and frame templates to PNG
type PngConverterCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
	svgTransparent    bool
}

// NewPngConverterCommand creates a new PNG converter command
func NewPngConverterCommand(params map[string]any) (commandstructure.Command, error) {
	// fallback size applies to SVGs without width and height attributes
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 0)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("svg fallback size must not be negative, got %dx%d", w, h)
	}

	return NewPngConverterCommandWithOptions(w, h, commandstructure.GetBoolParam(params, "svgTransparent", false)), nil
}

// NewPngConverterCommandWithOptions creates a converter that renders SVGs without
// an explicit size at w x h, optionally keeping the SVG background transparent.
func NewPngConverterCommandWithOptions(w, h int, transparent bool) *PngConverterCommand {
	return &PngConverterCommand{
		name:              "PngConverterCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
		svgTransparent:    transparent,
	}
}

// Name returns the command name
func (c *PngConverterCommand) Name() string {
	return c.name
}

// Execute returns PNG input unchanged, rasterises SVG and re-encodes every
// other decodable raster format.
func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if hasCorrectPngSignature(imageData) {
		slog.Debug("PngConverterCommand: input already PNG", "input_size_bytes", len(imageData))
		return imageData, nil
	}

	if isSVGData(imageData) {
		return c.convertSVG(imageData)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		slog.Error("PngConverterCommand: failed to decode image", "error", err)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	out, err := encodePNG(img)
	if err != nil {
		slog.Error("PngConverterCommand: failed to encode image to PNG", "error", err)
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	slog.Debug("PngConverterCommand: raster converted",
		"source_format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
		"output_size_bytes", len(out))
	return out, nil
}

func (c *PngConverterCommand) convertSVG(imageData []byte) ([]byte, error) {
	w, h, explicit := svgSize(imageData)
	if !explicit {
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("SVG fallback size not set; cannot render SVG without explicit size")
	}

	out, err := renderSVGToPNG(imageData, w, h, c.background())
	if err != nil {
		slog.Error("PngConverterCommand: failed to render SVG", "width", w, "height", h, "error", err)
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	slog.Debug("PngConverterCommand: SVG rendered",
		"width", w,
		"height", h,
		"explicit_size", explicit,
		"output_size_bytes", len(out))
	return out, nil
}

func (c *PngConverterCommand) background() color.Color {
	if c.svgTransparent {
		return color.Transparent
	}
	return color.White
}

func init() {
	// Register the command in the default registry
	if err := commandstructure.DefaultRegistry.Register("PngConverterCommand", NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConverterCommand: %v", err))
	}
}

func isSVGData(data []byte) bool {
	head := data[:min(len(data), svgSniffLength)]
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// svgSize reads the width and height attributes of the root svg element.
// viewBox alone is not a pixel size.
func svgSize(data []byte) (int, int, bool) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err != nil {
			return 0, 0, false
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if !strings.EqualFold(start.Name.Local, "svg") {
			return 0, 0, false
		}
		var w, h int
		var wOk, hOk bool
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				w, wOk = parseLength(attr.Value)
			case "height":
				h, hOk = parseLength(attr.Value)
			}
		}
		return w, h, wOk && hOk
	}
}

// parseLength accepts unitless and px lengths.
func parseLength(value string) (int, bool) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 1 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// renderSVGToPNG renders an SVG byte slice into a PNG with the given target dimensions.
func renderSVGToPNG(svgData []byte, targetW, targetH int, bg color.Color) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(targetW, targetH, scanner), 1.0)

	return encodePNG(dst)
}
