package canvas

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"

	"github.com/jo-hoe/shinguard/internal/backend/commands"
)

//go:embed assets/frame.svg
var defaultFrameSVG []byte

const defaultFrameRenderScale = 3.0

// LoadFrameTemplate reads the template overlay from path, or the built-in
// shin-guard outline when path is empty. SVG templates without explicit size
// are rasterised at the canvas size times renderScale on a transparent
// background so exports at higher multipliers stay sharp.
func LoadFrameTemplate(path string, canvasWidth, canvasHeight int, renderScale float64) (image.Image, error) {
	if canvasWidth <= 0 || canvasHeight <= 0 {
		return nil, ErrInvalidImageSize
	}
	if renderScale <= 0 {
		renderScale = defaultFrameRenderScale
	}

	data := defaultFrameSVG
	source := "embedded"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame template %s: %w", path, err)
		}
		data = raw
		source = path
	}

	w := int(math.Round(float64(canvasWidth) * renderScale))
	h := int(math.Round(float64(canvasHeight) * renderScale))
	converter := commands.NewPngConverterCommandWithOptions(w, h, true)
	pngData, err := converter.Execute(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame template: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame template: %w", err)
	}
	slog.Info("Canvas: frame template loaded",
		"source", source,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return img, nil
}
