package commands

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/shinguard/internal/backend/commandstructure"

	xdraw "golang.org/x/image/draw"
)

// PixelScaleParams represents typed parameters for pixel scale command
type PixelScaleParams struct {
	Height *int // Optional: if nil, will be calculated from width
	Width  *int // Optional: if nil, will be calculated from height
}

// NewPixelScaleParamsFromMap creates PixelScaleParams from a generic map
func NewPixelScaleParamsFromMap(params map[string]any) (*PixelScaleParams, error) {
	// At least one dimension must be specified
	_, hasHeight := params["height"]
	_, hasWidth := params["width"]

	if !hasHeight && !hasWidth {
		return nil, fmt.Errorf("at least one of 'height' or 'width' must be specified")
	}

	result := &PixelScaleParams{}

	// Process height if provided
	if hasHeight {
		height := commandstructure.GetIntParam(params, "height", 0)
		if height <= 0 {
			return nil, fmt.Errorf("height must be positive, got %d", height)
		}
		result.Height = &height
	}

	// Process width if provided
	if hasWidth {
		width := commandstructure.GetIntParam(params, "width", 0)
		if width <= 0 {
			return nil, fmt.Errorf("width must be positive, got %d", width)
		}
		result.Width = &width
	}

	return result, nil
}

// PixelScaleCommand scales an image to a pixel size; a missing dimension is
// derived from the aspect ratio. Used for gallery thumbnails.
type PixelScaleCommand struct {
	name   string
	params *PixelScaleParams
}

// NewPixelScaleCommand creates a new pixel scale command from configuration parameters
func NewPixelScaleCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewPixelScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &PixelScaleCommand{
		name:   "PixelScaleCommand",
		params: typedParams,
	}, nil
}

// NewThumbnailCommand creates a pixel scale command with a fixed width
func NewThumbnailCommand(width int) (*PixelScaleCommand, error) {
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	return &PixelScaleCommand{
		name:   "PixelScaleCommand",
		params: &PixelScaleParams{Width: &width},
	}, nil
}

// Name returns the command name
func (c *PixelScaleCommand) Name() string {
	return c.name
}

// Execute scales the image to target dimensions while preserving aspect ratio
func (c *PixelScaleCommand) Execute(imageData []byte) ([]byte, error) {
	slog.Debug("PixelScaleCommand: decoding image",
		"input_size_bytes", len(imageData))

	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("PixelScaleCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()
	if originalWidth == 0 || originalHeight == 0 {
		return nil, fmt.Errorf("cannot scale empty image")
	}
	aspectRatio := float64(originalWidth) / float64(originalHeight)

	var targetWidth, targetHeight int
	switch {
	case c.params.Width != nil && c.params.Height != nil:
		targetWidth = *c.params.Width
		targetHeight = *c.params.Height
	case c.params.Width != nil:
		targetWidth = *c.params.Width
		targetHeight = int(float64(targetWidth) / aspectRatio)
	default:
		targetHeight = *c.params.Height
		targetWidth = int(float64(targetHeight) * aspectRatio)
	}
	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	slog.Debug("PixelScaleCommand: scaling image",
		"original_width", originalWidth,
		"original_height", originalHeight,
		"target_width", targetWidth,
		"target_height", targetHeight,
		"aspect_ratio", aspectRatio)

	targetImg := resample(img, targetWidth, targetHeight, xdraw.ApproxBiLinear)

	slog.Debug("PixelScaleCommand: encoding scaled image")

	out, err := encodePNG(targetImg)
	if err != nil {
		slog.Error("PixelScaleCommand: failed to encode scaled image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}

	slog.Debug("PixelScaleCommand: scaling complete",
		"output_size_bytes", len(out))

	return out, nil
}

func init() {
	// Register the command in the default registry
	if err := commandstructure.DefaultRegistry.Register("PixelScaleCommand", NewPixelScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register PixelScaleCommand: %v", err))
	}
}
