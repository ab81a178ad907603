package commands

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/shinguard/internal/backend/commandstructure"

	xdraw "golang.org/x/image/draw"
)

const defaultMaxEdge = 2048

// MaxSizeParams represents typed parameters for the max size command
type MaxSizeParams struct {
	MaxEdge int
}

// NewMaxSizeParamsFromMap creates MaxSizeParams from a generic map
func NewMaxSizeParamsFromMap(params map[string]any) (*MaxSizeParams, error) {
	maxEdge := commandstructure.GetIntParam(params, "maxEdge", defaultMaxEdge)
	if maxEdge <= 0 {
		return nil, fmt.Errorf("maxEdge must be positive, got %d", maxEdge)
	}
	return &MaxSizeParams{MaxEdge: maxEdge}, nil
}

// MaxSizeCommand downscales images whose longest edge exceeds MaxEdge.
// Smaller images pass through untouched; images are never enlarged.
type MaxSizeCommand struct {
	name   string
	params *MaxSizeParams
}

// NewMaxSizeCommand creates a new max size command from configuration parameters
func NewMaxSizeCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewMaxSizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &MaxSizeCommand{
		name:   "MaxSizeCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *MaxSizeCommand) Name() string {
	return c.name
}

// Execute decodes the PNG input and resamples it with Catmull-Rom when too large
func (c *MaxSizeCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("MaxSizeCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= c.params.MaxEdge && h <= c.params.MaxEdge {
		slog.Debug("MaxSizeCommand: image within limit; skipping",
			"width", w, "height", h, "max_edge", c.params.MaxEdge)
		return imageData, nil
	}

	tw, th := fitWithin(w, h, c.params.MaxEdge, c.params.MaxEdge)
	slog.Debug("MaxSizeCommand: downscaling image",
		"original_width", w,
		"original_height", h,
		"target_width", tw,
		"target_height", th)

	out, err := encodePNG(resample(img, tw, th, xdraw.CatmullRom))
	if err != nil {
		slog.Error("MaxSizeCommand: failed to encode image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}
	return out, nil
}

// GetMaxEdge returns the configured longest edge
func (c *MaxSizeCommand) GetMaxEdge() int {
	return c.params.MaxEdge
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("MaxSizeCommand", NewMaxSizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register MaxSizeCommand: %v", err))
	}
}
