package commands

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/jo-hoe/shinguard/internal/backend/commandstructure"
)

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Result is not valid PNG: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestThumbnailCommand_KeepsAspectRatio(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		srcW     int
		srcH     int
		expected [2]int
	}{
		{name: "landscape", width: 160, srcW: 800, srcH: 400, expected: [2]int{160, 80}},
		{name: "portrait", width: 160, srcW: 300, srcH: 600, expected: [2]int{160, 320}},
		{name: "upscales small images", width: 160, srcW: 40, srcH: 20, expected: [2]int{160, 80}},
		{name: "very wide image keeps 1px height", width: 10, srcW: 1000, srcH: 2, expected: [2]int{10, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, err := NewThumbnailCommand(tt.width)
			if err != nil {
				t.Fatalf("NewThumbnailCommand failed: %v", err)
			}
			result, err := command.Execute(makePNG(t, tt.srcW, tt.srcH))
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if w, h := decodeSize(t, result); w != tt.expected[0] || h != tt.expected[1] {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expected[0], tt.expected[1], w, h)
			}
		})
	}
}

func TestNewThumbnailCommand_RejectsWidth(t *testing.T) {
	for _, width := range []int{0, -5} {
		if _, err := NewThumbnailCommand(width); err == nil {
			t.Errorf("Expected error for width %d", width)
		}
	}
}

func TestPixelScaleCommand_Execute_InvalidImage(t *testing.T) {
	command, err := NewThumbnailCommand(32)
	if err != nil {
		t.Fatalf("NewThumbnailCommand failed: %v", err)
	}

	if _, err := command.Execute([]byte("not a png")); err == nil {
		t.Error("Expected error for data that is not a PNG")
	}
}

func TestNewPixelScaleCommand_Params(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]any
		wantErr  bool
		expected [2]int
	}{
		{name: "height only", params: map[string]any{"height": 50}, expected: [2]int{100, 50}},
		{name: "both dimensions stretch", params: map[string]any{"width": 30, "height": 30}, expected: [2]int{30, 30}},
		{name: "yaml floats", params: map[string]any{"width": 25.0}, expected: [2]int{25, 12}},
		{name: "missing dimensions", params: map[string]any{}, wantErr: true},
		{name: "negative height", params: map[string]any{"height": -1}, wantErr: true},
		{name: "zero width", params: map[string]any{"width": 0}, wantErr: true},
	}

	src := makePNG(t, 200, 100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, err := commandstructure.DefaultRegistry.Create("PixelScaleCommand", tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			result, err := command.Execute(src)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if w, h := decodeSize(t, result); w != tt.expected[0] || h != tt.expected[1] {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expected[0], tt.expected[1], w, h)
			}
		})
	}
}
