package canvas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrameTemplate_Embedded(t *testing.T) {
	img, err := LoadFrameTemplate("", 350, 450, 1)
	if err != nil {
		t.Fatalf("LoadFrameTemplate failed: %v", err)
	}
	if img.Bounds().Dx() != 350 || img.Bounds().Dy() != 450 {
		t.Fatalf("expected 350x450, got %v", img.Bounds())
	}

	// outside the guard outline the mask is opaque
	if _, _, _, a := img.At(5, 5).RGBA(); a != 0xffff {
		t.Errorf("expected opaque corner, got alpha %d", a)
	}
	// inside the outline user images show through
	if _, _, _, a := img.At(175, 225).RGBA(); a != 0 {
		t.Errorf("expected transparent centre, got alpha %d", a)
	}
}

func TestLoadFrameTemplate_RenderScale(t *testing.T) {
	img, err := LoadFrameTemplate("", 35, 45, 2)
	if err != nil {
		t.Fatalf("LoadFrameTemplate failed: %v", err)
	}
	if img.Bounds().Dx() != 70 || img.Bounds().Dy() != 90 {
		t.Errorf("expected 70x90, got %v", img.Bounds())
	}
}

func TestLoadFrameTemplate_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.svg")
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="60"><rect width="40" height="60" fill="#000"/></svg>`
	if err := os.WriteFile(path, []byte(svg), 0o600); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	img, err := LoadFrameTemplate(path, 350, 450, 3)
	if err != nil {
		t.Fatalf("LoadFrameTemplate failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 60 {
		t.Errorf("expected explicit SVG size 40x60, got %v", img.Bounds())
	}
}

func TestLoadFrameTemplate_Errors(t *testing.T) {
	if _, err := LoadFrameTemplate(filepath.Join(t.TempDir(), "missing.svg"), 350, 450, 1); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFrameTemplate("", 0, 450, 1); !errors.Is(err, ErrInvalidImageSize) {
		t.Errorf("expected ErrInvalidImageSize, got %v", err)
	}
}
