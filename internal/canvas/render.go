package canvas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var ErrInvalidExportOptions = errors.New("invalid export options")

const (
	DefaultBackground  = "#f8fafc"
	DefaultMultiplier  = 3.0
	MaxMultiplier      = 4.0
	DefaultJPEGQuality = 92

	previewWidth  = 200.0
	previewHeight = 250.0
)

// Format is the raster encoding of an export.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat accepts png, jpeg and jpg. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidExportOptions, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

type ExportOptions struct {
	Format     Format
	Quality    int
	Multiplier float64
}

// DefaultExportOptions returns PNG at the default multiplier.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Format: FormatPNG, Quality: DefaultJPEGQuality, Multiplier: DefaultMultiplier}
}

func (o ExportOptions) Validate() error {
	if math.IsNaN(o.Multiplier) || o.Multiplier <= 0 || o.Multiplier > MaxMultiplier {
		return fmt.Errorf("%w: multiplier must be in (0, %g], got %g", ErrInvalidExportOptions, MaxMultiplier, o.Multiplier)
	}
	switch o.Format {
	case FormatPNG:
	case FormatJPEG:
		if o.Quality < 1 || o.Quality > 100 {
			return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidExportOptions, o.Quality)
		}
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidExportOptions, o.Format)
	}
	return nil
}

// PreviewMultiplier returns the factor that fits a canvas into the preview box.
func PreviewMultiplier(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	return math.Min(previewWidth/float64(width), previewHeight/float64(height))
}

// Renderer turns scenes into raster images.
type Renderer struct {
	background gg.RGBA
	frame      image.Image
}

// NewRenderer creates a renderer. frame may be nil when no template is available.
func NewRenderer(background string, frame image.Image) *Renderer {
	if background == "" {
		background = DefaultBackground
	}
	return &Renderer{
		background: gg.Hex(background),
		frame:      frame,
	}
}

// HasFrame reports whether a template overlay is loaded.
func (r *Renderer) HasFrame() bool {
	return r.frame != nil
}

// FrameSize returns the pixel size of the template overlay.
func (r *Renderer) FrameSize() (int, int) {
	if r.frame == nil {
		return 0, 0
	}
	return r.frame.Bounds().Dx(), r.frame.Bounds().Dy()
}

// Render draws the scene bottom to top at the given multiplier. images maps
// image ids to decoded sources; objects without a source are skipped.
func (r *Renderer) Render(scene *Scene, images map[string]image.Image, multiplier float64) (image.Image, error) {
	dc, err := r.compose(scene, images, multiplier)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = dc.Close()
	}()
	return dc.Image(), nil
}

// Export renders the scene and encodes it to w.
func (r *Renderer) Export(w io.Writer, scene *Scene, images map[string]image.Image, opts ExportOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	dc, err := r.compose(scene, images, opts.Multiplier)
	if err != nil {
		return err
	}
	defer func() {
		_ = dc.Close()
	}()

	if opts.Format == FormatJPEG {
		err = dc.EncodeJPEG(w, opts.Quality)
	} else {
		err = dc.EncodePNG(w)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", opts.Format, err)
	}
	return nil
}

// DataURL renders the scene into a base64 data URL.
func (r *Renderer) DataURL(scene *Scene, images map[string]image.Image, opts ExportOptions) (string, error) {
	var buf bytes.Buffer
	if err := r.Export(&buf, scene, images, opts); err != nil {
		return "", err
	}
	return "data:" + opts.Format.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (r *Renderer) compose(scene *Scene, images map[string]image.Image, multiplier float64) (*gg.Context, error) {
	if math.IsNaN(multiplier) || multiplier <= 0 {
		return nil, fmt.Errorf("%w: multiplier must be positive", ErrInvalidExportOptions)
	}
	w := int(math.Round(float64(scene.Width) * multiplier))
	h := int(math.Round(float64(scene.Height) * multiplier))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty output size %dx%d", ErrInvalidExportOptions, w, h)
	}

	layer := image.NewNRGBA(image.Rect(0, 0, w, h))
	base := gg.Scale(multiplier, multiplier)
	for _, obj := range scene.Objects {
		src := r.sourceFor(obj, images)
		if src == nil || src.Bounds().Empty() {
			slog.Warn("Renderer: skipping object without image", "object_id", obj.ID, "image_id", obj.ImageID)
			continue
		}
		m := base.Multiply(objectMatrix(obj, src.Bounds()))
		xdraw.CatmullRom.Transform(layer, toAff3(m), src, src.Bounds(), xdraw.Over, nil)
	}

	dc := gg.NewContext(w, h)
	dc.ClearWithColor(r.background)
	dc.DrawImage(gg.ImageBufFromImage(layer), 0, 0)
	return dc, nil
}

func (r *Renderer) sourceFor(obj *Object, images map[string]image.Image) image.Image {
	if obj.IsFrame() {
		return r.frame
	}
	if img, ok := images[obj.ImageID]; ok {
		return img
	}
	return nil
}

// objectMatrix maps source pixels to canvas units: the source is stretched to
// the object's box, centred on the origin, flipped, scaled, rotated and moved
// to the object's centre.
func objectMatrix(obj *Object, srcBounds image.Rectangle) gg.Matrix {
	fx, fy := 1.0, 1.0
	if obj.FlipX {
		fx = -1
	}
	if obj.FlipY {
		fy = -1
	}
	cx, cy := obj.Center()

	m := gg.Translate(cx, cy)
	m = m.Multiply(gg.Rotate(obj.Angle * math.Pi / 180))
	m = m.Multiply(gg.Scale(obj.ScaleX*fx, obj.ScaleY*fy))
	m = m.Multiply(gg.Translate(-float64(obj.Width)/2, -float64(obj.Height)/2))
	m = m.Multiply(gg.Scale(
		float64(obj.Width)/float64(srcBounds.Dx()),
		float64(obj.Height)/float64(srcBounds.Dy()),
	))
	return m.Multiply(gg.Translate(-float64(srcBounds.Min.X), -float64(srcBounds.Min.Y)))
}

func toAff3(m gg.Matrix) f64.Aff3 {
	return f64.Aff3{m.A, m.B, m.C, m.D, m.E, m.F}
}
