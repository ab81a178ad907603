package commands

import (
	"bytes"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

func decodePNG(data []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(data))
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	// Pre-grow buffer to reduce re-allocations; rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resample draws src into a new w x h NRGBA image. Alpha is preserved so
// transparent uploads stay transparent on the canvas.
func resample(src image.Image, w, h int, interpolator xdraw.Interpolator) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	interpolator.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// fitWithin returns the largest size with the aspect ratio of w x h that fits
// inside maxW x maxH. Never smaller than 1x1.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	ratio := float64(maxW) / float64(w)
	if r := float64(maxH) / float64(h); r < ratio {
		ratio = r
	}
	fw := int(float64(w)*ratio + 0.5)
	fh := int(float64(h)*ratio + 0.5)
	if fw < 1 {
		fw = 1
	}
	if fh < 1 {
		fh = 1
	}
	return fw, fh
}
