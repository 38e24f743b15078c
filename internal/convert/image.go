package convert

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// A4 in PostScript points.
const (
	a4Width  = 595.28
	a4Height = 841.89
)

// maxImagePixels rejects decompression bombs before decoding.
const maxImagePixels = 50_000_000

// imageFill is the share of the limiting page dimension an image may cover.
const imageFill = 0.9

// FitScale returns the factor that fits a w×h image inside a pageW×pageH page
// with a 10% margin, preserving aspect ratio.
func FitScale(w, h int, pageW, pageH float64) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	return min(pageW/float64(w), pageH/float64(h)) * imageFill
}

func imageToPDF(data []byte, p *tracker) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("image dimensions %dx%d exceed the %d pixel limit", cfg.Width, cfg.Height, maxImagePixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	p.report(30, fmt.Sprintf("Decoded %s image (%dx%d)", format, b.Dx(), b.Dy()))

	// pdfcpu embeds PNG losslessly whatever the source format was.
	var normalized bytes.Buffer
	if err := png.Encode(&normalized, img); err != nil {
		return nil, fmt.Errorf("failed to normalize image: %w", err)
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = types.PaperSize["A4"]
	imp.PageSize = "A4"
	imp.Pos = types.Center
	// pixels map to points, so the fit factor is applied to them directly
	imp.Scale = FitScale(b.Dx(), b.Dy(), a4Width, a4Height)
	imp.ScaleAbs = true
	p.report(60, fmt.Sprintf("Scaling to page (factor %.3f)", imp.Scale))

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{&normalized}, imp, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}
	p.report(90, "Image embedded")
	return out.Bytes(), nil
}
