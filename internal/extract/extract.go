// Package extract recovers the raster images embedded in a PDF.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"slices"
	"strings"

	_ "golang.org/x/image/tiff"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

var errImageMask = errors.New("image is a stencil mask")

// ProgressFunc receives progress snapshots.
type ProgressFunc func(models.Progress)

type Extractor struct {
	suffix func() string
}

func New() *Extractor {
	return &Extractor{suffix: func() string { return uuid.NewString()[:8] }}
}

// ImageName is image-page{N}-{i}-{suffix}.
func ImageName(page, index int, suffix string) string {
	return fmt.Sprintf("image-page%d-%d-%s", page, index, suffix)
}

// Extract returns every recoverable image in paint order, page by page.
// Images that cannot be recovered are logged and skipped. A PDF without
// images yields an empty, non-nil slice.
func (e *Extractor) Extract(ctx context.Context, pdf []byte, progress ProgressFunc) ([]models.ExtractedImage, error) {
	report := func(current int, msg string) {
		if progress != nil {
			progress(models.Progress{Current: current, Total: 100, Message: msg})
		}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	total := pctx.PageCount
	report(10, fmt.Sprintf("Scanning %d pages", total))

	out := []models.ExtractedImage{}
	for pageNr := 1; pageNr <= total; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		images, err := e.extractPage(pctx, pageNr)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		out = append(out, images...)
		report(10+pageNr*85/total, fmt.Sprintf("Scanned page %d of %d", pageNr, total))
	}

	report(100, fmt.Sprintf("Found %d images", len(out)))
	slog.Info("Image extraction complete.", "pages", total, "images", len(out))
	return out, nil
}

func (e *Extractor) extractPage(pctx *model.Context, pageNr int) ([]models.ExtractedImage, error) {
	var ops PaintOps
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil {
		return nil, fmt.Errorf("failed to read content stream: %w", err)
	}
	if r != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read content stream: %w", err)
		}
		ops = ScanPaintOps(data)
	}
	for i := 0; i < ops.InlineImages; i++ {
		logWarning(&models.ExtractionWarning{Page: pageNr, Index: -1, Ref: "inline", Err: errors.New("inline images are not extracted")})
	}

	resolved, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve page images: %w", err)
	}
	ordered := paintOrder(ops.Names, resolved)

	// Image readers are single-use, so each object is decoded once and
	// shared by every paint of it.
	type encoded struct {
		data []byte
		err  error
	}
	cache := make(map[int]encoded, len(resolved))

	var out []models.ExtractedImage
	for i, img := range ordered {
		enc, ok := cache[img.ObjNr]
		if !ok {
			enc.data, enc.err = reencode(img)
			cache[img.ObjNr] = enc
		}
		data, err := enc.data, enc.err
		if err != nil {
			logWarning(&models.ExtractionWarning{Page: pageNr, Index: i, Ref: fmt.Sprintf("%s (obj %d)", img.Name, img.ObjNr), Err: err})
			continue
		}
		out = append(out, models.ExtractedImage{Name: ImageName(pageNr, i, e.suffix()), Data: data})
	}
	return out, nil
}

// paintOrder lines up resolved images with the names painted by the page.
// A name painted twice yields the image twice. Images reachable only through
// nested form XObjects come last, ordered by object number.
func paintOrder(names []string, resolved map[int]model.Image) []model.Image {
	objNrs := make([]int, 0, len(resolved))
	for nr := range resolved {
		objNrs = append(objNrs, nr)
	}
	slices.Sort(objNrs)

	byName := make(map[string]model.Image, len(resolved))
	for _, nr := range objNrs {
		img := resolved[nr]
		if _, ok := byName[img.Name]; !ok {
			byName[img.Name] = img
		}
	}

	used := make(map[int]bool, len(resolved))
	var ordered []model.Image
	for _, name := range names {
		img, ok := byName[name]
		if !ok {
			// form XObject or a missing resource
			continue
		}
		ordered = append(ordered, img)
		used[img.ObjNr] = true
	}
	for _, nr := range objNrs {
		if img := resolved[nr]; !used[img.ObjNr] && !img.Thumb {
			ordered = append(ordered, img)
		}
	}
	return ordered
}

func reencode(img model.Image) ([]byte, error) {
	if img.IsImgMask {
		return nil, errImageMask
	}
	if img.Reader == nil {
		return nil, fmt.Errorf("no image data")
	}
	raw, err := io.ReadAll(img.Reader)
	if err != nil {
		return nil, err
	}
	decoded, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s data: %w", strings.TrimPrefix(img.FileType, "."), err)
	}
	if format == "png" {
		return raw, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func logWarning(w *models.ExtractionWarning) {
	slog.Warn("Skipping embedded image.", "page", w.Page, "index", w.Index, "ref", w.Ref, "error", w.Err)
}
