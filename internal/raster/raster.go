// Package raster renders PDF pages to PNG images with MuPDF (go-fitz).
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// DefaultDPI renders at 2x the 72 DPI PDF user space.
const DefaultDPI = 144

// Delivery selects what happens to each rendered page.
type Delivery string

const (
	// DeliverDownload hands every page to OnPage as soon as it is rendered.
	DeliverDownload Delivery = "download"
	// DeliverReturn accumulates pages and returns them together.
	DeliverReturn Delivery = "return"
)

// ParseDelivery maps a query value onto a Delivery, defaulting to download.
func ParseDelivery(s string) (Delivery, error) {
	switch Delivery(strings.ToLower(s)) {
	case "", DeliverDownload:
		return DeliverDownload, nil
	case DeliverReturn:
		return DeliverReturn, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q", s)
}

// Page is one rendered page.
type Page struct {
	Number int
	Name   string
	Data   []byte
}

// Options controls delivery.
type Options struct {
	Deliver Delivery
	// OnPage receives pages in DeliverDownload mode. An error aborts rendering.
	OnPage func(Page) error
}

// ProgressFunc receives progress snapshots.
type ProgressFunc func(models.Progress)

type Rasterizer struct {
	dpi float64
}

func New() *Rasterizer {
	return &Rasterizer{dpi: DefaultDPI}
}

// PageName is <base>.png for single-page documents and <base>-page-<n>.png otherwise.
func PageName(name string, n, total int) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" {
		base = "document"
	}
	if total == 1 {
		return base + ".png"
	}
	return fmt.Sprintf("%s-page-%d.png", base, n)
}

// Rasterize renders every page of pdf. Pages are rendered sequentially; any
// failure aborts and nothing rendered so far is returned. In DeliverDownload
// mode the returned slice is nil.
func (r *Rasterizer) Rasterize(ctx context.Context, name string, pdf []byte, opts Options, progress ProgressFunc) ([]Page, error) {
	if opts.Deliver == "" {
		opts.Deliver = DeliverDownload
	}
	if opts.Deliver == DeliverDownload && opts.OnPage == nil {
		return nil, fmt.Errorf("download delivery requires a page callback")
	}
	report := func(current int, msg string) {
		if progress != nil {
			progress(models.Progress{Current: current, Total: 100, Message: msg})
		}
	}
	logCtx := slog.With("file", name, "deliver", string(opts.Deliver))

	report(0, "Opening document")
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	report(10, fmt.Sprintf("Document has %d pages", total))
	logCtx.Info("Rasterizing document.", "pages", total)

	var pages []Page
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(20+i*70/total, fmt.Sprintf("Rendering page %d of %d", i+1, total))

		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}
		page := Page{Number: i + 1, Name: PageName(name, i+1, total), Data: buf.Bytes()}

		if opts.Deliver == DeliverDownload {
			if err := opts.OnPage(page); err != nil {
				return nil, fmt.Errorf("failed to deliver page %d: %w", i+1, err)
			}
			continue
		}
		pages = append(pages, page)
	}

	report(100, "Rasterization complete")
	logCtx.Info("Rasterization complete.", "pages", total)
	return pages, nil
}
