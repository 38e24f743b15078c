// Package convert normalizes uploaded files into PDF.
//
// Raster images are embedded on a single A4 page with pdfcpu, Word documents
// are decoded into sanitized markup and paginated, and plain text is laid out
// line by line. PDF input passes through untouched.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// Kind is the conversion strategy selected for an input.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPDF
	KindImage
	KindDocx
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	case KindDocx:
		return "docx"
	case KindText:
		return "text"
	}
	return "unsupported"
}

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeDoc  = "application/msword"
	MediaTypeText = "text/plain"
)

var imageMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

var extKinds = map[string]Kind{
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".webp": KindImage,
	".docx": KindDocx,
	".txt":  KindText,
	".text": KindText,
	".md":   KindText,
}

// Detect picks a strategy from the media type, falling back to the extension.
func Detect(name, mediaType string) Kind {
	mt := strings.ToLower(strings.TrimSpace(strings.Split(mediaType, ";")[0]))
	switch {
	case mt == MediaTypePDF:
		return KindPDF
	case imageMediaTypes[mt]:
		return KindImage
	case mt == MediaTypeDocx:
		return KindDocx
	case mt == MediaTypeText:
		return KindText
	case mt == MediaTypeDoc:
		return KindUnsupported
	}
	return extKinds[strings.ToLower(filepath.Ext(name))]
}

// Input is one file to convert.
type Input struct {
	Name      string
	MediaType string
	Data      []byte
}

// Artifact is the converted document.
type Artifact struct {
	Name  string
	Data  []byte
	Pages int
}

// ProgressFunc receives progress snapshots. Current never decreases.
type ProgressFunc func(models.Progress)

// Engine converts files to PDF.
type Engine struct {
	linesPerReport int
}

func NewEngine() *Engine {
	return &Engine{linesPerReport: 100}
}

// Convert normalizes in into a PDF artifact named <base>.pdf.
func (e *Engine) Convert(ctx context.Context, in Input, progress ProgressFunc) (*Artifact, error) {
	kind := Detect(in.Name, in.MediaType)
	logCtx := slog.With("file", in.Name, "kind", kind.String())
	logCtx.Info("Starting conversion.")

	p := &tracker{fn: progress}
	p.report(0, "Starting conversion")

	var (
		data  []byte
		pages int
		err   error
	)
	switch kind {
	case KindPDF:
		data, pages, err = passthrough(in.Data)
	case KindImage:
		data, err = imageToPDF(in.Data, p)
		pages = 1
	case KindDocx:
		data, pages, err = e.docxToPDF(ctx, in.Data, p)
	case KindText:
		data, pages, err = e.textToPDF(ctx, in.Data, p)
	default:
		return nil, &models.ConversionUnsupportedError{Name: in.Name, MediaType: in.MediaType}
	}
	if err != nil {
		logCtx.Error("Conversion failed.", "error", err)
		return nil, fmt.Errorf("convert %s: %w", in.Name, err)
	}

	p.report(100, "Conversion complete")
	logCtx.Info("Conversion complete.", "pages", pages, "bytes", len(data))
	return &Artifact{Name: BaseName(in.Name) + ".pdf", Data: data, Pages: pages}, nil
}

// BaseName strips the directory and the last extension.
func BaseName(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return "document"
	}
	return base
}

func passthrough(data []byte) ([]byte, int, error) {
	pages, err := PageCount(data)
	if err != nil {
		return nil, 0, err
	}
	return data, pages, nil
}

// PageCount validates a PDF leniently and returns its page count.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	return n, nil
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

type tracker struct {
	fn   ProgressFunc
	last int
}

func (t *tracker) report(current int, msg string) {
	if current < t.last {
		current = t.last
	}
	if current > 100 {
		current = 100
	}
	t.last = current
	if t.fn != nil {
		t.fn(models.Progress{Current: current, Total: 100, Message: msg})
	}
}
