package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Page layout in millimetres.
const (
	pageMargin = 20.0
	lineHeight = 6.0
)

// Latin1 folds text onto the core PDF fonts' character set. Typographic
// punctuation is mapped to ASCII and anything else outside Latin-1 becomes '?'.
func Latin1(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '‘', '’', '‚', '′':
			return '\''
		case '“', '”', '„', '″':
			return '"'
		case '–', '—', '−':
			return '-'
		case '•', '·':
			return '*'
		case ' ':
			return ' '
		case '\t':
			return ' '
		}
		if r > 0xff {
			return '?'
		}
		return r
	}, s)
}

// NewA4 returns a millimetre-based A4 document with manual page breaks and
// an encoder for the core fonts.
func NewA4() (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	return pdf, func(s string) string { return tr(Latin1(s)) }
}

// Output serializes a finished document.
func Output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// WrapLines splits text on line breaks and wraps each line to width using
// the current font. Empty lines are kept.
func WrapLines(pdf *fpdf.Fpdf, text string, width float64) []string {
	var out []string
	for _, line := range strings.Split(Latin1(text), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			out = append(out, "")
			continue
		}
		out = append(out, pdf.SplitText(line, width)...)
	}
	return out
}

func (e *Engine) textToPDF(ctx context.Context, data []byte, p *tracker) ([]byte, int, error) {
	text := strings.ReplaceAll(string(bytes.ToValidUTF8(data, []byte("?"))), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	total := len(lines)

	pdf, enc := NewA4()
	pdf.SetFont("Courier", "", 10)
	pageW, pageH := pdf.GetPageSize()
	usableW := pageW - 2*pageMargin
	bottom := pageH - pageMargin

	pdf.AddPage()
	y := pageMargin
	for i, line := range lines {
		if i%e.linesPerReport == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			p.report(10+i*85/max(total, 1), fmt.Sprintf("Processed %d of %d lines", i, total))
		}
		for _, seg := range WrapLines(pdf, line, usableW) {
			if y+lineHeight > bottom {
				pdf.AddPage()
				y = pageMargin
			}
			y += lineHeight
			pdf.Text(pageMargin, y, enc(seg))
		}
	}
	if pdf.Err() {
		return nil, 0, pdf.Error()
	}
	out, err := Output(pdf)
	if err != nil {
		return nil, 0, err
	}
	return out, pdf.PageCount(), nil
}

func (e *Engine) docxToPDF(ctx context.Context, data []byte, p *tracker) ([]byte, int, error) {
	markup, err := DocxToMarkup(data)
	if err != nil {
		return nil, 0, err
	}
	p.report(15, "Decoded document structure")

	blocks, err := ParseBlocks(markup)
	if err != nil {
		return nil, 0, err
	}
	pages := Paginate(blocks)
	p.report(25, fmt.Sprintf("Paginated %d blocks into %d pages", len(blocks), len(pages)))

	pdf, enc := NewA4()
	pdf.SetAutoPageBreak(true, pageMargin)
	if len(pages) == 0 {
		pdf.AddPage()
	}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		pdf.AddPage()
		for _, b := range page {
			renderBlock(pdf, enc, b)
		}
		p.report(25+(i+1)*70/len(pages), fmt.Sprintf("Rendered page %d of %d", i+1, len(pages)))
	}
	if pdf.Err() {
		return nil, 0, pdf.Error()
	}
	out, err := Output(pdf)
	if err != nil {
		return nil, 0, err
	}
	return out, pdf.PageCount(), nil
}

func renderBlock(pdf *fpdf.Fpdf, enc func(string) string, b Block) {
	size, h := 11.0, lineHeight
	prefix := ""
	switch b.Kind {
	case BlockHeading:
		size = max(18-2*float64(b.Level-1), 11)
		h = size * 0.5
	case BlockListItem:
		prefix = "* "
	}

	pdf.SetX(pageMargin)
	if prefix != "" {
		pdf.SetFont("Helvetica", "", size)
		pdf.Write(h, prefix)
	}
	for _, s := range b.Segments {
		style := ""
		if s.Bold || b.Kind == BlockHeading {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, size)
		pdf.Write(h, enc(s.Text))
	}
	pdf.Ln(h + 2)
}
