package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/Lllllllleong/docsummaryflow/internal/convert"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
	"github.com/Lllllllleong/docsummaryflow/internal/state"
)

// ExportFormat selects the report container.
type ExportFormat string

const (
	FormatPDF  ExportFormat = "pdf"
	FormatDOCX ExportFormat = "docx"
)

// ParseExportFormat defaults to PDF.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Export is a generated report.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
	Sections    int
	AllComplete bool
}

// Exporter aggregates completed sections into a single report.
type Exporter struct{}

func NewExporter() *Exporter { return &Exporter{} }

// Export renders every complete section, in catalogue order.
func (e *Exporter) Export(st state.State, format ExportFormat) (*Export, error) {
	var done []models.Section
	all := true
	for _, sec := range st.Ordered() {
		if sec.Status == models.StatusComplete {
			done = append(done, sec)
		} else {
			all = false
		}
	}

	out := &Export{Sections: len(done), AllComplete: all && len(done) > 0}
	var err error
	switch format {
	case FormatPDF:
		out.Data, err = exportPDF(st.Applicant, done)
		out.ContentType = "application/pdf"
	case FormatDOCX:
		out.Data, err = exportDOCX(st.Applicant, done)
		out.ContentType = convert.MediaTypeDocx
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	out.Filename = "document-summary." + string(format)
	return out, nil
}

func applicantLine(a models.Applicant) string {
	if a.Email == "" {
		return ""
	}
	return fmt.Sprintf("Applicant: %s (%s)", a.Email, a.EmploymentType)
}

func exportPDF(applicant models.Applicant, sections []models.Section) ([]byte, error) {
	const (
		left      = 20.0
		top       = 20.0
		bodyWidth = 170.0
		bodyLine  = 7.0
		gap       = 10.0
	)
	pdf, enc := convert.NewA4()
	_, pageH := pdf.GetPageSize()
	bottom := pageH - top

	pdf.AddPage()
	y := top
	if line := applicantLine(applicant); line != "" {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Text(left, y, enc(line))
		y += gap
	}
	if len(sections) == 0 {
		pdf.SetFont("Helvetica", "", 12)
		pdf.Text(left, y, "No sections have been summarized yet.")
	}

	for _, sec := range sections {
		pdf.SetFont("Helvetica", "", 12)
		lines := convert.WrapLines(pdf, RenderSummary(sec.Summary), bodyWidth)

		// keep a title with at least its first body line
		if y > top && y+gap+bodyLine > bottom {
			pdf.AddPage()
			y = top
		}
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Text(left, y, enc(sec.Title))
		y += gap

		pdf.SetFont("Helvetica", "", 12)
		for _, line := range lines {
			if y > bottom {
				pdf.AddPage()
				y = top
			}
			pdf.Text(left, y, enc(line))
			y += bodyLine
		}
		y += gap
	}

	if pdf.Err() {
		return nil, fmt.Errorf("failed to render report: %w", pdf.Error())
	}
	return convert.Output(pdf)
}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
)

func exportDOCX(applicant models.Applicant, sections []models.Section) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	if line := applicantLine(applicant); line != "" {
		doc.WriteString(`<w:p><w:r><w:rPr><w:i/></w:rPr>`)
		writeText(&doc, line)
		doc.WriteString(`</w:r></w:p>`)
	}
	for _, sec := range sections {
		doc.WriteString(`<w:p><w:r><w:rPr><w:b/></w:rPr>`)
		writeText(&doc, sec.Title)
		doc.WriteString(`</w:r><w:r><w:br/></w:r><w:r>`)
		for i, line := range strings.Split(RenderSummary(sec.Summary), "\n") {
			if i > 0 {
				doc.WriteString(`<w:br/>`)
			}
			writeText(&doc, line)
		}
		doc.WriteString(`</w:r><w:r><w:br/><w:br/></w:r></w:p>`)
	}
	doc.WriteString(`<w:sectPr/></w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range []struct{ name, body string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", doc.String()},
	} {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", part.name, err)
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeText(w *bytes.Buffer, s string) {
	w.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(w, []byte(s))
	w.WriteString(`</w:t>`)
}

// RenderSummary shows a flat JSON object summary as "key: value" lines in
// document order. Any other summary is returned unchanged.
func RenderSummary(summary string) string {
	trimmed := strings.TrimSpace(summary)
	if !strings.HasPrefix(trimmed, "{") {
		return summary
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return summary
	}
	var lines []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return summary
		}
		key, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return summary
		}
		switch v := valTok.(type) {
		case json.Delim:
			// nested values are not flat
			return summary
		case nil:
			lines = append(lines, key+": ")
		default:
			lines = append(lines, fmt.Sprintf("%s: %v", key, v))
		}
	}
	if len(lines) == 0 {
		return summary
	}
	return strings.Join(lines, "\n")
}
