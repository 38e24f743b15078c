package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func docxBytes(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func para(style, text string, bold bool) string {
	var ppr, rpr string
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	if bold {
		rpr = `<w:rPr><w:b/></w:rPr>`
	}
	return `<w:p>` + ppr + `<w:r>` + rpr + `<w:t>` + text + `</w:t></w:r></w:p>`
}

func collect(events *[]models.Progress) ProgressFunc {
	return func(p models.Progress) { *events = append(*events, p) }
}

func assertMonotonic(t *testing.T, events []models.Progress) {
	t.Helper()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Current, events[i-1].Current)
	}
	for _, e := range events {
		assert.Equal(t, 100, e.Total)
		assert.LessOrEqual(t, e.Current, 100)
	}
	assert.Equal(t, 100, events[len(events)-1].Current)
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name, mediaType string
		want            Kind
	}{
		{"a.pdf", "application/pdf", KindPDF},
		{"a.bin", "image/png", KindImage},
		{"scan.JPG", "", KindImage},
		{"a.docx", "", KindDocx},
		{"x", MediaTypeDocx, KindDocx},
		{"notes.txt", "text/plain; charset=utf-8", KindText},
		{"legacy.doc", MediaTypeDoc, KindUnsupported},
		{"legacy.doc", "", KindUnsupported},
		{"archive.zip", "application/zip", KindUnsupported},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Detect(c.name, c.mediaType), c.name)
	}
}

func TestFitScale(t *testing.T) {
	// landscape image limited by width
	assert.InDelta(t, 595.28/1000*0.9, FitScale(1000, 500, a4Width, a4Height), 1e-9)
	// tall image limited by height
	assert.InDelta(t, 841.89/2000*0.9, FitScale(100, 2000, a4Width, a4Height), 1e-9)
	assert.Zero(t, FitScale(0, 10, a4Width, a4Height))

	w, h := 800, 1200
	s := FitScale(w, h, a4Width, a4Height)
	assert.LessOrEqual(t, float64(w)*s, a4Width*0.9+1e-9)
	assert.LessOrEqual(t, float64(h)*s, a4Height*0.9+1e-9)
}

func TestConvertImage(t *testing.T) {
	var events []models.Progress
	art, err := NewEngine().Convert(context.Background(), Input{Name: "scan.png", MediaType: "image/png", Data: pngBytes(t, 64, 48)}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "scan.pdf", art.Name)
	assert.Equal(t, 1, art.Pages)
	n, err := PageCount(art.Data)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertMonotonic(t, events)
}

func TestConvertImageScalesToFit(t *testing.T) {
	art, err := NewEngine().Convert(context.Background(), Input{Name: "scan.png", Data: pngBytes(t, 64, 48)}, nil)
	require.NoError(t, err)

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(art.Data), relaxedConfig())
	require.NoError(t, err)
	r, err := pdfcpu.ExtractPageContent(pctx, 1)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)

	scale := FitScale(64, 48, a4Width, a4Height)
	assert.Contains(t, string(content), fmt.Sprintf("%.5f 0.00000 0.00000 %.5f", 64*scale, 48*scale))
}

// pngHeader is a PNG signature plus IHDR chunk and nothing else.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 2

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestConvertImageRejectsHugeDimensions(t *testing.T) {
	_, err := NewEngine().Convert(context.Background(), Input{Name: "bomb.png", Data: pngHeader(100000, 100000)}, nil)
	assert.ErrorContains(t, err, "pixel limit")
}

func TestConvertImageCorrupt(t *testing.T) {
	_, err := NewEngine().Convert(context.Background(), Input{Name: "bad.png", MediaType: "image/png", Data: []byte("nope")}, nil)
	assert.ErrorContains(t, err, "decode")
}

func TestConvertText(t *testing.T) {
	lines := make([]string, 250)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d of the statement", i)
	}
	lines[3] = strings.Repeat("a very long line that must wrap ", 20)

	var events []models.Progress
	art, err := NewEngine().Convert(context.Background(), Input{Name: "notes.txt", Data: []byte(strings.Join(lines, "\r\n"))}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "notes.pdf", art.Name)
	// 42 lines fit on a page at 6mm between 20mm margins
	assert.GreaterOrEqual(t, art.Pages, 250/42)
	n, err := PageCount(art.Data)
	require.NoError(t, err)
	assert.Equal(t, art.Pages, n)

	assertMonotonic(t, events)
	var lineReports int
	for _, e := range events {
		if strings.HasPrefix(e.Message, "Processed") {
			lineReports++
		}
	}
	assert.Equal(t, 3, lineReports)
}

func TestConvertTextEmpty(t *testing.T) {
	art, err := NewEngine().Convert(context.Background(), Input{Name: "empty.txt", Data: nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, art.Pages)
}

func TestConvertTextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().Convert(ctx, Input{Name: "a.txt", Data: []byte("x")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertUnsupported(t *testing.T) {
	_, err := NewEngine().Convert(context.Background(), Input{Name: "legacy.doc", MediaType: MediaTypeDoc, Data: []byte{0xd0, 0xcf}}, nil)
	var unsupported *models.ConversionUnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "legacy.doc", unsupported.Name)
}

func TestConvertPDFPassthrough(t *testing.T) {
	img, err := NewEngine().Convert(context.Background(), Input{Name: "a.png", Data: pngBytes(t, 10, 10)}, nil)
	require.NoError(t, err)

	art, err := NewEngine().Convert(context.Background(), Input{Name: "scan.pdf", MediaType: MediaTypePDF, Data: img.Data}, nil)
	require.NoError(t, err)
	assert.Equal(t, img.Data, art.Data)
	assert.Equal(t, 1, art.Pages)
}

func TestDocxToMarkup(t *testing.T) {
	body := para("Heading1", "Pay Stub", false) +
		para("", "Employer: ACME &amp; Co", false) +
		para("", "Net pay", true) +
		`<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/></w:numPr></w:pPr><w:r><w:t>first item</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc>` + para("", "Gross", false) + `</w:tc><w:tc>` + para("", "5000", false) + `</w:tc></w:tr></w:tbl>`

	markup, err := DocxToMarkup(docxBytes(t, body))
	require.NoError(t, err)
	assert.Contains(t, markup, "<h1>Pay Stub</h1>")
	assert.Contains(t, markup, "<p>Employer: ACME &amp; Co</p>")
	assert.Contains(t, markup, "<p><strong>Net pay</strong></p>")
	assert.Contains(t, markup, "<ul>\n<li>first item</li>\n</ul>")
	assert.Contains(t, markup, "<tr><td>Gross</td><td>5000</td></tr>")
}

func TestDocxToMarkupNestedTable(t *testing.T) {
	inner := `<w:tbl><w:tr><w:tc>` + para("", "Inner", false) + `</w:tc></w:tr></w:tbl>`
	body := `<w:tbl><w:tr>` +
		`<w:tc>` + para("", "Outer A", false) + `</w:tc>` +
		`<w:tc>` + para("", "Before inner", false) + inner + para("", "After inner", false) + `</w:tc>` +
		`</w:tr></w:tbl>` + para("", "Trailer", false)

	markup, err := DocxToMarkup(docxBytes(t, body))
	require.NoError(t, err)
	assert.Equal(t, "<table>\n<tr><td>Outer A</td><td>Before inner Inner After inner</td></tr>\n</table>\n<p>Trailer</p>\n", markup)
}

func TestDocxToMarkupSizeLimit(t *testing.T) {
	prev := maxDocumentXML
	maxDocumentXML = 512
	t.Cleanup(func() { maxDocumentXML = prev })

	_, err := DocxToMarkup(docxBytes(t, strings.Repeat(para("", "filler", false), 50)))
	assert.ErrorIs(t, err, errDocumentTooLarge)

	_, err = DocxToMarkup(docxBytes(t, para("", "small", false)))
	assert.NoError(t, err)
}

func TestCapReader(t *testing.T) {
	data, err := io.ReadAll(&capReader{r: strings.NewReader("abc"), n: 3})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = io.ReadAll(&capReader{r: strings.NewReader("abcd"), n: 3})
	assert.ErrorIs(t, err, errDocumentTooLarge)
}

func TestDocxToMarkupRejectsNonZip(t *testing.T) {
	_, err := DocxToMarkup([]byte("plain"))
	assert.Error(t, err)
}

func TestParseBlocksSanitizes(t *testing.T) {
	blocks, err := ParseBlocks(`<h1>Title</h1><script>alert(1)</script><p onclick="x()">Body <strong>bold</strong></p><table><tr><td>a</td><td>b</td></tr></table>`)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, BlockHeading, blocks[0].Kind)
	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, "Body bold", blocks[1].Text())
	assert.Equal(t, []Segment{{Text: "Body "}, {Text: "bold", Bold: true}}, blocks[1].Segments)
	assert.Equal(t, BlockTableRow, blocks[2].Kind)
	assert.Equal(t, "a | b", blocks[2].Text())
	for _, b := range blocks {
		assert.NotContains(t, b.Text(), "alert")
	}
}

func TestPaginate(t *testing.T) {
	p := func() Block { return Block{Kind: BlockParagraph, Segments: []Segment{{Text: "x"}}} }
	h1 := func() Block { return Block{Kind: BlockHeading, Level: 1, Segments: []Segment{{Text: "H"}}} }
	h2 := func() Block { return Block{Kind: BlockHeading, Level: 2, Segments: []Segment{{Text: "h"}}} }

	t.Run("heading first does not start an empty page", func(t *testing.T) {
		pages := Paginate([]Block{h1(), p(), p()})
		require.Len(t, pages, 1)
		assert.Len(t, pages[0], 3)
	})

	t.Run("heading after content starts a page", func(t *testing.T) {
		pages := Paginate([]Block{p(), h2(), h1(), p()})
		require.Len(t, pages, 2)
		assert.Len(t, pages[0], 2)
		assert.True(t, pages[1][0].startsPage())
	})

	t.Run("ten blocks per page", func(t *testing.T) {
		blocks := make([]Block, 25)
		for i := range blocks {
			blocks[i] = p()
		}
		pages := Paginate(blocks)
		require.Len(t, pages, 3)
		assert.Len(t, pages[0], 10)
		assert.Len(t, pages[1], 10)
		assert.Len(t, pages[2], 5)
	})

	assert.Empty(t, Paginate(nil))
}

func TestConvertDocx(t *testing.T) {
	var body strings.Builder
	body.WriteString(para("Heading1", "Income", false))
	for i := 0; i < 12; i++ {
		body.WriteString(para("", fmt.Sprintf("Paragraph %d", i), i%2 == 0))
	}
	body.WriteString(para("Heading1", "Employment “Letter”", false))
	body.WriteString(para("", "Confirmed — full time", false))

	var events []models.Progress
	art, err := NewEngine().Convert(context.Background(), Input{Name: "income.docx", Data: docxBytes(t, body.String())}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, "income.pdf", art.Name)
	assert.Equal(t, 3, art.Pages)
	assertMonotonic(t, events)
}

func TestLatin1(t *testing.T) {
	assert.Equal(t, `"quoted" - it's ?`, Latin1("“quoted” — it’s 漢"))
	assert.Equal(t, "café", Latin1("café"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "statement", BaseName("dir/statement.txt"))
	assert.Equal(t, "archive.tar", BaseName("archive.tar.gz"))
	assert.Equal(t, ".env", BaseName(".env"))
}
