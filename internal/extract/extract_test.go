package extract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"regexp"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docsummaryflow/internal/convert"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

func pngReader(t *testing.T, w, h int, c color.Color) io.Reader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func imagePDF(t *testing.T, n int) []byte {
	t.Helper()
	readers := make([]io.Reader, n)
	for i := range readers {
		readers[i] = pngReader(t, 20+i, 10, color.RGBA{R: uint8(40 * i), A: 255})
	}
	var out bytes.Buffer
	require.NoError(t, api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), model.NewDefaultConfiguration()))
	return out.Bytes()
}

func TestScanPaintOps(t *testing.T) {
	content := []byte(`q 100 0 0 50 10 10 cm /Im0 Do Q
% /Fake Do in a comment
BT /F1 12 Tf (a string with /Im9 Do inside \) still) Tj ET
<2F496D3820446F> Tj
q /Fm1 Do Q
q /Im0 Do Q
[/Pattern] cs
BI /W 1 /H 1 /BPC 8 /CS /G ID ` + "\x00\xffEIx" + ` EI
/Im1
Do`)

	ops := ScanPaintOps(content)
	assert.Equal(t, []string{"Im0", "Fm1", "Im0", "Im1"}, ops.Names)
	assert.Equal(t, 1, ops.InlineImages)
}

func TestScanPaintOpsIgnoresOperandlessDo(t *testing.T) {
	ops := ScanPaintOps([]byte("1 0 0 1 0 0 cm Do /Im0 5 Do"))
	assert.Empty(t, ops.Names)
}

func TestPaintOrder(t *testing.T) {
	resolved := map[int]model.Image{
		12: {Name: "Im1", ObjNr: 12},
		7:  {Name: "Im0", ObjNr: 7},
		30: {Name: "ImNested", ObjNr: 30},
	}
	ordered := paintOrder([]string{"Im1", "Fm0", "Im0", "Im1"}, resolved)

	var got []int
	for _, img := range ordered {
		got = append(got, img.ObjNr)
	}
	assert.Equal(t, []int{12, 7, 12, 30}, got)
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "image-page3-0-deadbeef", ImageName(3, 0, "deadbeef"))
}

func TestExtractImages(t *testing.T) {
	var events []models.Progress
	images, err := New().Extract(context.Background(), imagePDF(t, 2), func(p models.Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	require.Len(t, images, 2)

	assert.Regexp(t, regexp.MustCompile(`^image-page1-0-[0-9a-f]{8}$`), images[0].Name)
	assert.Regexp(t, regexp.MustCompile(`^image-page2-0-[0-9a-f]{8}$`), images[1].Name)

	for i, img := range images {
		decoded, err := png.Decode(bytes.NewReader(img.Data))
		require.NoError(t, err)
		assert.Equal(t, 20+i, decoded.Bounds().Dx())
		assert.Equal(t, 10, decoded.Bounds().Dy())
	}

	require.NotEmpty(t, events)
	assert.Equal(t, 100, events[len(events)-1].Current)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Current, events[i-1].Current)
	}
}

func TestExtractIdenticalImagesGetDistinctNames(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	var out bytes.Buffer
	require.NoError(t, api.ImportImages(nil, &out, []io.Reader{pngReader(t, 8, 8, red), pngReader(t, 8, 8, red)}, nil, nil))

	images, err := New().Extract(context.Background(), out.Bytes(), nil)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.NotEqual(t, images[0].Name, images[1].Name)
}

func TestExtractImagePaintedTwice(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("logo", opts, pngReader(t, 12, 6, color.RGBA{B: 200, A: 255}))
	pdf.ImageOptions("logo", 10, 10, 40, 0, false, opts, 0, "")
	pdf.ImageOptions("logo", 10, 80, 40, 0, false, opts, 0, "")
	var out bytes.Buffer
	require.NoError(t, pdf.Output(&out))

	images, err := New().Extract(context.Background(), out.Bytes(), nil)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Regexp(t, regexp.MustCompile(`^image-page1-0-[0-9a-f]{8}$`), images[0].Name)
	assert.Regexp(t, regexp.MustCompile(`^image-page1-1-[0-9a-f]{8}$`), images[1].Name)
	assert.Equal(t, images[0].Data, images[1].Data)

	decoded, err := png.Decode(bytes.NewReader(images[1].Data))
	require.NoError(t, err)
	assert.Equal(t, 12, decoded.Bounds().Dx())
}

func TestExtractNoImages(t *testing.T) {
	art, err := convert.NewEngine().Convert(context.Background(), convert.Input{Name: "plain.txt", Data: []byte("no pictures here")}, nil)
	require.NoError(t, err)

	images, err := New().Extract(context.Background(), art.Data, nil)
	require.NoError(t, err)
	assert.NotNil(t, images)
	assert.Empty(t, images)
}

func TestExtractCorrupt(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("%PDF-1.4 garbage"), nil)
	assert.Error(t, err)
}
