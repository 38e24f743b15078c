package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// maxDocumentXML bounds the decompressed size of word/document.xml.
var maxDocumentXML int64 = 32 << 20

var errDocumentTooLarge = errors.New("word/document.xml exceeds the size limit")

// capReader fails instead of truncating once more than n bytes are read.
type capReader struct {
	r io.Reader
	n int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		var probe [1]byte
		if n, _ := c.r.Read(probe[:]); n > 0 {
			return 0, errDocumentTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	return n, err
}

type docxRun struct {
	text string
	bold bool
}

// tableFrame is one open table. Nested tables are flattened into the
// enclosing cell.
type tableFrame struct {
	row  []string
	cell *strings.Builder
}

func appendText(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(text)
}

type docxParagraph struct {
	style string
	list  bool
	runs  []docxRun
}

func (p *docxParagraph) tag() string {
	s := strings.ToLower(p.style)
	switch {
	case s == "title" || s == "heading1":
		return "h1"
	case strings.HasPrefix(s, "heading") && len(s) == len("heading")+1:
		lvl := s[len(s)-1]
		if lvl >= '2' && lvl <= '6' {
			return "h" + string(lvl)
		}
	case p.list || s == "listparagraph":
		return "li"
	}
	return "p"
}

func (p *docxParagraph) html() string {
	var b strings.Builder
	for _, r := range p.runs {
		if r.text == "" {
			continue
		}
		if r.bold {
			b.WriteString("<strong>")
			b.WriteString(html.EscapeString(r.text))
			b.WriteString("</strong>")
		} else {
			b.WriteString(html.EscapeString(r.text))
		}
	}
	return b.String()
}

// DocxToMarkup decodes word/document.xml into HTML structural markup:
// headings, paragraphs, list items, table rows and bold runs.
func DocxToMarkup(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a docx container: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx container has no word/document.xml")
	}
	if doc.UncompressedSize64 > uint64(maxDocumentXML) {
		return "", errDocumentTooLarge
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open word/document.xml: %w", err)
	}
	defer rc.Close()
	return decodeDocument(&capReader{r: rc, n: maxDocumentXML})
}

func decodeDocument(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out       strings.Builder
		para      *docxParagraph
		run       *docxRun
		inText    bool
		inRunProp bool
		tables    []*tableFrame
		listOpen  bool
	)

	openCell := func() *strings.Builder {
		if len(tables) == 0 {
			return nil
		}
		return tables[len(tables)-1].cell
	}

	closeList := func() {
		if listOpen {
			out.WriteString("</ul>\n")
			listOpen = false
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				if len(tables) == 0 {
					closeList()
					out.WriteString("<table>\n")
				}
				tables = append(tables, &tableFrame{})
			case "tr":
				if len(tables) > 0 {
					tables[len(tables)-1].row = nil
				}
			case "tc":
				if len(tables) > 0 {
					tables[len(tables)-1].cell = &strings.Builder{}
				}
			case "p":
				para = &docxParagraph{}
			case "pStyle":
				if para != nil {
					para.style = attr(t, "val")
				}
			case "numPr":
				if para != nil {
					para.list = true
				}
			case "r":
				run = &docxRun{}
			case "rPr":
				inRunProp = run != nil
			case "b":
				if inRunProp && attr(t, "val") != "0" && attr(t, "val") != "false" {
					run.bold = true
				}
			case "t":
				inText = run != nil
			case "tab":
				if run != nil {
					run.text += "\t"
				}
			case "br", "cr":
				if run != nil {
					run.text += "\n"
				}
			}

		case xml.CharData:
			if inText {
				run.text += string(t)
			}

		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "rPr":
				inRunProp = false
			case "r":
				if para != nil && run != nil {
					para.runs = append(para.runs, *run)
				}
				run = nil
			case "p":
				if para == nil {
					continue
				}
				body := para.html()
				cell := openCell()
				switch {
				case cell != nil:
					appendText(cell, body)
				case body == "":
				default:
					tag := para.tag()
					if tag == "li" {
						if !listOpen {
							out.WriteString("<ul>\n")
							listOpen = true
						}
					} else {
						closeList()
					}
					fmt.Fprintf(&out, "<%s>%s</%s>\n", tag, body, tag)
				}
				para = nil
			case "tc":
				if len(tables) == 0 {
					continue
				}
				top := tables[len(tables)-1]
				if top.cell != nil {
					top.row = append(top.row, top.cell.String())
				}
				top.cell = nil
			case "tr":
				if len(tables) == 0 {
					continue
				}
				row := tables[len(tables)-1].row
				if len(tables) > 1 {
					if outer := tables[len(tables)-2].cell; outer != nil {
						for _, c := range row {
							appendText(outer, c)
						}
					}
					continue
				}
				if len(row) > 0 {
					out.WriteString("<tr>")
					for _, c := range row {
						fmt.Fprintf(&out, "<td>%s</td>", c)
					}
					out.WriteString("</tr>\n")
				}
			case "tbl":
				if len(tables) == 0 {
					continue
				}
				tables = tables[:len(tables)-1]
				if len(tables) == 0 {
					out.WriteString("</table>\n")
				}
			}
		}
	}
	closeList()
	return out.String(), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
