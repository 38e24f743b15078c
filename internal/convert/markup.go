package convert

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlockKind classifies one unit of paginated markup.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockTableRow
)

// Segment is a run of text sharing one weight.
type Segment struct {
	Text string
	Bold bool
}

// Block is a paragraph-level element.
type Block struct {
	Kind     BlockKind
	Level    int // heading level, 1-6
	Segments []Segment
}

func (b Block) Text() string {
	var sb strings.Builder
	for _, s := range b.Segments {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// startsPage reports whether the block is a page-starting heading marker.
func (b Block) startsPage() bool {
	return b.Kind == BlockHeading && b.Level == 1
}

// blocksPerPage caps how many blocks share one page.
const blocksPerPage = 10

var markupPolicy = bluemonday.UGCPolicy()

// ParseBlocks sanitizes markup and flattens it into blocks.
func ParseBlocks(markup string) ([]Block, error) {
	clean := markupPolicy.Sanitize(markup)
	root, err := html.Parse(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	var blocks []Block
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if b, ok := blockFor(n); ok {
				if strings.TrimSpace(b.Text()) != "" {
					blocks = append(blocks, b)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return blocks, nil
}

func blockFor(n *html.Node) (Block, bool) {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return Block{Kind: BlockHeading, Level: int(n.Data[1] - '0'), Segments: segments(n, true)}, true
	case atom.P:
		return Block{Kind: BlockParagraph, Segments: segments(n, false)}, true
	case atom.Li:
		return Block{Kind: BlockListItem, Segments: segments(n, false)}, true
	case atom.Tr:
		var segs []Segment
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.DataAtom != atom.Td && c.DataAtom != atom.Th {
				continue
			}
			if len(segs) > 0 {
				segs = append(segs, Segment{Text: " | "})
			}
			segs = append(segs, segments(c, c.DataAtom == atom.Th)...)
		}
		return Block{Kind: BlockTableRow, Segments: segs}, true
	}
	return Block{}, false
}

func segments(n *html.Node, bold bool) []Segment {
	var out []Segment
	var walk func(n *html.Node, bold bool)
	walk = func(n *html.Node, bold bool) {
		switch n.Type {
		case html.TextNode:
			if n.Data == "" {
				return
			}
			if last := len(out) - 1; last >= 0 && out[last].Bold == bold {
				out[last].Text += n.Data
				return
			}
			out = append(out, Segment{Text: n.Data, Bold: bold})
			return
		case html.ElementNode:
			if n.DataAtom == atom.Strong || n.DataAtom == atom.B {
				bold = true
			}
			if n.DataAtom == atom.Br {
				walk(&html.Node{Type: html.TextNode, Data: "\n"}, bold)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, bold)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, bold)
	}
	return out
}

// Paginate groups blocks into pages. A new page starts when a level-1
// heading follows at least one block on the current page, or once the
// current page holds blocksPerPage blocks.
func Paginate(blocks []Block) [][]Block {
	var pages [][]Block
	var current []Block
	for _, b := range blocks {
		if len(current) > 0 && (b.startsPage() || len(current) >= blocksPerPage) {
			pages = append(pages, current)
			current = nil
		}
		current = append(current, b)
	}
	if len(current) > 0 {
		pages = append(pages, current)
	}
	return pages
}
