package extract

// PaintOps lists the XObject names painted by a decoded page content stream,
// in order, and counts inline images (BI ... ID ... EI).
type PaintOps struct {
	Names        []string
	InlineImages int
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// ScanPaintOps lexes a content stream looking for "/Name Do". Strings, hex
// strings, comments and inline image data are skipped so their bytes can
// never be mistaken for operators.
func ScanPaintOps(data []byte) PaintOps {
	var ops PaintOps
	var lastName string
	haveName := false
	n := len(data)

	for i := 0; i < n; {
		c := data[i]
		switch {
		case isWhite(c):
			i++

		case c == '%':
			for i < n && data[i] != '\n' && data[i] != '\r' {
				i++
			}

		case c == '(':
			i = skipString(data, i)
			haveName = false

		case c == '<':
			if i+1 < n && data[i+1] == '<' {
				i += 2
				continue
			}
			for i < n && data[i] != '>' {
				i++
			}
			i++
			haveName = false

		case c == '/':
			j := i + 1
			for j < n && !isWhite(data[j]) && !isDelim(data[j]) {
				j++
			}
			lastName = string(data[i+1 : j])
			haveName = true
			i = j

		case isDelim(c):
			i++
			haveName = false

		default:
			j := i
			for j < n && !isWhite(data[j]) && !isDelim(data[j]) {
				j++
			}
			tok := string(data[i:j])
			i = j
			switch tok {
			case "Do":
				if haveName {
					ops.Names = append(ops.Names, lastName)
				}
			case "ID":
				ops.InlineImages++
				i = skipInlineData(data, i)
			}
			haveName = false
		}
	}
	return ops
}

// skipString returns the index just past the literal string starting at i.
func skipString(data []byte, i int) int {
	depth := 0
	for ; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(data)
}

// skipInlineData returns the index just past the EI that ends inline image
// data beginning after the ID operator at i.
func skipInlineData(data []byte, i int) int {
	n := len(data)
	// one whitespace byte separates ID from the data
	i++
	for ; i+1 < n; i++ {
		if data[i] == 'E' && data[i+1] == 'I' && isWhite(data[i-1]) && (i+2 == n || isWhite(data[i+2])) {
			return i + 2
		}
	}
	return n
}
