package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Wrap breaks text into lines no wider than columns display cells. Breaks
// fall on spaces; a word wider than a whole line is split by cell. Explicit
// newlines start a new line. The result always has at least one line, so
// it is used both to measure a block and to lay it out.
func Wrap(text string, columns int) []string {
	if columns < 1 {
		columns = 1
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(para, columns)...)
	}
	return lines
}

func wrapParagraph(para string, columns int) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var line strings.Builder
	width := 0
	flush := func() {
		lines = append(lines, line.String())
		line.Reset()
		width = 0
	}

	for _, word := range words {
		w := runewidth.StringWidth(word)
		if width > 0 && width+1+w <= columns {
			line.WriteByte(' ')
			line.WriteString(word)
			width += 1 + w
			continue
		}
		if width > 0 {
			flush()
		}
		for w > columns {
			head, rest := splitCells(word, columns)
			lines = append(lines, head)
			word = rest
			w = runewidth.StringWidth(word)
		}
		line.WriteString(word)
		width = w
	}
	if width > 0 || line.Len() > 0 {
		flush()
	}
	return lines
}

// splitCells cuts word after at most columns cells, always taking at least
// one rune so that a rune wider than the line still makes progress.
func splitCells(word string, columns int) (string, string) {
	width := 0
	for i, r := range word {
		rw := runewidth.RuneWidth(r)
		if width+rw > columns && i > 0 {
			return word[:i], word[i:]
		}
		width += rw
	}
	return word, ""
}
