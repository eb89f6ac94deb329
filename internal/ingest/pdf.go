package ingest

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ColumnGap is inserted between text runs that are far apart on a line, so
// the mapper's two-space split can recover table columns.
const ColumnGap = "   "

// glyph is one positioned piece of text on a page.
type glyph struct {
	X, Y, W  float64
	FontSize float64
	S        string
}

// ReadPDF extracts the text of every page in order. Lines are rebuilt from
// positioned glyphs; wide horizontal gaps become ColumnGap.
func ReadPDF(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	pages, err := readPDF(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return pages, nil
}

func readPDF(data []byte) (pages []string, err error) {
	// The reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content := p.Content()
		glyphs := make([]glyph, 0, len(content.Text))
		for _, t := range content.Text {
			glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
		}
		pages = append(pages, strings.Join(assembleLines(glyphs), "\n"))
	}
	return pages, nil
}

// assembleLines groups glyphs into lines top to bottom and joins each line
// left to right. Glyphs whose baselines are within a third of the font size
// share a line. A gap wider than one font size starts a new column; a
// smaller visible gap is a word space. Wrapped table text is folded back
// into the line above it (see appendLine).
func assembleLines(glyphs []glyph) []string {
	if len(glyphs) == 0 {
		return nil
	}

	sorted := append([]glyph(nil), glyphs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var rows [][]cell
	var line []glyph
	for _, g := range sorted {
		if len(line) > 0 && math.Abs(line[0].Y-g.Y) > lineTolerance(line[0], g) {
			rows = appendLine(rows, splitCells(line))
			line = nil
		}
		line = append(line, g)
	}
	if len(line) > 0 {
		rows = appendLine(rows, splitCells(line))
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		parts := make([]string, len(r))
		for i, c := range r {
			parts[i] = c.S
		}
		lines = append(lines, strings.Join(parts, ColumnGap))
	}
	return lines
}

func lineTolerance(a, b glyph) float64 {
	size := math.Max(a.FontSize, b.FontSize)
	if size <= 0 {
		size = 10
	}
	return size / 3
}

// cell is one column of a line and the x position it starts at.
type cell struct {
	X float64
	S string
}

// alignTolerance is how far apart two cell starts may be and still count as
// the same column.
const alignTolerance = 1.0

// appendLine adds line to rows unless it continues wrapped cells of the row
// above: it starts right of that row's first cell and every one of its cells
// starts where a cell of the row above does. Continuations are appended to
// those cells after a space.
func appendLine(rows [][]cell, line []cell) [][]cell {
	if len(rows) == 0 || len(line) == 0 {
		return append(rows, line)
	}
	prev := rows[len(rows)-1]
	if len(prev) < 2 || line[0].X <= prev[0].X+alignTolerance {
		return append(rows, line)
	}

	targets := make([]int, len(line))
	for i, c := range line {
		targets[i] = -1
		for j, p := range prev {
			if math.Abs(p.X-c.X) <= alignTolerance {
				targets[i] = j
				break
			}
		}
		if targets[i] < 0 {
			return append(rows, line)
		}
	}
	for i, c := range line {
		prev[targets[i]].S += " " + c.S
	}
	return rows
}

func splitCells(line []glyph) []cell {
	sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })

	var cells []cell
	var b strings.Builder
	start := line[0].X
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			cells = append(cells, cell{X: start, S: s})
		}
		b.Reset()
	}
	for i, g := range line {
		if i > 0 {
			prev := line[i-1]
			size := prev.FontSize
			if size <= 0 {
				size = 10
			}
			gap := g.X - (prev.X + width(prev))
			switch {
			case gap > size:
				flush()
				start = g.X
			case gap > size*0.2 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " "):
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
	}
	flush()
	return cells
}

// width falls back to an average glyph width when the font carries no
// metrics.
func width(g glyph) float64 {
	if g.W > 0 {
		return g.W
	}
	size := g.FontSize
	if size <= 0 {
		size = 10
	}
	return size * 0.5 * float64(len([]rune(g.S)))
}
