package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/go-pdf/fpdf"
)

const (
	// PDFFileName is the download name of PDF exports.
	PDFFileName = "modules.pdf"

	// PDFContentType is the MIME type of PDF exports.
	PDFContentType = "application/pdf"

	// emptyCell stands in for blank values so columns stay aligned when the
	// PDF text is read back.
	emptyCell = "-"
)

// column widths in mm on landscape A4 (277mm printable)
var pdfWidths = []float64{28, 24, 28, 24, 28, 34, 45, 45, 21}

const (
	pdfLineHeight = 4.5
	// pdfCellPad is kept clear on both sides of wrapped text so neighbouring
	// columns stay further apart than a word space when read back.
	pdfCellPad = 2.0
)

// WritePDF writes modules to w as a landscape table with a header row
// repeated on every page. Long values wrap inside their cell; a row never
// splits across pages.
func WritePDF(w io.Writer, modules []core.Module, generated time.Time) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	labels := make([]string, len(core.ExportColumns))
	for i, col := range core.ExportColumns {
		labels[i] = col.Label
	}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Modules", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, "Generated "+generated.Format("02-Jan-06 15:04"), "", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		drawRow(pdf, wrapRow(pdf, tr, labels), true)
		pdf.SetFont("Helvetica", "", 8)
	})

	pdf.AddPage()
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, m := range modules {
		cells := make([]string, len(core.ExportColumns))
		for i, col := range core.ExportColumns {
			v := strings.Join(strings.Fields(Value(col.Field, m)), " ")
			if v == "" {
				v = emptyCell
			}
			cells[i] = v
		}
		lines := wrapRow(pdf, tr, cells)
		if pdf.GetY()+rowHeight(lines) > pageHeight-bottom {
			pdf.AddPage()
		}
		drawRow(pdf, lines, false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func wrapRow(pdf *fpdf.Fpdf, tr func(string) string, cells []string) [][]string {
	lines := make([][]string, len(cells))
	for i, c := range cells {
		lines[i] = wrap(pdf, tr(c), pdfWidths[i]-2*pdfCellPad)
	}
	return lines
}

func rowHeight(lines [][]string) float64 {
	n := 1
	for _, l := range lines {
		n = max(n, len(l))
	}
	return float64(n)*pdfLineHeight + 1.5
}

// drawRow draws one bordered table row at the current position. The first
// line of every cell shares a baseline and text starts pdfCellPad into the
// cell (1mm offset plus the 1mm cell margin).
func drawRow(pdf *fpdf.Fpdf, lines [][]string, fill bool) {
	left, _, _, _ := pdf.GetMargins()
	h := rowHeight(lines)
	x, y := left, pdf.GetY()
	style := "D"
	if fill {
		style = "FD"
	}
	for i, cell := range lines {
		pdf.Rect(x, y, pdfWidths[i], h, style)
		for k, l := range cell {
			pdf.SetXY(x+1, y+0.75+float64(k)*pdfLineHeight)
			pdf.CellFormat(pdfWidths[i]-2, pdfLineHeight, l, "", 0, "L", false, 0, "")
		}
		x += pdfWidths[i]
	}
	pdf.SetXY(left, y+h)
}

// wrap breaks s into lines no wider than width at the current font. Words
// wider than a line are broken between characters.
func wrap(pdf *fpdf.Fpdf, s string, width float64) []string {
	var lines []string
	var cur string
	for _, word := range strings.Split(s, " ") {
		next := word
		if cur != "" {
			next = cur + " " + word
		}
		if pdf.GetStringWidth(next) <= width {
			cur = next
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		cur = word
		for pdf.GetStringWidth(cur) > width && len(cur) > 1 {
			n := 1
			for n < len(cur) && pdf.GetStringWidth(cur[:n+1]) <= width {
				n++
			}
			lines = append(lines, cur[:n])
			cur = cur[n:]
		}
	}
	return append(lines, cur)
}
