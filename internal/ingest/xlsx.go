// Package ingest reads uploaded spreadsheets, PDFs and text files into the
// plain rows and lines the module mapper understands.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrInvalidSpreadsheet wraps workbook decode failures.
	ErrInvalidSpreadsheet = errors.New("invalid spreadsheet")

	// ErrInvalidPDF wraps PDF decode failures.
	ErrInvalidPDF = errors.New("invalid pdf")

	// ErrEmptyFile is returned for inputs with no header or no data.
	ErrEmptyFile = errors.New("empty file")
)

// ReadSpreadsheet reads the first sheet of an xlsx workbook. The first
// non-blank row is the header; every later row becomes a header -> cell map.
// Cells are read raw so date serials reach the mapper unformatted. Rows keep
// their position, so row i of the result is sheet row headerRow+1+i.
func ReadSpreadsheet(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpreadsheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	grid, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidSpreadsheet, sheets[0], err)
	}

	start := -1
	for i, row := range grid {
		if !blank(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(grid[start]))
	for i, h := range grid[start] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]map[string]string, 0, len(grid)-start-1)
	for _, cells := range grid[start+1:] {
		row := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" || i >= len(cells) {
				continue
			}
			row[h] = cells[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
