// Package export renders a module listing as a spreadsheet or a PDF table.
// Both use core.ExportColumns so an export can be imported again unchanged.
package export

import (
	"fmt"
	"io"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/xuri/excelize/v2"
)

const (
	// XLSXFileName is the download name of spreadsheet exports.
	XLSXFileName = "modules.xlsx"

	// XLSXContentType is the MIME type of spreadsheet exports.
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName  = "Modules"
	dateFormat = "yyyy-mm-dd"
)

// WriteXLSX writes modules to w as a single-sheet workbook. ISO dates are
// written as date serials with a date number format; anything else stays
// text.
func WriteXLSX(w io.Writer, modules []core.Module) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	numFmt := dateFormat
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("date style: %w", err)
	}

	for c, col := range core.ExportColumns {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellStr(sheetName, cell, col.Label); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(core.ExportColumns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for r, m := range modules {
		row := r + 2
		for c, col := range core.ExportColumns {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			if err := writeCell(f, cell, col.Field, m, dateStyle); err != nil {
				return fmt.Errorf("write %s row %d: %w", col.Label, row, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "I", 18); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeCell(f *excelize.File, cell string, field core.Field, m core.Module, dateStyle int) error {
	if field == core.FieldRFLODate {
		if serial, ok := core.DateToSerial(m.RFLODate); ok {
			if err := f.SetCellFloat(sheetName, cell, serial, -1, 64); err != nil {
				return err
			}
			return f.SetCellStyle(sheetName, cell, cell, dateStyle)
		}
	}
	v := Value(field, m)
	if v == "" {
		return nil
	}
	return f.SetCellStr(sheetName, cell, v)
}

// Value renders one field of m as export text.
func Value(field core.Field, m core.Module) string {
	switch field {
	case core.FieldModuleNo:
		return m.ModuleNo
	case core.FieldYard:
		return m.Yard
	case core.FieldLocation:
		return m.Location
	case core.FieldRFLODate:
		return m.RFLODate
	case core.FieldShipmentNo:
		return m.ShipmentNo
	case core.FieldStatus:
		return string(m.Status)
	case core.FieldYardReport:
		return m.YardReport
	case core.FieldIslandReport:
		return m.IslandReport
	case core.FieldSignedReport:
		return core.FormatSigned(m.SignedReport)
	case core.FieldUpdatedBy:
		return m.UpdatedBy
	}
	return ""
}
