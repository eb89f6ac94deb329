package core

// mapper.go turns external rows into partial modules.
//
// Three input shapes reach the mapper:
//   - header -> cell maps (spreadsheet rows, pasted tab-separated text)
//   - single pasted values for one known column (column import)
//   - plain text lines reconstructed from PDF pages
//
// Header labels are resolved through a fixed synonym table. Legacy column
// names from older sheets (Shipment Date, Survey Status Yard/Island,
// Combined Report, Signed By, By Whom) are adapted here so nothing past
// the mapper sees them.

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Field names a canonical module column.
type Field string

const (
	FieldModuleNo     Field = "moduleNo"
	FieldYard         Field = "yard"
	FieldLocation     Field = "location"
	FieldRFLODate     Field = "rfloDate"
	FieldShipmentNo   Field = "shipmentNo"
	FieldStatus       Field = "rfloDateStatus"
	FieldYardReport   Field = "yardReport"
	FieldIslandReport Field = "islandReport"
	FieldSignedReport Field = "signedReport"
	FieldUpdatedBy    Field = "updatedBy"
)

// MinPDFColumns is the fewest columns a PDF text line needs to be read as a
// data row.
const MinPDFColumns = 3

// FieldSpec describes one importable column.
type FieldSpec struct {
	Field Field
	Label string // export header

	// synonyms are normalized header labels, highest priority first.
	synonyms []string
}

// Columns lists the importable/exportable columns in export order.
var Columns = []FieldSpec{
	{Field: FieldModuleNo, Label: "Module No.", synonyms: []string{"moduleno", "modulenumber", "modno", "module"}},
	{Field: FieldYard, Label: "Yard", synonyms: []string{"yard", "yardname"}},
	{Field: FieldLocation, Label: "Location", synonyms: []string{"location", "loc"}},
	{Field: FieldRFLODate, Label: "RFLO Date", synonyms: []string{"rflodate", "shipmentdate", "rflo"}},
	{Field: FieldShipmentNo, Label: "Shipment No#", synonyms: []string{"shipmentno", "shipmentnumber", "shipment"}},
	{Field: FieldStatus, Label: "RFLO Date Status", synonyms: []string{"rflodatestatus", "datestatus", "status"}},
	{Field: FieldYardReport, Label: "Yard Report", synonyms: []string{"yardreport", "surveystatusyard", "yardprogress", "combinedreport", "progressnotes"}},
	{Field: FieldIslandReport, Label: "Island Report", synonyms: []string{"islandreport", "surveystatusisland", "islandprogress"}},
	{Field: FieldSignedReport, Label: "Signed Report", synonyms: []string{"signedreport", "signed", "signedby"}},
	{Field: FieldUpdatedBy, Label: "Updated By", synonyms: []string{"updatedby", "bywhom"}},
}

// ExportColumns is the fixed column order used by exports and by PDF lines
// that carry no header.
var ExportColumns = Columns[:9]

var headerIndex = func() map[string]Field {
	idx := make(map[string]Field)
	for _, spec := range Columns {
		for _, syn := range spec.synonyms {
			idx[syn] = spec.Field
		}
		idx[normalizeHeader(string(spec.Field))] = spec.Field
	}
	return idx
}()

// normalizeHeader lowercases a header label and drops everything but
// letters and digits, so "Module No.", "MODULE NO" and "module_no" match.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(CleanCell(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveHeader maps a header label to its canonical field.
func ResolveHeader(h string) (Field, bool) {
	f, ok := headerIndex[normalizeHeader(h)]
	return f, ok
}

// LookupField returns the spec for a canonical field name or any synonym.
func LookupField(name string) (FieldSpec, bool) {
	f, ok := ResolveHeader(name)
	if !ok {
		return FieldSpec{}, false
	}
	for _, spec := range Columns {
		if spec.Field == f {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// Candidate is one mapped input row.
type Candidate struct {
	Line  int
	Patch Patch
}

// MapResult is the mapper's output for a whole input.
type MapResult struct {
	Candidates []Candidate
	Skipped    int
	Errors     []ImportError
}

// SetField writes one raw cell into p, normalizing dates, statuses and the
// signed flag. Blank cells set nothing.
func SetField(p *Patch, f Field, raw string, line int) *ImportError {
	v := CleanCell(raw)
	if v == "" {
		return nil
	}

	switch f {
	case FieldModuleNo:
		p.ModuleNo = Ptr(v)
	case FieldYard:
		p.Yard = Ptr(v)
	case FieldLocation:
		p.Location = Ptr(v)
	case FieldShipmentNo:
		p.ShipmentNo = Ptr(v)
	case FieldYardReport:
		p.YardReport = Ptr(v)
	case FieldIslandReport:
		p.IslandReport = Ptr(v)
	case FieldUpdatedBy:
		p.UpdatedBy = Ptr(v)
	case FieldRFLODate:
		d := NormalizeDate(v)
		p.RFLODate = Ptr(d)
		if _, ok := DateToSerial(d); !ok {
			return &ImportError{Line: line, ModuleNo: p.Key(), Field: string(f), Kind: KindParse,
				Message: fmt.Sprintf("unrecognized date %q kept as text", v)}
		}
	case FieldStatus:
		st, ierr := checkImportStatus(v, line, p.Key())
		p.Status = Ptr(st)
		if ierr != nil {
			return ierr
		}
	case FieldSignedReport:
		if b, ok := ParseSigned(v); ok {
			p.SignedReport = Ptr(b)
		}
	}
	return nil
}

// MapRow converts one header -> cell row. Headers that resolve to no field
// are ignored. When several headers resolve to the same field the highest
// priority synonym with a non-empty value wins.
func MapRow(row map[string]string, line int) (Patch, []ImportError) {
	byNorm := make(map[string]string, len(row))
	headers := make([]string, 0, len(row))
	for h := range row {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, h := range headers {
		n := normalizeHeader(h)
		if prev, seen := byNorm[n]; seen && CleanCell(prev) != "" {
			continue
		}
		byNorm[n] = row[h]
	}

	var p Patch
	var errs []ImportError
	values := make(map[Field]string, len(Columns))
	for _, spec := range Columns {
		names := append(append([]string{}, spec.synonyms...), normalizeHeader(string(spec.Field)))
		for _, name := range names {
			if v, ok := byNorm[name]; ok && CleanCell(v) != "" {
				values[spec.Field] = v
				break
			}
		}
	}

	// moduleNo first so later errors carry the key.
	for _, spec := range Columns {
		v, ok := values[spec.Field]
		if !ok {
			continue
		}
		if ierr := SetField(&p, spec.Field, v, line); ierr != nil {
			errs = append(errs, *ierr)
		}
	}
	return p, errs
}

// MapRows maps spreadsheet-style rows. Row i is reported as line i+2 since
// line 1 holds the header. Entirely blank rows are dropped.
func MapRows(rows []map[string]string) MapResult {
	var res MapResult
	for i, row := range rows {
		if blankRow(row) {
			continue
		}
		line := i + 2
		p, errs := MapRow(row, line)
		res.Errors = append(res.Errors, errs...)
		if p.IsEmpty() {
			res.Skipped++
			res.Errors = append(res.Errors, ImportError{Line: line, Kind: KindParse, Message: "no recognized columns"})
			continue
		}
		res.Candidates = append(res.Candidates, Candidate{Line: line, Patch: p})
	}
	return res
}

func blankRow(row map[string]string) bool {
	for _, v := range row {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}

var columnSplit = regexp.MustCompile(`\s{2,}`)

// SplitColumns splits a text line on runs of two or more whitespace
// characters, which is how tabular text survives PDF extraction.
func SplitColumns(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := columnSplit.Split(line, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitLines splits pasted text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ParseTabular reads pasted tabular text. The first non-empty line is the
// header. Cells are tab-separated; text without tabs falls back to the
// two-space rule.
func ParseTabular(text string) []map[string]string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var header []string
	var rows []map[string]string
	useTabs := strings.Contains(text, "\t")
	split := func(l string) []string {
		if useTabs {
			cells := strings.Split(l, "\t")
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
			return cells
		}
		return SplitColumns(l)
	}

	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if header != nil {
				rows = append(rows, map[string]string{})
			}
			continue
		}
		cells := split(l)
		if header == nil {
			header = cells
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(cells) {
				row[h] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// MapText maps pasted tabular text.
func MapText(text string) MapResult {
	return MapRows(ParseTabular(text))
}

// MapPDFText maps the page texts of a PDF. Each line is split into columns
// and needs at least MinPDFColumns of them. A line whose columns all
// resolve as header labels is not imported and sets the column order for
// the lines after it. Otherwise columns follow ExportColumns, so a data row
// whose first cell reads "Module" or "Status" is still imported. A cell holding only "-" is blank. Short lines are ignored
// without being counted as skipped.
func MapPDFText(pages []string) MapResult {
	var res MapResult
	order := make([]Field, len(ExportColumns))
	for i, spec := range ExportColumns {
		order[i] = spec.Field
	}

	line := 0
	for _, page := range pages {
		for _, text := range strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n") {
			line++
			cols := SplitColumns(text)
			if len(cols) == 0 {
				continue
			}
			if hdr, ok := headerOrder(cols); ok {
				order = hdr
				continue
			}
			if len(cols) < MinPDFColumns {
				// titles, page numbers and wrapped text
				continue
			}

			var p Patch
			for i, c := range cols {
				if i >= len(order) {
					break
				}
				if c == "-" {
					continue
				}
				if ierr := SetField(&p, order[i], c, line); ierr != nil {
					res.Errors = append(res.Errors, *ierr)
				}
			}
			if p.IsEmpty() {
				res.Skipped++
				continue
			}
			res.Candidates = append(res.Candidates, Candidate{Line: line, Patch: p})
		}
	}
	return res
}

func headerOrder(cols []string) ([]Field, bool) {
	if len(cols) < MinPDFColumns {
		return nil, false
	}
	order := make([]Field, len(cols))
	for i, c := range cols {
		f, ok := ResolveHeader(c)
		if !ok {
			return nil, false
		}
		order[i] = f
	}
	return order, true
}
