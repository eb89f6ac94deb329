package core

// convert.go normalizes raw cell text coming from pasted text, spreadsheets
// and PDFs into the canonical string forms stored on a Module.
//
// Cell values are messy:
//   - dates arrive as spreadsheet serials, ISO strings, US/EU strings or
//     "15-Mar-23" style display values
//   - booleans arrive as yes/no, true/false, x, or a free-text "signed by" note
//   - Excel exports add formula prefixes (="value") and stray quotes
//
// None of these functions fail. Unparseable input degrades to the trimmed
// original text.

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical stored date format.
const DateLayout = "2006-01-02"

// excelEpochOffset is the number of days between the spreadsheet epoch and
// 1970-01-01.
const excelEpochOffset = 25569

// serialRange bounds the numbers treated as date serials (1900-01-01 through
// 2199-12-31). Anything outside is kept as text.
var serialRange = [2]float64{1, 109574}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
		"02-Jan-06", "2-Jan-06", "02 Jan 06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"02-Jan-2006", "2-Jan-2006",
		"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05",
		"20060102",
	}
)

// SerialToDate converts a spreadsheet date serial to YYYY-MM-DD.
// The fractional part (time of day) is dropped.
func SerialToDate(serial float64) string {
	secs := (serial - excelEpochOffset) * 86400
	return time.Unix(int64(math.Floor(secs)), 0).UTC().Format(DateLayout)
}

// DateToSerial is the inverse of SerialToDate for whole days.
func DateToSerial(date string) (float64, bool) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, false
	}
	return float64(t.Unix())/86400 + excelEpochOffset, true
}

// NormalizeDate converts a date cell to YYYY-MM-DD. Numeric serials and the
// known human layouts are converted; anything else is returned trimmed and
// unchanged.
func NormalizeDate(s string) string {
	s = CleanCell(s)
	if s == "" {
		return ""
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n >= serialRange[0] && n <= serialRange[1] && !strings.ContainsAny(s, "eE") {
			return SerialToDate(n)
		}
		if len(s) != 8 {
			return s
		}
	}

	if t, ok := parseDate(s); ok {
		return t.Format(DateLayout)
	}
	return s
}

// parseDate tries 4-digit year layouts first (unambiguous), then 2-digit year
// layouts with pivot adjustment.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseSigned interprets a signed-report cell. Explicit boolean tokens are
// honored; any other non-empty text (a legacy "signed by X on date" note)
// counts as signed. ok is false for an empty cell.
func ParseSigned(s string) (signed bool, ok bool) {
	s = strings.ToLower(CleanCell(s))
	switch s {
	case "":
		return false, false
	case "true", "t", "yes", "y", "1", "x", "signed", "\u2713":
		return true, true
	case "false", "f", "no", "n", "0", "-", "unsigned", "not signed":
		return false, true
	default:
		return true, true
	}
}

// FormatSigned renders a signed flag the way exports write it.
func FormatSigned(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// DisplayDate renders a stored date as dd-Mon-yy. Non-ISO values are shown
// as-is.
func DisplayDate(s string) string {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("02-Jan-06")
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace (including non-breaking spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	s = strings.TrimPrefix(s, "\ufeff")

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
