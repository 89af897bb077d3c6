package core

// convert.go provides the cell coercions used by the field normalizer.
//
// These functions handle the messy reality of user-provided tabular data:
//   - Excel text formulas (="value") in file cells
//   - Percent signs and thousands separators in numbers
//   - Status labels typed with spaces or mixed case
//
// Each parse function reports ok=false instead of returning an error. A
// value that does not parse is not a failure at this stage; it becomes a
// validation finding later.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// thousandsRegex matches a number grouped with comma thousands separators.
// Any other comma, such as a decimal comma, leaves the value unparseable.
var thousandsRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// dateShapeRegex is the only accepted calendar-date shape.
var dateShapeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DateLayout is the layout for every date accepted and emitted by the importer.
const DateLayout = "2006-01-02"

// Excel serial numbers outside this window are not treated as dates.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

// ParseNumber parses a decimal number. A single trailing percent sign and
// comma thousands separators ("1,250.5") are tolerated.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if strings.Contains(s, ",") {
		if !thousandsRegex.MatchString(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" || !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseInteger parses a whole number. "3" and "3.0" are accepted, "3.5" is not.
// The second result reports whether s is numeric at all, so callers can tell
// "not a number" apart from "not an integer".
func ParseInteger(s string) (n int64, numeric bool, ok bool) {
	f, numeric := ParseNumber(s)
	if !numeric {
		return 0, false, false
	}
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, true, false
	}
	return int64(f), true, true
}

// ParseBool accepts "true" or "false" in any letter case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// ParseDate parses a calendar date in YYYY-MM-DD form. Both the shape and
// the calendar are checked, so "2025-02-30" is rejected.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !dateShapeRegex.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseExcelSerialDate converts a spreadsheet date serial (days since the
// 1900 epoch) to a calendar date. Workbooks store unformatted date cells
// this way.
func ParseExcelSerialDate(s string) (time.Time, bool) {
	f, ok := ParseNumber(s)
	if !ok || f < minExcelSerial || f > maxExcelSerial || strings.Contains(s, "%") {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// NormalizeEnum lowercases a label and folds spaces and hyphens into
// underscores, so "On Hold" and "on-hold" both become "on_hold".
func NormalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "_")
	return strings.ReplaceAll(s, "-", "_")
}

// NormalizeHeader turns a header cell into a catalog field name.
// "Project Name" and "project-name" both become "project_name".
func NormalizeHeader(s string) string {
	return NormalizeEnum(CleanCell(s))
}

// CleanCell trims a file cell and unwraps the ="..." text formula that
// spreadsheet exports use to keep leading zeros. Other characters, quotes
// included, are kept as typed.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

// FormatNumber renders a float without trailing zeros ("50", "4.5").
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
