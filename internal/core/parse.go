package core

// parse.go turns uploaded bytes into ordered RawRows.
//
// Delimited text is tokenized with encoding/csv, which understands quoted
// fields, so a value containing the delimiter stays in its own column.
// Workbooks are read with excelize; only the first sheet is used.
//
// In both cases the first non-blank line is the header and every later
// non-blank line becomes one RawRow. Ordinals count data rows only, starting
// at 1, so "row 1" is the first row under the header.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParsedFile is the output of the row parser.
type ParsedFile struct {
	Kind    SourceKind
	Headers []string // Normalized header names, in column order
	Rows    []RawRow
}

// fileFormat describes a supported upload extension.
type fileFormat struct {
	kind  SourceKind
	comma rune
}

var fileFormats = map[string]fileFormat{
	".csv":  {kind: SourceDelimited, comma: ','},
	".txt":  {kind: SourceDelimited, comma: ','},
	".tsv":  {kind: SourceDelimited, comma: '\t'},
	".xlsx": {kind: SourceSpreadsheet},
}

// DetectSourceKind returns the source kind for a file name.
func DetectSourceKind(fileName string) (SourceKind, error) {
	f, ok := fileFormats[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	return f.kind, nil
}

// ParseFile parses an uploaded file. On failure no rows are returned; the
// error wraps ErrUnsupportedFormat or ErrParse.
func ParseFile(fileName string, data []byte) (*ParsedFile, error) {
	format, ok := fileFormats[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}

	var (
		records [][]string
		err     error
	)
	switch format.kind {
	case SourceSpreadsheet:
		records, err = readWorkbook(data)
	default:
		records, err = readDelimited(data, format.comma)
	}
	if err != nil {
		return nil, err
	}

	headers, rows := buildRows(records)
	if headers == nil {
		return nil, fmt.Errorf("%w: header row not found", ErrParse)
	}

	return &ParsedFile{
		Kind:    format.kind,
		Headers: headers,
		Rows:    rows,
	}, nil
}

// readDelimited tokenizes delimited text.
func readDelimited(data []byte, comma rune) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: binary content", ErrParse)
	}
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return records, nil
}

// readWorkbook reads the first sheet of an XLSX workbook.
func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrParse, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrParse, sheets[0], err)
	}
	return rows, nil
}

// buildRows splits records into a header and keyed data rows. Returns nil
// headers when every record is blank.
func buildRows(records [][]string) ([]string, []RawRow) {
	var (
		headers []string
		rows    []RawRow
	)

	for _, record := range records {
		if isEmptyRow(record) {
			continue
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i, h := range record {
				headers[i] = NormalizeHeader(h)
			}
			continue
		}

		fields := make(map[string]string, len(headers))
		for i, name := range headers {
			if name == "" || i >= len(record) {
				continue
			}
			if _, dup := fields[name]; dup {
				continue // first column with a given name wins
			}
			fields[name] = record[i]
		}
		rows = append(rows, RawRow{
			Ordinal: len(rows) + 1,
			Fields:  fields,
		})
	}

	return headers, rows
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
