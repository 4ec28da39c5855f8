package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"commodity-prices/models"
)

// ErrUndecodable is returned when no configured encoding can decode a file.
var ErrUndecodable = errors.New("could not decode file with any encoding")

// DefaultEncodings is the order in which CSV encodings are tried.
var DefaultEncodings = []string{"utf-8", "latin-1", "windows-1252"}

const utf8BOM = "\uFEFF"

// naTokens are cell values read as missing.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// decode converts data to UTF-8 using the named encoding. UTF-8 input must
// already be valid.
func decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "_", "-")) {
	case "utf-8", "utf8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid utf-8")
		}
		return string(data), nil
	case "latin-1", "latin1", "iso-8859-1":
		b, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		return string(b), err
	case "windows-1252", "cp1252":
		b, err := charmap.Windows1252.NewDecoder().Bytes(data)
		return string(b), err
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// ReadCSV loads a CSV file with a header row, trying each encoding in turn.
func ReadCSV(path string, encodings []string) (*models.RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("csv: read %q: %w", path, err)
	}
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}

	for _, enc := range encodings {
		text, err := decode(data, enc)
		if err != nil {
			continue
		}
		t, err := parseCSV(strings.NewReader(text))
		if err != nil {
			return nil, fmt.Errorf("csv: parse %q: %w", path, err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("csv: %q: %w", path, ErrUndecodable)
}

func parseCSV(r io.Reader) (*models.RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &models.RawTable{}, nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return buildTable(header, records[1:]), nil
}

// buildTable turns text rows into a raw table. NA tokens become nil and
// columns whose every value is numeric are stored as float64.
func buildTable(header []string, records [][]string) *models.RawTable {
	t := &models.RawTable{Columns: header, Rows: make([][]any, 0, len(records))}
	for _, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		row := make([]any, len(header))
		for i := range header {
			if i >= len(rec) {
				continue
			}
			if _, na := naTokens[strings.TrimSpace(rec[i])]; na {
				continue
			}
			row[i] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	inferNumeric(t)
	return t
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// inferNumeric converts every column whose non-null values all parse as
// plain numbers to float64.
func inferNumeric(t *models.RawTable) {
	for col := range t.Columns {
		numeric, seen := true, false
		for _, row := range t.Rows {
			s, ok := row[col].(string)
			if !ok {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				numeric = false
				break
			}
		}
		if !numeric || !seen {
			continue
		}
		for _, row := range t.Rows {
			if s, ok := row[col].(string); ok {
				row[col], _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
			}
		}
	}
}
