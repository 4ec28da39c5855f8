package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawTable is an unprocessed tabular source exactly as loaded from a file or
// database. Cells hold nil (missing), string, float64, int64, bool or
// time.Time values. It is owned by the ingestion stage and discarded once the
// table has been canonicalized.
type RawTable struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of the named column.
func (t *RawTable) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Values returns the cells of column idx, padding short rows with nil.
func (t *RawTable) Values(idx int) []any {
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// Empty reports whether the table has no columns or no rows.
func (t *RawTable) Empty() bool {
	return t == nil || len(t.Columns) == 0 || len(t.Rows) == 0
}

// Record is one canonical observation. A zero Date or a nil Price marks a
// missing value; canonical tables never retain either.
type Record struct {
	Date      time.Time
	Commodity string
	Region    string
	Price     *float64
}

// HasDate reports whether the record carries a parsed date.
func (r Record) HasDate() bool { return !r.Date.IsZero() }

// HasPrice reports whether the record carries a parsed price.
func (r Record) HasPrice() bool { return r.Price != nil }

type recordJSON struct {
	Date      string   `json:"date"`
	Commodity string   `json:"commodity"`
	Region    string   `json:"region"`
	Price     *float64 `json:"price"`
}

// MarshalJSON encodes the date as an ISO 8601 calendar date.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{Commodity: r.Commodity, Region: r.Region, Price: r.Price}
	if r.HasDate() {
		out.Date = r.Date.Format(ISODate)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a record produced by MarshalJSON.
func (r *Record) UnmarshalJSON(b []byte) error {
	var in recordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = Record{Commodity: in.Commodity, Region: in.Region, Price: in.Price}
	if in.Date != "" {
		d, err := time.Parse(ISODate, in.Date)
		if err != nil {
			return fmt.Errorf("record: parse date %q: %w", in.Date, err)
		}
		r.Date = d
	}
	return nil
}

// Table is the canonical long-format price table. Columns records which
// canonical columns the producing stage could populate.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// NewTable returns an empty table exposing every canonical column.
func NewTable() *Table {
	cols := make([]string, len(CanonicalColumns))
	copy(cols, CanonicalColumns)
	return &Table{Columns: cols, Rows: []Record{}}
}

// HasColumn reports whether the named column is present.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Float returns a pointer to v, for populating nullable fields.
func Float(v float64) *float64 { return &v }
