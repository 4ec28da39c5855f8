package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"commodity-prices/models"
)

// CSVWriter writes canonical price tables to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(models.CanonicalColumns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends every row of t.
func (c *CSVWriter) Write(t *models.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeRecords(c.writer, t); err != nil {
		return err
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// WriteCanonicalCSV streams t as CSV, header included.
func WriteCanonicalCSV(w io.Writer, t *models.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.CanonicalColumns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	if err := writeRecords(cw, t); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV streams a commodity comparison as CSV.
func WriteSummaryCSV(w io.Writer, rows []models.CommoditySummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"commodity", "latest_price", "change_7d_pct", "change_30d_pct", "volatility", "status",
	}); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Commodity,
			formatFloat(r.LatestPrice),
			formatFloat(r.Change7dPct),
			formatFloat(r.Change30dPct),
			formatFloat(r.Volatility),
			string(r.Status),
		}); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRecords(cw *csv.Writer, t *models.Table) error {
	if t == nil {
		return nil
	}
	for _, r := range t.Rows {
		date := ""
		if r.HasDate() {
			date = r.Date.Format(models.ISODate)
		}
		if err := cw.Write([]string{date, r.Commodity, r.Region, formatFloat(r.Price)}); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	return nil
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
