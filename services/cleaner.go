package services

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"commodity-prices/models"
	"commodity-prices/telemetry"
	"commodity-prices/utils"
)

// ErrNoPriceColumn is returned when a long-format source has no column whose
// name looks like a price.
var ErrNoPriceColumn = errors.New("no price column found")

// CleanerOptions tune format detection. The zero value selects European
// price notation and sampled layout detection.
type CleanerOptions struct {
	Notation PriceNotation
	Scan     ScanStrategy
}

// Cleaner turns raw commodity tables into the canonical long-format table.
type Cleaner struct {
	logger *utils.Logger
	opts   CleanerOptions
}

// NewCleaner creates a Cleaner with the given logger and options.
func NewCleaner(logger *utils.Logger, opts CleanerOptions) *Cleaner {
	if opts.Notation == "" {
		opts.Notation = NotationEuropean
	}
	return &Cleaner{logger: logger, opts: opts}
}

// ConvertWideToLong melts a wide table: every column except dateCol becomes
// a region. Output is column-major, all dates of the first region first.
// Unparseable prices are kept as nil.
func (c *Cleaner) ConvertWideToLong(raw *models.RawTable, dateCol, commodity string) *models.Table {
	out := models.NewTable()
	dateIdx, ok := raw.ColumnIndex(dateCol)
	if !ok {
		return out
	}
	dates := ParseDateColumn(raw.Values(dateIdx))

	for col, region := range raw.Columns {
		if col == dateIdx {
			continue
		}
		for i, v := range raw.Values(col) {
			out.Rows = append(out.Rows, models.Record{
				Date:      dates[i],
				Commodity: commodity,
				Region:    region,
				Price:     c.parsePrice(v),
			})
		}
	}
	return out
}

// ConvertLongFormat maps a long table onto the canonical schema. The price
// and region columns are the first non-date columns whose names contain one
// of the configured hints. Without a region column every row gets
// models.DefaultRegion; without a price column the price column is absent.
func (c *Cleaner) ConvertLongFormat(raw *models.RawTable, dateCol, commodity string) *models.Table {
	out := models.NewTable()
	dateIdx, ok := raw.ColumnIndex(dateCol)
	if !ok {
		return out
	}

	priceIdx, regionIdx := -1, -1
	for i, col := range raw.Columns {
		if i == dateIdx {
			continue
		}
		if priceIdx < 0 && matchesHint(col, models.PriceColumnHints) {
			priceIdx = i
		}
		if regionIdx < 0 && matchesHint(col, models.RegionColumnHints) {
			regionIdx = i
		}
	}

	if priceIdx < 0 {
		out.Columns = []string{models.ColDate, models.ColCommodity, models.ColRegion}
	}

	dates := ParseDateColumn(raw.Values(dateIdx))
	out.Rows = make([]models.Record, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		rec := models.Record{
			Date:      dates[i],
			Commodity: commodity,
			Region:    models.DefaultRegion,
		}
		if regionIdx >= 0 {
			rec.Region = cellString(cell(row, regionIdx))
		}
		if priceIdx >= 0 {
			rec.Price = c.parsePrice(cell(row, priceIdx))
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

// ProcessSingle canonicalizes one raw source named name. Rows missing a date
// or a price are dropped and the result is sorted by date. A source without
// an identifiable date column yields an empty table.
func (c *Cleaner) ProcessSingle(raw *models.RawTable, name string) (*models.Table, error) {
	if raw.Empty() {
		c.logger.Debug("[cleaner] %s: empty source", name)
		return models.NewTable(), nil
	}

	dateCol, ok := IdentifyDateColumn(raw)
	if !ok {
		c.logger.Warn("[cleaner] Could not identify date column in %s", name)
		return models.NewTable(), nil
	}

	var out *models.Table
	layout := DetectLayout(raw, dateCol, c.opts.Scan, c.opts.Notation)
	switch layout {
	case LayoutWide:
		out = c.ConvertWideToLong(raw, dateCol, name)
	default:
		out = c.ConvertLongFormat(raw, dateCol, name)
	}
	if !out.HasColumn(models.ColPrice) {
		return nil, fmt.Errorf("%s: %w", name, ErrNoPriceColumn)
	}

	parsed := len(out.Rows)
	kept := out.Rows[:0]
	for _, r := range out.Rows {
		if r.HasDate() && r.HasPrice() {
			kept = append(kept, r)
		}
	}
	out.Rows = kept
	sort.SliceStable(out.Rows, func(i, j int) bool {
		return out.Rows[i].Date.Before(out.Rows[j].Date)
	})

	telemetry.RecordRows("parsed", parsed)
	telemetry.RecordRows("dropped", parsed-len(out.Rows))
	c.logger.Debug("[cleaner] %s: %s layout, %d → %d rows", name, layout, parsed, len(out.Rows))
	return out, nil
}

// ProcessAll canonicalizes every source in sorted name order and concatenates
// the results. A failing source is logged and skipped; it never aborts the
// batch.
func (c *Cleaner) ProcessAll(raws map[string]*models.RawTable) *models.Table {
	start := time.Now()
	log := c.logger.With("run", uuid.NewString())

	names := make([]string, 0, len(raws))
	for name := range raws {
		names = append(names, name)
	}
	sort.Strings(names)

	result := models.NewTable()
	processed, failed := 0, 0
	for _, name := range names {
		tbl, err := c.processSafe(raws[name], name)
		if err != nil {
			log.Warn("[cleaner] Error processing %s: %v", name, err)
			telemetry.RecordSource("failed")
			failed++
			continue
		}
		if tbl.Len() == 0 {
			telemetry.RecordSource("skipped")
			continue
		}
		telemetry.RecordSource("processed")
		processed++
		result.Rows = append(result.Rows, tbl.Rows...)
	}

	for _, col := range models.CanonicalColumns {
		if !result.HasColumn(col) {
			panic(fmt.Sprintf("cleaner: canonical column %q missing from output", col))
		}
	}

	telemetry.RecordRows("canonical", result.Len())
	var stepErr error
	if failed > 0 {
		stepErr = fmt.Errorf("%d sources failed", failed)
	}
	telemetry.RecordStep("process_all", stepErr, time.Since(start))

	log.Info("[cleaner] Processed %d/%d sources → %d rows (failed %d)",
		processed, len(names), result.Len(), failed)
	return result
}

// processSafe runs ProcessSingle, turning a panic into an error.
func (c *Cleaner) processSafe(raw *models.RawTable, name string) (tbl *models.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return c.ProcessSingle(raw, name)
}

func (c *Cleaner) parsePrice(v any) *float64 {
	if f, ok := ParsePriceValueWith(v, c.opts.Notation); ok {
		return &f
	}
	return nil
}

// ValidateData checks a canonical table and returns whether it is valid along
// with human-readable issues. Missing columns are reported alone.
func ValidateData(t *models.Table) (bool, []string) {
	var issues []string
	if t == nil {
		t = &models.Table{}
	}

	for _, col := range models.CanonicalColumns {
		if !t.HasColumn(col) {
			issues = append(issues, fmt.Sprintf("Missing required column: %s", col))
		}
	}
	if len(issues) > 0 {
		return false, issues
	}

	allNull := true
	badDate, badPrice := false, false
	for _, r := range t.Rows {
		if !r.HasDate() {
			badDate = true
		}
		if r.Price != nil {
			allNull = false
			if math.IsNaN(*r.Price) || math.IsInf(*r.Price, 0) {
				badPrice = true
			}
		}
	}

	if badDate {
		issues = append(issues, "Date column contains unparsed values")
	}
	if badPrice {
		issues = append(issues, "Price column contains non-numeric values")
	}
	if len(t.Rows) == 0 {
		issues = append(issues, "Table is empty")
	}
	if allNull {
		issues = append(issues, "All price values are null")
	}
	return len(issues) == 0, issues
}

func cell(row []any, idx int) any {
	if idx < len(row) {
		return row[idx]
	}
	return nil
}

// cellString renders a raw cell as a label. Missing cells become "".
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(models.ISODate)
	}
	return fmt.Sprint(v)
}
