package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"commodity-prices/models"
)

// Layout is the shape of a raw source table.
type Layout int

const (
	// LayoutLong has one row per observation with explicit price and
	// optional region columns.
	LayoutLong Layout = iota
	// LayoutWide has one date column and one price column per region.
	LayoutWide
)

func (l Layout) String() string {
	if l == LayoutWide {
		return "wide"
	}
	return "long"
}

// ScanStrategy controls how much of a table DetectLayout inspects.
type ScanStrategy int

const (
	// ScanSample probes the first five candidate columns using up to ten
	// non-null values each.
	ScanSample ScanStrategy = iota
	// ScanFull probes every candidate column using all of its values.
	ScanFull
)

// ParseScanStrategy maps a config value to a strategy. Anything but "full"
// selects ScanSample.
func ParseScanStrategy(s string) ScanStrategy {
	if strings.EqualFold(strings.TrimSpace(s), "full") {
		return ScanFull
	}
	return ScanSample
}

const (
	minRegionColumns = 3
	sampleColumns    = 5
	sampleValues     = 10
	minNumericProbes = 3
)

// normalizeName folds a header for comparison: trimmed, lower-case and
// without diacritics.
func normalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func isNonRegion(name string) bool {
	n := normalizeName(name)
	for _, c := range models.NonRegionColumns {
		if n == c {
			return true
		}
	}
	return false
}

func matchesHint(name string, hints []string) bool {
	n := normalizeName(name)
	for _, h := range hints {
		if strings.Contains(n, h) {
			return true
		}
	}
	return false
}

// IdentifyDateColumn finds the date axis of a raw table. Header names in
// models.DatePatterns win in pattern order; otherwise the first column is
// used when its first ten non-null values all parse as dates.
func IdentifyDateColumn(t *models.RawTable) (string, bool) {
	if t == nil || len(t.Columns) == 0 {
		return "", false
	}
	for _, pattern := range models.DatePatterns {
		for _, col := range t.Columns {
			if normalizeName(col) == pattern {
				return col, true
			}
		}
	}

	first := nonNull(t.Values(0), sampleValues)
	if looksLikeDates(first) {
		return t.Columns[0], true
	}
	return "", false
}

// DetectLayout classifies a raw table as wide or long. Columns other than
// dateCol and the well-known non-region headers are candidate regions; a
// table needs at least three of them, and at least three probed columns
// that contain a parseable price, to count as wide.
func DetectLayout(t *models.RawTable, dateCol string, strategy ScanStrategy, notation PriceNotation) Layout {
	var candidates []int
	for i, col := range t.Columns {
		if col == dateCol || isNonRegion(col) {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) < minRegionColumns {
		return LayoutLong
	}

	limit := 0
	if strategy == ScanSample {
		if len(candidates) > sampleColumns {
			candidates = candidates[:sampleColumns]
		}
		limit = sampleValues
	}

	numeric := 0
	for _, idx := range candidates {
		for _, v := range nonNull(t.Values(idx), limit) {
			if _, ok := ParsePriceValueWith(v, notation); ok {
				numeric++
				break
			}
		}
	}
	if numeric >= minNumericProbes {
		return LayoutWide
	}
	return LayoutLong
}
