package services

import (
	"sort"

	"commodity-prices/models"
)

// QualityStats summarizes completeness and coverage of a canonical table.
// An empty table yields zero counts and no date range.
func QualityStats(t *models.Table) models.QualityStats {
	stats := models.QualityStats{
		MissingCounts: map[string]int{},
		MissingPcts:   map[string]float64{},
		Commodities:   []string{},
		Regions:       []string{},
	}
	if t.Len() == 0 {
		return stats
	}

	n := len(t.Rows)
	stats.TotalRows = n

	minDate, maxDate := t.Rows[0].Date, t.Rows[0].Date
	hasDate := false
	commodities := map[string]struct{}{}
	regions := map[string]struct{}{}
	var sum float64
	priced, totalMissing := 0, 0

	for _, col := range t.Columns {
		stats.MissingCounts[col] = 0
	}

	for _, r := range t.Rows {
		if r.HasDate() {
			if !hasDate || r.Date.Before(minDate) {
				minDate = r.Date
			}
			if !hasDate || r.Date.After(maxDate) {
				maxDate = r.Date
			}
			hasDate = true
		} else {
			stats.MissingCounts[models.ColDate]++
		}
		if r.Commodity == "" {
			stats.MissingCounts[models.ColCommodity]++
		} else {
			commodities[r.Commodity] = struct{}{}
		}
		if r.Region == "" {
			stats.MissingCounts[models.ColRegion]++
		} else {
			regions[r.Region] = struct{}{}
		}
		if r.Price == nil {
			stats.MissingCounts[models.ColPrice]++
			continue
		}
		p := *r.Price
		if priced == 0 || p < *stats.PriceMin {
			stats.PriceMin = models.Float(p)
		}
		if priced == 0 || p > *stats.PriceMax {
			stats.PriceMax = models.Float(p)
		}
		sum += p
		priced++
	}

	for col, m := range stats.MissingCounts {
		if !t.HasColumn(col) {
			delete(stats.MissingCounts, col)
			continue
		}
		stats.MissingPcts[col] = round2(float64(m) / float64(n) * 100)
		totalMissing += m
	}

	if hasDate {
		stats.DateRange = &models.QualityRange{
			Min: minDate.Format(models.ISODate),
			Max: maxDate.Format(models.ISODate),
		}
	}
	stats.Commodities = sortedKeys(commodities)
	stats.Regions = sortedKeys(regions)

	cells := n * len(t.Columns)
	if cells > 0 {
		stats.Completeness = round2(100 - float64(totalMissing)/float64(cells)*100)
	}
	if priced > 0 {
		stats.PriceMean = models.Float(round2(sum / float64(priced)))
	}
	return stats
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
