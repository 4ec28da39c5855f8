package services

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"commodity-prices/models"
)

// regions lists the regions with priced rows for a commodity, in order of
// first appearance.
func regions(t *models.Table, commodity string) []string {
	if t == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, r := range t.Rows {
		if r.Commodity != commodity || r.Price == nil {
			continue
		}
		if _, ok := seen[r.Region]; ok {
			continue
		}
		seen[r.Region] = struct{}{}
		out = append(out, r.Region)
	}
	return out
}

// Regions is the exported form of regions, used by callers building region
// pickers.
func (e *MetricsEngine) Regions(t *models.Table, commodity string) []string {
	return regions(t, commodity)
}

// TopMovers ranks regions of a commodity by their windowed percentage change.
// Regions without a computable change are skipped.
func (e *MetricsEngine) TopMovers(t *models.Table, commodity string, window, topN int) models.Movers {
	var changes []models.RegionChange
	for _, region := range regions(t, commodity) {
		if c, ok := e.PriceChange(t, commodity, region, window); ok {
			changes = append(changes, models.RegionChange{Region: region, ChangePct: c.Pct})
		}
	}

	gainers := append([]models.RegionChange(nil), changes...)
	sort.SliceStable(gainers, func(i, j int) bool { return gainers[i].ChangePct > gainers[j].ChangePct })
	losers := append([]models.RegionChange(nil), changes...)
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].ChangePct < losers[j].ChangePct })

	return models.Movers{
		Gainers: head(gainers, topN),
		Losers:  head(losers, topN),
	}
}

// RegionalRanking ranks regions by the price at the most recent date of the
// commodity, optionally restricted to dateRange. Each region appears once,
// keeping its first row at that date.
func (e *MetricsEngine) RegionalRanking(t *models.Table, commodity string, dateRange *models.DateRange, topN int) models.Ranking {
	var rows []models.Record
	if t != nil {
		for _, r := range t.Rows {
			if r.Commodity != commodity || r.Price == nil || !r.HasDate() {
				continue
			}
			if dateRange != nil && !dateRange.Contains(r.Date) {
				continue
			}
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return models.Ranking{Highest: []models.RegionPrice{}, Lowest: []models.RegionPrice{}}
	}

	maxDate := rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.After(maxDate) {
			maxDate = r.Date
		}
	}

	seen := map[string]struct{}{}
	var latest []models.RegionPrice
	for _, r := range rows {
		if !r.Date.Equal(maxDate) {
			continue
		}
		if _, ok := seen[r.Region]; ok {
			continue
		}
		seen[r.Region] = struct{}{}
		latest = append(latest, models.RegionPrice{Region: r.Region, Price: *r.Price})
	}

	highest := append([]models.RegionPrice(nil), latest...)
	sort.SliceStable(highest, func(i, j int) bool { return highest[i].Price > highest[j].Price })
	lowest := append([]models.RegionPrice(nil), latest...)
	sort.SliceStable(lowest, func(i, j int) bool { return lowest[i].Price < lowest[j].Price })

	return models.Ranking{
		Highest: head(highest, topN),
		Lowest:  head(lowest, topN),
	}
}

// RegionalVolatility reports average price and volatility over the trailing
// window for every region with enough observations.
func (e *MetricsEngine) RegionalVolatility(t *models.Table, commodity string, window int) []models.RegionVolatility {
	out := []models.RegionVolatility{}
	for _, region := range regions(t, commodity) {
		recent := trailing(sortedSeries(t, commodity, region), window)
		if len(recent) < e.th.MinVolatilityObs {
			continue
		}
		vol, ok := e.Volatility(t, commodity, region, window)
		if !ok {
			continue
		}
		out = append(out, models.RegionVolatility{
			Region:     region,
			AvgPrice:   round2(stat.Mean(prices(recent), nil)),
			Volatility: vol,
		})
	}
	return out
}

// CommoditySummary builds one comparison row per commodity for region.
func (e *MetricsEngine) CommoditySummary(t *models.Table, commodities []string, region string) []models.CommoditySummaryRow {
	out := make([]models.CommoditySummaryRow, 0, len(commodities))
	for _, c := range commodities {
		kpi := e.KPISummary(t, c, region)
		out = append(out, models.CommoditySummaryRow{
			Commodity:    c,
			LatestPrice:  kpi.LatestPrice,
			Change7dPct:  kpi.Change7dPct,
			Change30dPct: kpi.Change30dPct,
			Volatility:   kpi.Volatility,
			Status:       kpi.TrendStatus,
		})
	}
	return out
}

// PriceChangeMatrix returns the windowed percentage change of each commodity
// in region. Commodities without a computable change carry a nil value.
func (e *MetricsEngine) PriceChangeMatrix(t *models.Table, commodities []string, region string, window int) []models.CommodityChange {
	out := make([]models.CommodityChange, 0, len(commodities))
	for _, c := range commodities {
		row := models.CommodityChange{Commodity: c}
		if chg, ok := e.PriceChange(t, c, region, window); ok {
			row.ChangePct = models.Float(chg.Pct)
		}
		out = append(out, row)
	}
	return out
}

func head[T any](s []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		s = s[:n]
	}
	if s == nil {
		return []T{}
	}
	return s
}
