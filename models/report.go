package models

import "time"

// Trend is the coarse three-way classification of short-term movement.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Change is a windowed price change.
type Change struct {
	Abs float64 `json:"abs"`
	Pct float64 `json:"pct"`
}

// KPISummary bundles the headline metrics for one commodity/region pair.
// Nil fields mean there was not enough data to compute them.
type KPISummary struct {
	LatestPrice  *float64 `json:"latest_price"`
	Change7dAbs  *float64 `json:"change_7d_abs"`
	Change7dPct  *float64 `json:"change_7d_pct"`
	Change30dAbs *float64 `json:"change_30d_abs"`
	Change30dPct *float64 `json:"change_30d_pct"`
	TrendStatus  Trend    `json:"trend_status"`
	Volatility   *float64 `json:"volatility"`
}

// AnomalyPoint is one observation of an anomaly scan. ChangePct is nil for
// the first observation and for series too short to evaluate.
type AnomalyPoint struct {
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	ChangePct *float64  `json:"daily_change_pct"`
	IsAnomaly bool      `json:"is_anomaly"`
}

// RegionChange is a region with its windowed percentage change.
type RegionChange struct {
	Region    string  `json:"region"`
	ChangePct float64 `json:"change_pct"`
}

// Movers holds the top gainers (descending) and losers (ascending).
type Movers struct {
	Gainers []RegionChange `json:"gainers"`
	Losers  []RegionChange `json:"losers"`
}

// RegionPrice is a region with its latest observed price.
type RegionPrice struct {
	Region string  `json:"region"`
	Price  float64 `json:"price"`
}

// Ranking holds the highest- and lowest-priced regions.
type Ranking struct {
	Highest []RegionPrice `json:"highest"`
	Lowest  []RegionPrice `json:"lowest"`
}

// DateRange is an inclusive window of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the window.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// RegionVolatility pairs a region's average price with its volatility.
type RegionVolatility struct {
	Region     string  `json:"region"`
	AvgPrice   float64 `json:"avg_price"`
	Volatility float64 `json:"volatility"`
}

// CommoditySummaryRow is one line of a multi-commodity comparison.
type CommoditySummaryRow struct {
	Commodity    string   `json:"commodity"`
	LatestPrice  *float64 `json:"latest_price"`
	Change7dPct  *float64 `json:"change_7d_pct"`
	Change30dPct *float64 `json:"change_30d_pct"`
	Volatility   *float64 `json:"volatility"`
	Status       Trend    `json:"status"`
}

// CommodityChange is a commodity with its windowed percentage change.
type CommodityChange struct {
	Commodity string   `json:"commodity"`
	ChangePct *float64 `json:"change_pct"`
}

// MAPoint is an observation with its trailing moving average.
type MAPoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
	MA    *float64  `json:"ma"`
}

// QualityRange is the global min/max date of a table as ISO strings.
type QualityRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// QualityStats is a read-only completeness snapshot of a canonical table.
type QualityStats struct {
	TotalRows     int                `json:"total_rows"`
	MissingCounts map[string]int     `json:"missing_counts"`
	MissingPcts   map[string]float64 `json:"missing_pcts"`
	DateRange     *QualityRange      `json:"date_range"`
	Commodities   []string           `json:"commodities"`
	Regions       []string           `json:"regions"`
	Completeness  float64            `json:"completeness"`
	PriceMin      *float64           `json:"price_min"`
	PriceMax      *float64           `json:"price_max"`
	PriceMean     *float64           `json:"price_mean"`
}

// DataInfo describes where a batch of commodity files came from.
type DataInfo struct {
	Source      string   `json:"source"`
	Path        string   `json:"path"`
	Commodities []string `json:"commodities"`
	FileCount   int      `json:"file_count"`
	IsValid     bool     `json:"is_valid"`
	Issues      []string `json:"issues"`
}

// InsightReport is the printable summary of one commodity/region slice.
type InsightReport struct {
	Commodity    string       `json:"commodity"`
	Region       string       `json:"region"`
	KPI          KPISummary   `json:"kpi"`
	Insights     []string     `json:"insights"`
	AnomalyCount int          `json:"anomaly_count"`
	Movers       Movers       `json:"movers"`
	Quality      QualityStats `json:"quality"`
}
