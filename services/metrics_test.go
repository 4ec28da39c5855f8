package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commodity-prices/config"
	"commodity-prices/models"
)

func newTestEngine() *MetricsEngine { return NewMetricsEngine(config.DefaultThresholds()) }

func rec(date, commodity, region string, price float64) models.Record {
	return models.Record{Date: day(date), Commodity: commodity, Region: region, Price: models.Float(price)}
}

// daily builds a beras/Aceh series starting at 2024-01-01, one row per day.
func daily(prices ...float64) *models.Table {
	t := models.NewTable()
	start := day("2024-01-01")
	for i, p := range prices {
		t.Rows = append(t.Rows, models.Record{
			Date: start.AddDate(0, 0, i), Commodity: "beras", Region: "Aceh", Price: models.Float(p),
		})
	}
	return t
}

func tableOf(rows ...models.Record) *models.Table {
	t := models.NewTable()
	t.Rows = rows
	return t
}

func TestLatestPrice(t *testing.T) {
	e := newTestEngine()
	tbl := tableOf(
		rec("2024-01-03", "beras", "Aceh", 20),
		rec("2024-01-02", "beras", "Aceh", 10),
		rec("2024-01-03", "beras", "Aceh", 30),
		rec("2024-01-09", "beras", "Bali", 99),
	)

	p, ok := e.LatestPrice(tbl, "beras", "Aceh")
	require.True(t, ok)
	assert.Equal(t, 20.0, p)

	_, ok = e.LatestPrice(tbl, "gula", "Aceh")
	assert.False(t, ok)
}

func TestPriceChange(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name   string
		rows   []models.Record
		window int
		want   models.Change
		ok     bool
	}{
		{"boundary", []models.Record{
			rec("2024-01-01", "beras", "Aceh", 100),
			rec("2024-01-11", "beras", "Aceh", 120),
		}, 7, models.Change{Abs: 20, Pct: 20}, true},
		{"falls back to earliest", []models.Record{
			rec("2024-01-06", "beras", "Aceh", 120),
			rec("2024-01-01", "beras", "Aceh", 100),
		}, 7, models.Change{Abs: 20, Pct: 20}, true},
		{"last at or before target", []models.Record{
			rec("2024-01-01", "beras", "Aceh", 100),
			rec("2024-01-04", "beras", "Aceh", 110),
			rec("2024-01-09", "beras", "Aceh", 120),
			rec("2024-01-11", "beras", "Aceh", 132),
		}, 7, models.Change{Abs: 22, Pct: 20}, true},
		{"rounded", []models.Record{
			rec("2024-01-01", "beras", "Aceh", 3),
			rec("2024-01-11", "beras", "Aceh", 4),
		}, 7, models.Change{Abs: 1, Pct: 33.33}, true},
		{"single observation", []models.Record{
			rec("2024-01-01", "beras", "Aceh", 3),
		}, 7, models.Change{}, false},
		{"zero reference", []models.Record{
			rec("2024-01-01", "beras", "Aceh", 0),
			rec("2024-01-11", "beras", "Aceh", 5),
		}, 7, models.Change{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.PriceChange(tableOf(tt.rows...), "beras", "Aceh", tt.window)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrendStatus(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		pct  *float64
		want models.Trend
	}{
		{models.Float(2.0), models.TrendStable},
		{models.Float(2.01), models.TrendRising},
		{models.Float(-2.0), models.TrendStable},
		{models.Float(-2.01), models.TrendFalling},
		{nil, models.TrendStable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.TrendStatus(tt.pct))
	}
}

func TestVolatility(t *testing.T) {
	e := newTestEngine()

	_, ok := e.Volatility(daily(100, 102, 101, 103), "beras", "Aceh", 30)
	assert.False(t, ok, "four observations are not enough")

	v, ok := e.Volatility(daily(100, 102, 101, 103, 104), "beras", "Aceh", 30)
	require.True(t, ok)
	assert.Equal(t, 1.4, v)

	flat, ok := e.Volatility(daily(100, 100, 100, 100, 100), "beras", "Aceh", 30)
	require.True(t, ok)
	assert.Equal(t, 0.0, flat)
}

func TestVolatilityUsesTrailingWindow(t *testing.T) {
	e := newTestEngine()
	tbl := models.NewTable()
	start := day("2024-01-01")
	for i := 0; i < 5; i++ {
		tbl.Rows = append(tbl.Rows, models.Record{Date: start.AddDate(0, 0, i), Commodity: "beras", Region: "Aceh", Price: models.Float(50)})
	}
	for i, p := range []float64{100, 102, 101, 103} {
		tbl.Rows = append(tbl.Rows, models.Record{Date: start.AddDate(0, 0, 60+i), Commodity: "beras", Region: "Aceh", Price: models.Float(p)})
	}

	_, ok := e.Volatility(tbl, "beras", "Aceh", 30)
	assert.False(t, ok, "only four observations fall inside the window")

	_, ok = e.Volatility(tbl, "beras", "Aceh", 90)
	assert.True(t, ok)
}

func TestKPISummary(t *testing.T) {
	e := newTestEngine()
	tbl := daily(100, 101, 102, 103, 104, 105, 106, 107, 108, 110)

	kpi := e.KPISummary(tbl, "beras", "Aceh")
	require.NotNil(t, kpi.LatestPrice)
	assert.Equal(t, 110.0, *kpi.LatestPrice)
	require.NotNil(t, kpi.Change7dPct)
	// reference is day 2 (102)
	assert.Equal(t, 8.0, *kpi.Change7dAbs)
	assert.Equal(t, 7.84, *kpi.Change7dPct)
	assert.Equal(t, 10.0, *kpi.Change30dPct)
	assert.Equal(t, models.TrendRising, kpi.TrendStatus)
	assert.NotNil(t, kpi.Volatility)

	empty := e.KPISummary(models.NewTable(), "beras", "Aceh")
	assert.Nil(t, empty.LatestPrice)
	assert.Nil(t, empty.Volatility)
	assert.Equal(t, models.TrendStable, empty.TrendStatus)
}

func TestDetectAnomaliesThreshold(t *testing.T) {
	e := newTestEngine()

	exact := e.DetectAnomalies(daily(100, 110, 110), "beras", "Aceh", AnomalyThreshold)
	require.Len(t, exact, 3)
	assert.Nil(t, exact[0].ChangePct)
	require.NotNil(t, exact[1].ChangePct)
	assert.Equal(t, 10.0, *exact[1].ChangePct)
	assert.False(t, exact[1].IsAnomaly, "a change of exactly ten percent is not an anomaly")

	above := e.DetectAnomalies(daily(100, 110.01, 110.01), "beras", "Aceh", AnomalyThreshold)
	assert.True(t, above[1].IsAnomaly)
	assert.False(t, above[2].IsAnomaly)

	drop := e.DetectAnomalies(daily(100, 85, 85), "beras", "Aceh", AnomalyThreshold)
	assert.True(t, drop[1].IsAnomaly)
}

func TestDetectAnomaliesFromZeroPrice(t *testing.T) {
	e := newTestEngine()

	pts := e.DetectAnomalies(daily(100, 0, 0, 50, 51), "beras", "Aceh", AnomalyThreshold)
	require.Len(t, pts, 5)
	assert.True(t, pts[1].IsAnomaly, "drop to zero")
	assert.Nil(t, pts[2].ChangePct)
	assert.False(t, pts[2].IsAnomaly, "zero to zero is undefined, not a move")
	assert.Nil(t, pts[3].ChangePct)
	assert.True(t, pts[3].IsAnomaly, "rise from zero")
	assert.False(t, pts[4].IsAnomaly)

	std := e.DetectAnomalies(daily(100, 0, 0, 50, 51), "beras", "Aceh", AnomalyStd)
	assert.False(t, std[3].IsAnomaly)
}

func TestDetectAnomaliesShortSeries(t *testing.T) {
	e := newTestEngine()

	pts := e.DetectAnomalies(daily(100, 200), "beras", "Aceh", AnomalyThreshold)
	require.Len(t, pts, 2)
	for _, p := range pts {
		assert.Nil(t, p.ChangePct)
		assert.False(t, p.IsAnomaly)
	}
}

func TestDetectAnomaliesStd(t *testing.T) {
	e := newTestEngine()

	pts := e.DetectAnomalies(daily(100, 101, 102, 103, 104, 105, 150, 151), "beras", "Aceh", AnomalyStd)
	var flagged []int
	for i, p := range pts {
		if p.IsAnomaly {
			flagged = append(flagged, i)
		}
	}
	assert.Equal(t, []int{6}, flagged)
}

func TestParseAnomalyMethod(t *testing.T) {
	m, err := ParseAnomalyMethod("STD")
	require.NoError(t, err)
	assert.Equal(t, AnomalyStd, m)

	m, err = ParseAnomalyMethod("")
	require.NoError(t, err)
	assert.Equal(t, AnomalyThreshold, m)

	_, err = ParseAnomalyMethod("zscore")
	assert.Error(t, err)
}

func TestMovingAverage(t *testing.T) {
	e := newTestEngine()

	pts := e.MovingAverage(daily(1, 2, 3, 4), "beras", "Aceh", 3)
	require.Len(t, pts, 4)
	assert.Nil(t, pts[0].MA)
	assert.Nil(t, pts[1].MA)
	assert.Equal(t, 2.0, *pts[2].MA)
	assert.Equal(t, 3.0, *pts[3].MA)
}

func TestPriceAtDate(t *testing.T) {
	e := newTestEngine()
	tbl := tableOf(
		rec("2024-01-01", "beras", "Aceh", 10),
		rec("2024-01-10", "beras", "Aceh", 20),
	)

	p, ok := e.PriceAtDate(tbl, "beras", "Aceh", day("2024-01-03"))
	require.True(t, ok)
	assert.Equal(t, 10.0, p)

	p, ok = e.PriceAtDate(tbl, "beras", "Aceh", day("2024-01-08").Add(15*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 20.0, p)

	_, ok = e.PriceAtDate(tbl, "beras", "Aceh", day("2024-01-05"))
	assert.False(t, ok)
}

func TestResampleWeekly(t *testing.T) {
	e := newTestEngine()
	tbl := tableOf(
		rec("2024-01-01", "beras", "Aceh", 10),
		rec("2024-01-02", "beras", "Aceh", 12),
		rec("2024-01-16", "beras", "Aceh", 20),
	)

	weeks := e.ResampleWeekly(tbl, "beras", "Aceh")
	require.Len(t, weeks, 3)
	assert.Equal(t, day("2024-01-07"), weeks[0].Date)
	assert.Equal(t, 11.0, *weeks[0].Price)
	assert.Equal(t, day("2024-01-14"), weeks[1].Date)
	assert.Nil(t, weeks[1].Price)
	assert.Equal(t, day("2024-01-21"), weeks[2].Date)
	assert.Equal(t, 20.0, *weeks[2].Price)

	assert.Nil(t, e.ResampleWeekly(tbl, "gula", "Aceh"))
}
