package services

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"commodity-prices/config"
	"commodity-prices/models"
)

// MetricsEngine computes read-only analytics over a canonical table. Every
// method filters by commodity and region and returns an explicit "no value"
// instead of failing when data is insufficient.
type MetricsEngine struct {
	th config.Thresholds
}

// NewMetricsEngine creates an engine using the given heuristics.
func NewMetricsEngine(th config.Thresholds) *MetricsEngine {
	return &MetricsEngine{th: th}
}

// Thresholds returns the heuristics the engine was built with.
func (e *MetricsEngine) Thresholds() config.Thresholds { return e.th }

type observation struct {
	date  time.Time
	price float64
}

// series returns the priced rows of a commodity/region slice in table order.
func series(t *models.Table, commodity, region string) []observation {
	if t == nil {
		return nil
	}
	var out []observation
	for _, r := range t.Rows {
		if r.Commodity != commodity || r.Region != region || !r.HasDate() || r.Price == nil {
			continue
		}
		out = append(out, observation{date: r.Date, price: *r.Price})
	}
	return out
}

// sortedSeries is series stably ordered by date.
func sortedSeries(t *models.Table, commodity, region string) []observation {
	s := series(t, commodity, region)
	sort.SliceStable(s, func(i, j int) bool { return s[i].date.Before(s[j].date) })
	return s
}

func prices(s []observation) []float64 {
	out := make([]float64, len(s))
	for i, o := range s {
		out[i] = o.price
	}
	return out
}

// round2 rounds half away from zero to two decimal places.
func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// LatestPrice returns the price at the most recent date. When several rows
// share that date the first in table order wins.
func (e *MetricsEngine) LatestPrice(t *models.Table, commodity, region string) (float64, bool) {
	s := series(t, commodity, region)
	if len(s) == 0 {
		return 0, false
	}
	best := s[0]
	for _, o := range s[1:] {
		if o.date.After(best.date) {
			best = o
		}
	}
	return best.price, true
}

// PriceChange compares the latest price with the last price at or before
// latest date minus window days, falling back to the earliest observation.
func (e *MetricsEngine) PriceChange(t *models.Table, commodity, region string, window int) (models.Change, bool) {
	s := sortedSeries(t, commodity, region)
	if len(s) < 2 {
		return models.Change{}, false
	}
	latest := s[len(s)-1]
	target := latest.date.Add(-days(window))

	ref := s[0]
	for _, o := range s {
		if o.date.After(target) {
			break
		}
		ref = o
	}
	if ref.price == 0 {
		return models.Change{}, false
	}

	abs := latest.price - ref.price
	return models.Change{
		Abs: round2(abs),
		Pct: round2(abs / ref.price * 100),
	}, true
}

// TrendStatus classifies a short-window percentage change.
func (e *MetricsEngine) TrendStatus(pct *float64) models.Trend {
	switch {
	case pct == nil:
		return models.TrendStable
	case *pct > e.th.TrendRisingPct:
		return models.TrendRising
	case *pct < e.th.TrendFallingPct:
		return models.TrendFalling
	}
	return models.TrendStable
}

// Volatility is the sample standard deviation of simple returns inside the
// trailing window, in percent.
func (e *MetricsEngine) Volatility(t *models.Table, commodity, region string, window int) (float64, bool) {
	s := sortedSeries(t, commodity, region)
	if len(s) < e.th.MinVolatilityObs {
		return 0, false
	}
	recent := trailing(s, window)
	if len(recent) < e.th.MinVolatilityObs {
		return 0, false
	}

	returns := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		r := recent[i].price/recent[i-1].price - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	if len(returns) < e.th.MinVolatilityReturns {
		return 0, false
	}

	std := stat.StdDev(returns, nil) * 100
	if math.IsNaN(std) {
		return 0, false
	}
	return round2(std), true
}

// trailing keeps observations of a date-sorted series on or after the last
// date minus window days.
func trailing(s []observation, window int) []observation {
	if len(s) == 0 {
		return nil
	}
	cutoff := s[len(s)-1].date.Add(-days(window))
	i := sort.Search(len(s), func(i int) bool { return !s[i].date.Before(cutoff) })
	return s[i:]
}

// KPISummary bundles latest price, short and long window changes, trend and
// volatility.
func (e *MetricsEngine) KPISummary(t *models.Table, commodity, region string) models.KPISummary {
	var kpi models.KPISummary
	if p, ok := e.LatestPrice(t, commodity, region); ok {
		kpi.LatestPrice = models.Float(p)
	}
	if c, ok := e.PriceChange(t, commodity, region, e.th.ShortWindowDays); ok {
		kpi.Change7dAbs = models.Float(c.Abs)
		kpi.Change7dPct = models.Float(c.Pct)
	}
	if c, ok := e.PriceChange(t, commodity, region, e.th.LongWindowDays); ok {
		kpi.Change30dAbs = models.Float(c.Abs)
		kpi.Change30dPct = models.Float(c.Pct)
	}
	kpi.TrendStatus = e.TrendStatus(kpi.Change7dPct)
	if v, ok := e.Volatility(t, commodity, region, e.th.VolatilityWindowDays); ok {
		kpi.Volatility = models.Float(v)
	}
	return kpi
}

// MovingAverage returns every observation with the mean of the trailing
// window ending at it. The first window-1 points have no average.
func (e *MetricsEngine) MovingAverage(t *models.Table, commodity, region string, window int) []models.MAPoint {
	if window < 1 {
		window = 1
	}
	s := sortedSeries(t, commodity, region)
	out := make([]models.MAPoint, len(s))
	var sum float64
	for i, o := range s {
		out[i] = models.MAPoint{Date: o.date, Price: o.price}
		sum += o.price
		if i >= window {
			sum -= s[i-window].price
		}
		if i >= window-1 {
			out[i].MA = models.Float(sum / float64(window))
		}
	}
	return out
}

// PriceAtDate returns the price observed closest to target, provided it lies
// within the configured tolerance.
func (e *MetricsEngine) PriceAtDate(t *models.Table, commodity, region string, target time.Time) (float64, bool) {
	s := series(t, commodity, region)
	if len(s) == 0 {
		return 0, false
	}
	target = truncateToDate(target)
	best, bestDiff := s[0], absDuration(s[0].date.Sub(target))
	for _, o := range s[1:] {
		if d := absDuration(o.date.Sub(target)); d < bestDiff {
			best, bestDiff = o, d
		}
	}
	if bestDiff > days(e.th.PriceAtDateToleranceDays) {
		return 0, false
	}
	return best.price, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ResampleWeekly averages a slice into weeks ending on Sunday. Weeks without
// observations are kept with a nil price.
func (e *MetricsEngine) ResampleWeekly(t *models.Table, commodity, region string) []models.Record {
	s := sortedSeries(t, commodity, region)
	if len(s) == 0 {
		return nil
	}

	weekEnd := func(d time.Time) time.Time {
		return d.AddDate(0, 0, (7-int(d.Weekday()))%7)
	}
	first, last := weekEnd(s[0].date), weekEnd(s[len(s)-1].date)

	var out []models.Record
	i := 0
	for end := first; !end.After(last); end = end.AddDate(0, 0, 7) {
		var sum float64
		n := 0
		for ; i < len(s) && !s[i].date.After(end); i++ {
			sum += s[i].price
			n++
		}
		rec := models.Record{Date: end, Commodity: commodity, Region: region}
		if n > 0 {
			rec.Price = models.Float(sum / float64(n))
		}
		out = append(out, rec)
	}
	return out
}
