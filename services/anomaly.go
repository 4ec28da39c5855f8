package services

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"commodity-prices/models"
)

// AnomalyMethod selects the rule used to flag abnormal day-over-day moves.
type AnomalyMethod string

const (
	// AnomalyThreshold flags moves larger than a fixed percentage.
	AnomalyThreshold AnomalyMethod = "threshold"
	// AnomalyStd flags moves far from the mean move in standard deviations.
	AnomalyStd AnomalyMethod = "std"
)

// ParseAnomalyMethod validates a method name. An empty name selects
// AnomalyThreshold.
func ParseAnomalyMethod(s string) (AnomalyMethod, error) {
	switch m := AnomalyMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "", AnomalyThreshold:
		return AnomalyThreshold, nil
	case AnomalyStd:
		return AnomalyStd, nil
	default:
		return "", fmt.Errorf("unknown anomaly method %q", s)
	}
}

// DetectAnomalies annotates every observation of a date-sorted slice with its
// percentage change from the previous observation and an anomaly flag. Short
// series are returned unflagged and without changes.
func (e *MetricsEngine) DetectAnomalies(t *models.Table, commodity, region string, method AnomalyMethod) []models.AnomalyPoint {
	s := sortedSeries(t, commodity, region)
	out := make([]models.AnomalyPoint, len(s))
	for i, o := range s {
		out[i] = models.AnomalyPoint{Date: o.date, Price: o.price}
	}
	if len(s) < e.th.MinAnomalyObs {
		return out
	}

	var changes []float64
	unbounded := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		chg := (s[i].price - s[i-1].price) * 100 / s[i-1].price
		if math.IsInf(chg, 0) {
			unbounded[i] = true
			continue
		}
		if math.IsNaN(chg) {
			continue
		}
		out[i].ChangePct = models.Float(chg)
		changes = append(changes, chg)
	}

	switch method {
	case AnomalyStd:
		if len(changes) < 2 {
			return out
		}
		mean, std := stat.MeanStdDev(changes, nil)
		limit := e.th.AnomalyStdMultiplier * std
		for i := range out {
			if c := out[i].ChangePct; c != nil {
				out[i].IsAnomaly = math.Abs(*c-mean) > limit
			}
		}
	default:
		for i := range out {
			if c := out[i].ChangePct; c != nil {
				out[i].IsAnomaly = math.Abs(*c) > e.th.AnomalyThresholdPct
			}
			// a move away from zero has no finite percentage but always exceeds the threshold
			if unbounded[i] {
				out[i].IsAnomaly = true
			}
		}
	}
	return out
}
