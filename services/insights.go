package services

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"commodity-prices/models"
	"commodity-prices/utils"
)

type InsightService struct {
	logger  *utils.Logger
	metrics *MetricsEngine
}

func NewInsightService(logger *utils.Logger, metrics *MetricsEngine) *InsightService {
	return &InsightService{logger: logger, metrics: metrics}
}

// AutoInsights produces short human-readable observations about a slice.
func (s *InsightService) AutoInsights(t *models.Table, commodity, region string) []string {
	th := s.metrics.Thresholds()
	kpi := s.metrics.KPISummary(t, commodity, region)
	insights := []string{}

	if kpi.Change7dPct != nil {
		pct := *kpi.Change7dPct
		direction := "decreased"
		if pct > 0 {
			direction = "increased"
		}
		insights = append(insights, fmt.Sprintf("Price %s %.1f%% in the last %d days.",
			direction, math.Abs(pct), th.ShortWindowDays))
	}

	obs := series(t, commodity, region)
	if len(obs) > 0 {
		peak := obs[0]
		var sum float64
		for _, o := range obs {
			if o.price > peak.price {
				peak = o
			}
			sum += o.price
		}
		insights = append(insights, fmt.Sprintf("Peak price Rp %s on %s.",
			humanize.Comma(int64(math.RoundToEven(peak.price))), peak.date.Format("02 Jan 2006")))

		avg := sum / float64(len(obs))
		if kpi.LatestPrice != nil && *kpi.LatestPrice != 0 && avg != 0 {
			diff := (*kpi.LatestPrice - avg) / avg * 100
			position := "below"
			if diff > 0 {
				position = "above"
			}
			insights = append(insights, fmt.Sprintf("Current price is %.1f%% %s average.",
				math.Abs(diff), position))
		}
	}

	if kpi.Volatility != nil {
		vol := *kpi.Volatility
		switch {
		case vol > th.HighVolatilityPct:
			insights = append(insights, fmt.Sprintf("High volatility (%.1f%%) - prices are fluctuating significantly.", vol))
		case vol < th.LowVolatilityPct:
			insights = append(insights, fmt.Sprintf("Low volatility (%.1f%%) - prices are relatively stable.", vol))
		}
	}
	return insights
}

// Generate collects KPIs, insights, anomaly count and regional movers for a
// commodity/region slice.
func (s *InsightService) Generate(t *models.Table, commodity, region string) *models.InsightReport {
	th := s.metrics.Thresholds()
	report := &models.InsightReport{
		Commodity: commodity,
		Region:    region,
		KPI:       s.metrics.KPISummary(t, commodity, region),
		Insights:  s.AutoInsights(t, commodity, region),
		Movers:    s.metrics.TopMovers(t, commodity, th.ShortWindowDays, th.TopMoversCount),
		Quality:   QualityStats(t),
	}
	for _, p := range s.metrics.DetectAnomalies(t, commodity, region, AnomalyThreshold) {
		if p.IsAnomaly {
			report.AnomalyCount++
		}
	}
	s.logger.Debug("[insights] %s/%s: %d insights, %d anomalies",
		commodity, region, len(report.Insights), report.AnomalyCount)
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 %s · %s\033[0m\n", strings.ToUpper(r.Commodity), r.Region)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Key Indicators\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Latest price  : \033[1m%s\033[0m\n", rupiah(r.KPI.LatestPrice))
	fmt.Fprintf(w, "  7-day change  : %s\n", signedPct(r.KPI.Change7dPct))
	fmt.Fprintf(w, "  30-day change : %s\n", signedPct(r.KPI.Change30dPct))
	fmt.Fprintf(w, "  Trend         : \033[1m%s\033[0m\n", r.KPI.TrendStatus)
	fmt.Fprintf(w, "  Volatility    : %s\n", pct(r.KPI.Volatility))
	fmt.Fprintf(w, "  Anomalies     : %d\n", r.AnomalyCount)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Insights\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Insights) == 0 {
		fmt.Fprintf(w, "  Not enough data\n")
	}
	for _, line := range r.Insights {
		fmt.Fprintf(w, "  • %s\n", line)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top Movers\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Movers.Gainers) == 0 {
		fmt.Fprintf(w, "  No regional data\n")
	}
	for i, g := range r.Movers.Gainers {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-30s \033[1;32m%+.2f%%\033[0m\n", i+1, truncate(g.Region, 28), g.ChangePct)
	}
	for i, l := range r.Movers.Losers {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-30s \033[1;31m%+.2f%%\033[0m\n", i+1, truncate(l.Region, 28), l.ChangePct)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Data Quality\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Rows         : %s\n", humanize.Comma(int64(r.Quality.TotalRows)))
	fmt.Fprintf(w, "  Completeness : %.2f%%\n", r.Quality.Completeness)
	if r.Quality.DateRange != nil {
		fmt.Fprintf(w, "  Date range   : %s → %s\n", r.Quality.DateRange.Min, r.Quality.DateRange.Max)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func rupiah(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return "Rp " + humanize.Commaf(round2(*p))
}

func signedPct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	color := "32"
	if *p < 0 {
		color = "31"
	}
	return fmt.Sprintf("\033[1;%sm%+.2f%%\033[0m", color, *p)
}

func pct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
