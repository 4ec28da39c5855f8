package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"commodity-prices/models"
	"commodity-prices/services"
	"commodity-prices/storage"
)

var errBadParam = errors.New("bad parameter")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// table loads the canonical table, answering 500 itself on failure.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (*models.Table, bool) {
	t, err := s.tables(r.Context())
	if err != nil {
		s.logger.Error("[server] %s: load table: %v", RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "failed to load price data")
		return nil, false
	}
	return t, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadParam, name)
	}
	return n, nil
}

func dateParam(r *http.Request, name string) (time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(models.ISODate, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadParam, name)
	}
	return d, true, nil
}

func listParam(r *http.Request, name string) []string {
	var out []string
	for _, part := range strings.Split(r.URL.Query().Get(name), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// series resolves the commodity (required) and region of a single-series
// query. A missing region falls back to the first region of the commodity.
func (s *Server) series(w http.ResponseWriter, r *http.Request, t *models.Table) (string, string, bool) {
	commodity := r.URL.Query().Get("commodity")
	if commodity == "" {
		writeError(w, http.StatusBadRequest, "commodity is required")
		return "", "", false
	}
	region := r.URL.Query().Get("region")
	if region == "" {
		if rs := s.engine.Regions(t, commodity); len(rs) > 0 {
			region = rs[0]
		}
	}
	return commodity, region, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) quality(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, services.QualityStats(t))
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	valid, issues := services.ValidateData(t)
	if issues == nil {
		issues = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid, "issues": issues})
}

func (s *Server) kpi(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, region, ok := s.series(w, r, t)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commodity": commodity,
		"region":    region,
		"kpi":       s.engine.KPISummary(t, commodity, region),
	})
}

func (s *Server) insightReport(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, region, ok := s.series(w, r, t)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.insights.Generate(t, commodity, region))
}

func (s *Server) anomalies(w http.ResponseWriter, r *http.Request) {
	method, err := services.ParseAnomalyMethod(r.URL.Query().Get("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, region, ok := s.series(w, r, t)
	if !ok {
		return
	}
	points := s.engine.DetectAnomalies(t, commodity, region, method)
	if points == nil {
		points = []models.AnomalyPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) movers(w http.ResponseWriter, r *http.Request) {
	th := s.engine.Thresholds()
	days, err := intParam(r, "days", th.ShortWindowDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	top, err := intParam(r, "top", th.TopMoversCount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, _, ok := s.series(w, r, t)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.TopMovers(t, commodity, days, top))
}

func (s *Server) ranking(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r, "top", s.engine.Thresholds().RegionalRankingCount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, hasFrom, err := dateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, hasTo, err := dateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var window *models.DateRange
	switch {
	case hasFrom && hasTo:
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "to must not be before from")
			return
		}
		window = &models.DateRange{Start: from, End: to}
	case hasFrom || hasTo:
		writeError(w, http.StatusBadRequest, "from and to must be given together")
		return
	}

	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, _, ok := s.series(w, r, t)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.RegionalRanking(t, commodity, window, top))
}

func (s *Server) volatility(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", s.engine.Thresholds().VolatilityWindowDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, _, ok := s.series(w, r, t)
	if !ok {
		return
	}
	rows := s.engine.RegionalVolatility(t, commodity, days)
	if rows == nil {
		rows = []models.RegionVolatility{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// summaryRows resolves the commodity list and region of a comparison. With
// no commodities given, every commodity in the table is compared up to the
// configured limit.
func (s *Server) summaryRows(r *http.Request, t *models.Table) ([]models.CommoditySummaryRow, error) {
	region := r.URL.Query().Get("region")
	if region == "" {
		return nil, fmt.Errorf("%w: region is required", errBadParam)
	}
	limit := s.engine.Thresholds().MaxCommoditiesCompare
	commodities := listParam(r, "commodities")
	if len(commodities) == 0 {
		commodities = services.QualityStats(t).Commodities
		if limit > 0 && len(commodities) > limit {
			commodities = commodities[:limit]
		}
	} else if limit > 0 && len(commodities) > limit {
		return nil, fmt.Errorf("%w: at most %d commodities can be compared", errBadParam, limit)
	}
	return s.engine.CommoditySummary(t, commodities, region), nil
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	rows, err := s.summaryRows(r, t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) movingAverage(w http.ResponseWriter, r *http.Request) {
	window, err := intParam(r, "window", s.engine.Thresholds().ShortWindowDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, region, ok := s.series(w, r, t)
	if !ok {
		return
	}
	points := s.engine.MovingAverage(t, commodity, region, window)
	if points == nil {
		points = []models.MAPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) weekly(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	commodity, region, ok := s.series(w, r, t)
	if !ok {
		return
	}
	rows := s.engine.ResampleWeekly(t, commodity, region)
	if rows == nil {
		rows = []models.Record{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// export streams the canonical table, optionally filtered to one commodity,
// or a commodity summary when kind=summary.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}

	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", "canonical":
		out := t
		if c := r.URL.Query().Get("commodity"); c != "" {
			out = &models.Table{Columns: t.Columns}
			for _, rec := range t.Rows {
				if rec.Commodity == c {
					out.Rows = append(out.Rows, rec)
				}
			}
		}
		s.writeCSV(w, r, "canonical_prices.csv", func(w http.ResponseWriter) error {
			return storage.WriteCanonicalCSV(w, out)
		})
	case "summary":
		rows, err := s.summaryRows(r, t)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeCSV(w, r, "commodity_summary.csv", func(w http.ResponseWriter) error {
			return storage.WriteSummaryCSV(w, rows)
		})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown export kind %q", kind))
	}
}

func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, filename string, write func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := write(w); err != nil {
		s.logger.Warn("[server] %s: export %s: %v", RequestID(r.Context()), filename, err)
	}
}
