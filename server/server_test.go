package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commodity-prices/config"
	"commodity-prices/models"
	"commodity-prices/services"
	"commodity-prices/telemetry"
	"commodity-prices/utils"
)

func testTable() *models.Table {
	t := models.NewTable()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		d := start.AddDate(0, 0, i)
		t.Rows = append(t.Rows,
			models.Record{Date: d, Commodity: "beras", Region: "Aceh", Price: models.Float(float64(100 + i))},
			models.Record{Date: d, Commodity: "beras", Region: "Bali", Price: models.Float(float64(200 - i))},
			models.Record{Date: d, Commodity: "gula", Region: "Aceh", Price: models.Float(15000)},
		)
	}
	return t
}

func newTestServer(tables TableProvider, metrics http.Handler) *Server {
	engine := services.NewMetricsEngine(config.DefaultThresholds())
	return New(utils.NewNopLogger(), engine, tables, metrics, DefaultConfig("127.0.0.1:0"))
}

func staticTables(t *models.Table) TableProvider {
	return func(context.Context) (*models.Table, error) { return t, nil }
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthCarriesRequestID(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNotFound(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()
	rec := get(t, h, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestKPI(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	rec := get(t, h, "/api/kpi")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"commodity is required"}`, rec.Body.String())

	rec = get(t, h, "/api/kpi?commodity=beras")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Region string            `json:"region"`
		KPI    models.KPISummary `json:"kpi"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "Aceh", body.Region)
	require.NotNil(t, body.KPI.LatestPrice)
	assert.Equal(t, 109.0, *body.KPI.LatestPrice)
	assert.Equal(t, models.TrendRising, body.KPI.TrendStatus)
}

func TestMoversAndRanking(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	rec := get(t, h, "/api/movers?commodity=beras&days=7&top=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var movers models.Movers
	decode(t, rec, &movers)
	require.Len(t, movers.Gainers, 1)
	require.Len(t, movers.Losers, 1)
	assert.Equal(t, "Aceh", movers.Gainers[0].Region)
	assert.Equal(t, "Bali", movers.Losers[0].Region)

	rec = get(t, h, "/api/movers?commodity=beras&days=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/ranking?commodity=beras")
	require.Equal(t, http.StatusOK, rec.Code)
	var ranking models.Ranking
	decode(t, rec, &ranking)
	require.NotEmpty(t, ranking.Highest)
	assert.Equal(t, "Bali", ranking.Highest[0].Region)
	assert.Equal(t, 191.0, ranking.Highest[0].Price)

	rec = get(t, h, "/api/ranking?commodity=beras&from=2024-01-01&to=2024-01-03")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &ranking)
	assert.Equal(t, 198.0, ranking.Highest[0].Price)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/ranking?commodity=beras&from=2024-01-01").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/ranking?commodity=beras&from=2024-01-05&to=2024-01-01").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/ranking?commodity=beras&from=01/01/2024&to=2024-01-03").Code)
}

func TestAnomalies(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/anomalies?commodity=beras&method=iqr").Code)

	rec := get(t, h, "/api/anomalies?commodity=beras&region=Bali&method=std")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []models.AnomalyPoint
	decode(t, rec, &points)
	assert.Len(t, points, 10)
	for _, p := range points {
		assert.False(t, p.IsAnomaly)
	}

	rec = get(t, h, "/api/anomalies?commodity=jagung")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestSummary(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/summary").Code)

	rec := get(t, h, "/api/summary?region=Aceh")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []models.CommoditySummaryRow
	decode(t, rec, &rows)
	require.Len(t, rows, 2)
	assert.Equal(t, "beras", rows[0].Commodity)
	assert.Equal(t, models.TrendRising, rows[0].Status)
	assert.Equal(t, models.TrendStable, rows[1].Status)

	many := "a,b,c,d,e,f,g,h,i,j"
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/summary?region=Aceh&commodities="+many).Code)
}

func TestSeriesEndpoints(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	rec := get(t, h, "/api/moving-average?commodity=beras&window=3")
	require.Equal(t, http.StatusOK, rec.Code)
	var ma []models.MAPoint
	decode(t, rec, &ma)
	require.Len(t, ma, 10)
	require.NotNil(t, ma[9].MA)
	assert.Equal(t, 108.0, *ma[9].MA)

	rec = get(t, h, "/api/weekly?commodity=gula")
	require.Equal(t, http.StatusOK, rec.Code)
	var weeks []models.Record
	decode(t, rec, &weeks)
	assert.NotEmpty(t, weeks)

	rec = get(t, h, "/api/volatility?commodity=beras")
	require.Equal(t, http.StatusOK, rec.Code)
	var vols []models.RegionVolatility
	decode(t, rec, &vols)
	assert.Len(t, vols, 2)

	rec = get(t, h, "/api/insights?commodity=beras&region=Bali")
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.InsightReport
	decode(t, rec, &report)
	assert.Equal(t, "Bali", report.Region)
	assert.NotEmpty(t, report.Insights)
}

func TestQualityAndValidate(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	rec := get(t, h, "/api/quality")
	require.Equal(t, http.StatusOK, rec.Code)
	var q models.QualityStats
	decode(t, rec, &q)
	assert.Equal(t, 30, q.TotalRows)
	assert.Equal(t, []string{"beras", "gula"}, q.Commodities)

	rec = get(t, h, "/api/validate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"issues":[]}`, rec.Body.String())
}

func TestExportCSV(t *testing.T) {
	h := newTestServer(staticTables(testTable()), nil).Handler()

	rec := get(t, h, "/api/export.csv?commodity=gula")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 11)
	assert.Equal(t, "date,commodity,region,price", lines[0])
	assert.Equal(t, "2024-01-01,gula,Aceh,15000", lines[1])

	rec = get(t, h, "/api/export.csv?kind=summary&region=Aceh&commodities=gula")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "commodity,latest_price,change_7d_pct,change_30d_pct,volatility,status\n"+
		"gula,15000,0,0,0,stable\n", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/export.csv?kind=parquet").Code)
}

func TestLoadFailure(t *testing.T) {
	failing := func(context.Context) (*models.Table, error) { return nil, errors.New("disk gone") }
	h := newTestServer(failing, nil).Handler()

	rec := get(t, h, "/api/quality")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to load price data"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	prom := telemetry.NewPromBackend("cp")
	telemetry.SetBackend(prom)
	defer telemetry.SetBackend(nil)

	h := newTestServer(staticTables(testTable()), prom.Handler()).Handler()
	require.Equal(t, http.StatusOK, get(t, h, "/api/kpi?commodity=beras").Code)

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cp_http_requests_total{code="2xx",route="/api/kpi"} 1`)
}
