package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"commodity-prices/loader"
	"commodity-prices/models"
	"commodity-prices/server"
	"commodity-prices/services"
	"commodity-prices/storage"
)

var (
	commodityFlag   string
	regionFlag      string
	commoditiesFlag string
	methodFlag      string
	daysFlag        int
	topFlag         int
	fromFlag        string
	toFlag          string
	outFlag         string
	kindFlag        string
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the located commodity directory and its files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := newApp()
		dir, err := a.dataDirectory()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), loader.DataInfo(dir))
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load and canonicalize every source, then report what was produced",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		out := cmd.OutOrStdout()
		q := services.QualityStats(t)
		fmt.Fprintf(out, "Canonical rows: %s\n", humanize.Comma(int64(q.TotalRows)))
		fmt.Fprintf(out, "Commodities:    %d (%s)\n", len(q.Commodities), strings.Join(q.Commodities, ", "))
		fmt.Fprintf(out, "Regions:        %d\n", len(q.Regions))
		if q.DateRange != nil {
			fmt.Fprintf(out, "Date range:     %s to %s\n", q.DateRange.Min, q.DateRange.Max)
		}
		fmt.Fprintf(out, "Completeness:   %.2f%%\n", q.Completeness)

		if ok, issues := services.ValidateData(t); !ok {
			for _, issue := range issues {
				fmt.Fprintf(out, "  ! %s\n", issue)
			}
		}
		if outFlag == "" {
			return nil
		}
		w, err := storage.NewCSVWriter(outFlag)
		if err != nil {
			return err
		}
		return writeTable(w, t, a, outFlag)
	}),
}

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Print completeness statistics of the canonical table",
	RunE: withApp(func(cmd *cobra.Command, _ *app, t *models.Table) error {
		return printJSON(cmd.OutOrStdout(), services.QualityStats(t))
	}),
}

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Print headline metrics for one commodity and region",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		region := resolveRegion(a, t)
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"commodity": commodityFlag,
			"region":    region,
			"kpi":       a.engine.KPISummary(t, commodityFlag, region),
		})
	}),
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Print an insight report for one commodity and region",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		svc := services.NewInsightService(a.logger, a.engine)
		svc.Print(cmd.OutOrStdout(), svc.Generate(t, commodityFlag, resolveRegion(a, t)))
		return nil
	}),
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List day-over-day moves flagged as anomalous",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		method, err := services.ParseAnomalyMethod(methodFlag)
		if err != nil {
			return err
		}
		var flagged []models.AnomalyPoint
		for _, p := range a.engine.DetectAnomalies(t, commodityFlag, resolveRegion(a, t), method) {
			if p.IsAnomaly {
				flagged = append(flagged, p)
			}
		}
		return printJSON(cmd.OutOrStdout(), flagged)
	}),
}

var moversCmd = &cobra.Command{
	Use:   "movers",
	Short: "Rank regions by their price change over a window",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		th := a.engine.Thresholds()
		return printJSON(cmd.OutOrStdout(),
			a.engine.TopMovers(t, commodityFlag, orDefault(daysFlag, th.ShortWindowDays), orDefault(topFlag, th.TopMoversCount)))
	}),
}

var rankingCmd = &cobra.Command{
	Use:   "ranking",
	Short: "Rank regions by their latest price",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		window, err := dateRange(fromFlag, toFlag)
		if err != nil {
			return err
		}
		top := orDefault(topFlag, a.engine.Thresholds().RegionalRankingCount)
		return printJSON(cmd.OutOrStdout(), a.engine.RegionalRanking(t, commodityFlag, window, top))
	}),
}

var volatilityCmd = &cobra.Command{
	Use:   "volatility",
	Short: "Report average price and volatility per region",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		days := orDefault(daysFlag, a.engine.Thresholds().VolatilityWindowDays)
		return printJSON(cmd.OutOrStdout(), a.engine.RegionalVolatility(t, commodityFlag, days))
	}),
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Compare commodities in one region",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		commodities := summaryCommodities(a, t)
		rows := a.engine.CommoditySummary(t, commodities, regionFlag)
		days := orDefault(daysFlag, a.engine.Thresholds().LongWindowDays)
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"region":  regionFlag,
			"summary": rows,
			"changes": a.engine.PriceChangeMatrix(t, commodities, regionFlag, days),
		})
	}),
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the canonical table or a commodity summary to CSV",
	RunE: withApp(func(cmd *cobra.Command, a *app, t *models.Table) error {
		path := outFlag
		if path == "" {
			path = a.cfg.CSVOutputPath
		}
		switch kindFlag {
		case "canonical":
			w, err := storage.NewCSVWriter(path)
			if err != nil {
				return err
			}
			return writeTable(w, t, a, path)
		case "summary":
			if regionFlag == "" {
				return errors.New("--region is required for a summary export")
			}
			var buf strings.Builder
			rows := a.engine.CommoditySummary(t, summaryCommodities(a, t), regionFlag)
			if err := storage.WriteSummaryCSV(&buf, rows); err != nil {
				return err
			}
			if path == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), buf.String())
				return err
			}
			return writeFile(path, buf.String())
		}
		return fmt.Errorf("unknown export kind %q", kindFlag)
	}),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the metrics API over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prom := installMetrics()
		a := newApp()
		ctx := cmd.Context()

		if _, err := a.table(ctx); err != nil {
			a.logger.Warn("[serve] Initial load failed: %v", err)
		}

		srv := server.New(a.logger, a.engine, a.table, prom.Handler(), server.DefaultConfig(a.cfg.HTTPAddr))
		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	seriesCmds := []*cobra.Command{kpiCmd, insightsCmd, anomaliesCmd}
	commodityCmds := append([]*cobra.Command{moversCmd, rankingCmd, volatilityCmd}, seriesCmds...)
	for _, c := range commodityCmds {
		c.Flags().StringVar(&commodityFlag, "commodity", "", "Commodity name")
		_ = c.MarkFlagRequired("commodity")
	}
	for _, c := range seriesCmds {
		c.Flags().StringVar(&regionFlag, "region", "", "Region (defaults to the first region of the commodity)")
	}

	anomaliesCmd.Flags().StringVar(&methodFlag, "method", "threshold", "Detection method: threshold or std")
	moversCmd.Flags().IntVar(&daysFlag, "days", 0, "Window in days (default from thresholds)")
	moversCmd.Flags().IntVar(&topFlag, "top", 0, "Regions per side (default from thresholds)")
	rankingCmd.Flags().IntVar(&topFlag, "top", 0, "Regions per side (default from thresholds)")
	rankingCmd.Flags().StringVar(&fromFlag, "from", "", "Window start, YYYY-MM-DD")
	rankingCmd.Flags().StringVar(&toFlag, "to", "", "Window end, YYYY-MM-DD")
	volatilityCmd.Flags().IntVar(&daysFlag, "days", 0, "Window in days (default from thresholds)")

	summaryCmd.Flags().StringVar(&commoditiesFlag, "commodities", "", "Comma-separated commodities (default: all, up to the compare limit)")
	summaryCmd.Flags().StringVar(&regionFlag, "region", "", "Region to compare in")
	summaryCmd.Flags().IntVar(&daysFlag, "days", 0, "Change window in days (default from thresholds)")
	_ = summaryCmd.MarkFlagRequired("region")

	ingestCmd.Flags().StringVar(&outFlag, "out", "", "Also write the canonical table to this CSV file")
	exportCmd.Flags().StringVar(&outFlag, "out", "", "Output path (default CSV_OUTPUT_PATH, '-' for stdout on summaries)")
	exportCmd.Flags().StringVar(&kindFlag, "kind", "canonical", "What to export: canonical or summary")
	exportCmd.Flags().StringVar(&commoditiesFlag, "commodities", "", "Comma-separated commodities for a summary export")
	exportCmd.Flags().StringVar(&regionFlag, "region", "", "Region for a summary export")

	rootCmd.AddCommand(infoCmd, ingestCmd, qualityCmd, kpiCmd, insightsCmd, anomaliesCmd,
		moversCmd, rankingCmd, volatilityCmd, summaryCmd, exportCmd, serveCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func resolveRegion(a *app, t *models.Table) string {
	if regionFlag != "" {
		return regionFlag
	}
	if rs := a.engine.Regions(t, commodityFlag); len(rs) > 0 {
		return rs[0]
	}
	return ""
}

func summaryCommodities(a *app, t *models.Table) []string {
	var out []string
	for _, c := range strings.Split(commoditiesFlag, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = services.QualityStats(t).Commodities
	}
	if limit := a.engine.Thresholds().MaxCommoditiesCompare; limit > 0 && len(out) > limit {
		a.logger.Warn("[summary] Comparing the first %d of %d commodities", limit, len(out))
		out = out[:limit]
	}
	return out
}

func dateRange(from, to string) (*models.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, errors.New("--from and --to must be given together")
	}
	start, err := time.Parse(models.ISODate, from)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	end, err := time.Parse(models.ISODate, to)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	if end.Before(start) {
		return nil, errors.New("--to must not be before --from")
	}
	return &models.DateRange{Start: start, End: end}, nil
}

// writeTable writes t through any export backend and closes it.
func writeTable(w storage.TableWriter, t *models.Table, a *app, path string) error {
	if err := w.Write(t); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	a.logger.Info("[export] Wrote %s rows to %s", humanize.Comma(int64(t.Len())), path)
	return nil
}

func writeFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("export: create dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("export: write %q: %w", path, err)
	}
	return nil
}
