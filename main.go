package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"commodity-prices/cache"
	"commodity-prices/config"
	"commodity-prices/loader"
	"commodity-prices/models"
	"commodity-prices/services"
	"commodity-prices/storage"
	"commodity-prices/telemetry"
	"commodity-prices/utils"
)

var (
	dataDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "commodity-prices",
	Short: "Commodity price ingestion and market metrics",
	Long: `commodity-prices loads regional commodity price spreadsheets (CSV or
Excel, wide or long layout) or database tables, canonicalizes them into a
single long-format price table and computes market metrics on it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Dataset root or commodity directory (overrides DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// app wires configuration, ingestion and the metrics engine for one command.
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	engine  *services.MetricsEngine
	cleaner *services.Cleaner
	loader  *loader.Loader
	memo    *cache.Memoizer
}

func newApp() *app {
	cfg := config.Load()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := utils.NewLoggerWithWriter(os.Stderr, cfg.LogLevel)

	store, err := cache.NewStore(cfg)
	if err != nil {
		logger.Warn("[app] %v; caching disabled", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		engine: services.NewMetricsEngine(cfg.Thresholds),
		cleaner: services.NewCleaner(logger, services.CleanerOptions{
			Notation: services.ParsePriceNotation(cfg.PriceNotation),
			Scan:     services.ParseScanStrategy(cfg.LayoutScan),
		}),
		loader: loader.New(logger, loader.Options{
			Encodings:      cfg.Encodings,
			MaxConcurrency: cfg.MaxConcurrency,
			RateLimitMs:    cfg.RateLimitMs,
		}),
		memo: cache.NewMemoizer(store, cfg.CacheTTL, logger),
	}
}

// loadRaw reads every raw source from the configured database, or from the
// commodity directory when no database is configured.
func (a *app) loadRaw(ctx context.Context) (map[string]*models.RawTable, error) {
	if a.cfg.SQLDriver != "" {
		retry := &utils.RetryConfig{MaxAttempts: a.cfg.MaxRetries, BaseDelay: 500 * time.Millisecond, Logger: a.logger}
		src, err := storage.NewSQLReader(ctx, a.cfg.SQLDriver, a.cfg.SQLDSN, retry)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return a.loader.LoadSQL(ctx, src, a.cfg.SQLTables)
	}

	dir, err := a.dataDirectory()
	if err != nil {
		return nil, err
	}
	return a.loader.LoadAll(ctx, dir)
}

func (a *app) dataDirectory() (string, error) {
	dir, ok := loader.FindDataDirectory(a.cfg.DataDir)
	if !ok {
		return "", fmt.Errorf("%w under %q", loader.ErrNoDataDirectory, a.cfg.DataDir)
	}
	return dir, nil
}

func (a *app) build(ctx context.Context) (*models.Table, error) {
	raws, err := a.loadRaw(ctx)
	if err != nil {
		return nil, err
	}
	return a.cleaner.ProcessAll(raws), nil
}

// cacheKey changes whenever the sources or the parsing settings change.
func (a *app) cacheKey() string {
	settings := a.cfg.PriceNotation + ":" + a.cfg.LayoutScan + ":" + strings.Join(a.cfg.Encodings, ",")
	if a.cfg.SQLDriver != "" {
		return "sql:" + a.cfg.SQLDriver + ":" + strings.Join(a.cfg.SQLTables, ",") + ":" + settings
	}
	dir, err := a.dataDirectory()
	if err != nil {
		return "files:none:" + settings
	}
	return "files:" + loader.Fingerprint(dir) + ":" + settings
}

// table returns the canonical table, served from the cache when the sources
// are unchanged.
func (a *app) table(ctx context.Context) (*models.Table, error) {
	return a.memo.Table(ctx, a.cacheKey(), a.build)
}

// withApp adapts a command body that needs the wired app and the canonical
// table.
func withApp(run func(cmd *cobra.Command, a *app, t *models.Table) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a := newApp()
		t, err := a.table(cmd.Context())
		if err != nil {
			return err
		}
		return run(cmd, a, t)
	}
}

func installMetrics() *telemetry.PromBackend {
	prom := telemetry.NewPromBackend("commodity_prices")
	telemetry.SetBackend(prom)
	return prom
}
