package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DataDir       string
	Encodings     []string
	CSVOutputPath string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int

	PriceNotation string
	LayoutScan    string

	SQLDriver string
	SQLDSN    string
	SQLTables []string

	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HTTPAddr string
	LogLevel string

	Thresholds Thresholds
}

// Thresholds are the fixed heuristics of the metrics engine. They are passed
// explicitly to every consumer instead of living in package state.
type Thresholds struct {
	AnomalyThresholdPct  float64 `yaml:"anomaly_threshold_pct"`
	AnomalyStdMultiplier float64 `yaml:"anomaly_std_multiplier"`
	TrendRisingPct       float64 `yaml:"trend_rising_pct"`
	TrendFallingPct      float64 `yaml:"trend_falling_pct"`
	HighVolatilityPct    float64 `yaml:"high_volatility_pct"`
	LowVolatilityPct     float64 `yaml:"low_volatility_pct"`

	ShortWindowDays          int `yaml:"short_window_days"`
	LongWindowDays           int `yaml:"long_window_days"`
	VolatilityWindowDays     int `yaml:"volatility_window_days"`
	MinVolatilityObs         int `yaml:"min_volatility_obs"`
	MinVolatilityReturns     int `yaml:"min_volatility_returns"`
	MinAnomalyObs            int `yaml:"min_anomaly_obs"`
	PriceAtDateToleranceDays int `yaml:"price_at_date_tolerance_days"`

	TopMoversCount        int `yaml:"top_movers_count"`
	RegionalRankingCount  int `yaml:"regional_ranking_count"`
	DefaultDateRangeDays  int `yaml:"default_date_range_days"`
	MaxRegionsSelect      int `yaml:"max_regions_select"`
	MaxCommoditiesCompare int `yaml:"max_commodities_compare"`
}

// DefaultThresholds returns the built-in heuristic values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AnomalyThresholdPct:  10.0,
		AnomalyStdMultiplier: 2.0,
		TrendRisingPct:       2.0,
		TrendFallingPct:      -2.0,
		HighVolatilityPct:    3.0,
		LowVolatilityPct:     1.0,

		ShortWindowDays:          7,
		LongWindowDays:           30,
		VolatilityWindowDays:     30,
		MinVolatilityObs:         5,
		MinVolatilityReturns:     3,
		MinAnomalyObs:            3,
		PriceAtDateToleranceDays: 3,

		TopMoversCount:        5,
		RegionalRankingCount:  10,
		DefaultDateRangeDays:  90,
		MaxRegionsSelect:      5,
		MaxCommoditiesCompare: 9,
	}
}

// LoadThresholds overlays the YAML file at path onto the defaults. Keys absent
// from the file keep their default value.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("config: read thresholds %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("config: parse thresholds %q: %w", path, err)
	}
	return th, nil
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DataDir:       getEnv("DATA_DIR", "data/raw"),
		Encodings:     getEnvList("LOAD_ENCODINGS", []string{"utf-8", "latin-1", "windows-1252"}),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/canonical_prices.csv"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 0),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		PriceNotation: getEnv("PRICE_NOTATION", "european"),
		LayoutScan:    getEnv("LAYOUT_SCAN", "sample"),

		SQLDriver: getEnv("SQL_DRIVER", ""),
		SQLDSN:    getEnv("SQL_DSN", ""),
		SQLTables: getEnvList("SQL_TABLES", nil),

		CacheBackend:  getEnv("CACHE_BACKEND", "memory"),
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		HTTPAddr: getEnv("HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Thresholds: DefaultThresholds(),
	}

	if path := getEnv("THRESHOLDS_FILE", ""); path != "" {
		th, err := LoadThresholds(path)
		if err != nil {
			log.Printf("[config] %v; using default thresholds", err)
		} else {
			cfg.Thresholds = th
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
