// Package loader reads commodity price sources (CSV files, Excel workbooks
// and database tables) into raw tables keyed by commodity name.
package loader

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"commodity-prices/models"
	"commodity-prices/storage"
	"commodity-prices/telemetry"
	"commodity-prices/utils"
)

// Options configure a Loader.
type Options struct {
	Encodings      []string
	MaxConcurrency int
	RateLimitMs    int
}

// Loader reads every commodity source of a directory or database.
type Loader struct {
	logger *utils.Logger
	opts   Options
}

// New creates a Loader.
func New(logger *utils.Logger, opts Options) *Loader {
	if len(opts.Encodings) == 0 {
		opts.Encodings = DefaultEncodings
	}
	return &Loader{logger: logger, opts: opts}
}

// LoadFile reads one commodity file according to its format.
func (l *Loader) LoadFile(f CommodityFile) (*models.RawTable, error) {
	var (
		t   *models.RawTable
		err error
	)
	switch f.Format {
	case FormatXLSX:
		t, err = ReadXLSX(f.Path)
	default:
		t, err = ReadCSV(f.Path, l.opts.Encodings)
	}
	if err != nil {
		return nil, err
	}
	t.Name = f.Name
	return t, nil
}

// LoadAll reads every commodity file in dir concurrently. Unreadable and
// empty files are logged and skipped. When a CSV and a workbook share a
// name, the CSV wins.
func (l *Loader) LoadAll(ctx context.Context, dir string) (map[string]*models.RawTable, error) {
	start := time.Now()
	files := ListCommodityFiles(dir)

	claimed := utils.NewNameSet()
	pool := utils.NewWorkerPool(l.opts.MaxConcurrency, l.opts.RateLimitMs)

	var (
		mu  sync.Mutex
		out = make(map[string]*models.RawTable, len(files))
	)
	for _, f := range files {
		if !claimed.Add(f.Name) {
			l.logger.Warn("[loader] Duplicate commodity %q, skipping %s", f.Name, f.Path)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		f := f
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			t, err := l.LoadFile(f)
			if err != nil {
				l.logger.Warn("[loader] Error loading %s: %v", f.Path, err)
				telemetry.RecordSource("failed")
				return
			}
			if t.Empty() {
				l.logger.Debug("[loader] %s is empty", f.Path)
				telemetry.RecordSource("skipped")
				return
			}
			telemetry.RecordSource("loaded")
			telemetry.RecordRows("raw", len(t.Rows))

			mu.Lock()
			out[f.Name] = t
			mu.Unlock()
		})
	}
	pool.Wait()

	err := ctx.Err()
	telemetry.RecordStep("load_files", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	l.logger.Info("[loader] Loaded %d/%d commodities (%d files) from %s", len(out), claimed.Size(), len(files), dir)
	return out, nil
}

// LoadSQL reads the named tables from src, or every table when names is
// empty. Failing tables are logged and skipped.
func (l *Loader) LoadSQL(ctx context.Context, src storage.TableSource, names []string) (map[string]*models.RawTable, error) {
	start := time.Now()
	if len(names) == 0 {
		var err error
		if names, err = src.ListTables(ctx); err != nil {
			telemetry.RecordStep("load_sql", err, time.Since(start))
			return nil, fmt.Errorf("loader: %w", err)
		}
	}

	out := make(map[string]*models.RawTable, len(names))
	for _, name := range names {
		t, err := src.FetchTable(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("loader: %w", ctx.Err())
			}
			l.logger.Warn("[loader] Error loading table %s: %v", name, err)
			telemetry.RecordSource("failed")
			continue
		}
		if t.Empty() {
			telemetry.RecordSource("skipped")
			continue
		}
		telemetry.RecordSource("loaded")
		telemetry.RecordRows("raw", len(t.Rows))
		out[name] = t
	}

	telemetry.RecordStep("load_sql", nil, time.Since(start))
	l.logger.Info("[loader] Loaded %d/%d tables", len(out), len(names))
	return out, nil
}

// Fingerprint hashes the name, size and modification time of every
// commodity file in dir. It changes whenever a file is added, removed or
// rewritten.
func Fingerprint(dir string) string {
	files := ListCommodityFiles(dir)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	h := xxh3.New()
	var buf [8]byte
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			continue
		}
		_, _ = h.WriteString(f.Path)
		binary.LittleEndian.PutUint64(buf[:], uint64(info.Size()))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
		_, _ = h.Write(buf[:])
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
