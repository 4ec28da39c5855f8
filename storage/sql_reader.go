package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"commodity-prices/models"
	"commodity-prices/utils"
)

// ErrUnsupportedDriver is returned for drivers other than postgres and sqlite.
var ErrUnsupportedDriver = errors.New("unsupported sql driver")

// SQLReader reads raw commodity tables from PostgreSQL or SQLite. Each table
// is one commodity source; its name becomes the commodity label.
type SQLReader struct {
	db     *sqlx.DB
	driver string
}

// DriverName maps a configured driver alias to its database/sql name.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}

// NewSQLReader opens a connection and pings it, retrying with back-off.
func NewSQLReader(ctx context.Context, driver, dsn string, retry *utils.RetryConfig) (*SQLReader, error) {
	name, err := DriverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql: open: %w", err)
	}

	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1}
	}
	if err := retry.Do(ctx, "sql ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql: %w", err)
	}
	return &SQLReader{db: db, driver: name}, nil
}

// NewSQLReaderFromDB wraps an already open connection.
func NewSQLReaderFromDB(db *sqlx.DB) *SQLReader {
	return &SQLReader{db: db, driver: db.DriverName()}
}

// ListTables returns the user tables visible to the connection, sorted by
// name.
func (r *SQLReader) ListTables(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if r.driver == "postgres" {
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}

	var names []string
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("sql: list tables: %w", err)
	}
	return names, nil
}

// FetchTable reads every row of the named table.
func (r *SQLReader) FetchTable(ctx context.Context, name string) (*models.RawTable, error) {
	rows, err := r.db.QueryxContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, fmt.Errorf("sql: fetch %q: %w", name, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("sql: column types %q: %w", name, err)
	}
	t := &models.RawTable{Name: name}
	numeric := make([]bool, len(types))
	for i, ct := range types {
		t.Columns = append(t.Columns, ct.Name())
		numeric[i] = isNumericType(ct.DatabaseTypeName())
	}

	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("sql: scan row: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalizeCell(v, numeric[i])
		}
		t.Rows = append(t.Rows, vals)
	}
	return t, rows.Err()
}

func (r *SQLReader) Close() error {
	return r.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isNumericType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "MONEY":
		return true
	}
	return false
}

// normalizeCell converts driver values into raw table cells. Text arrives as
// string; exact numerics are read as float64.
func normalizeCell(v any, numeric bool) any {
	switch x := v.(type) {
	case []byte:
		v = string(x)
	case int32:
		return int64(x)
	case time.Time:
		return x
	}
	if s, ok := v.(string); ok && numeric {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return v
}
