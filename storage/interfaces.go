package storage

import (
	"context"

	"commodity-prices/models"
)

// TableWriter is the interface any export backend must satisfy.
type TableWriter interface {
	Write(t *models.Table) error
	Close() error
}

// TableSource is the interface for reading raw commodity tables from a
// database.
type TableSource interface {
	ListTables(ctx context.Context) ([]string, error)
	FetchTable(ctx context.Context, name string) (*models.RawTable, error)
	Close() error
}

var (
	_ TableWriter = (*CSVWriter)(nil)
	_ TableSource = (*SQLReader)(nil)
)
