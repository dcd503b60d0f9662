package repository

import (
	"context"
	"errors"

	"sales-realtime-api/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("row not found")

// Cells maps "family:qualifier" column names to raw values.
type Cells map[string][]byte

// Row is one wide-column row.
type Row struct {
	Key   string
	Cells Cells
}

// Filter keeps rows whose Column holds exactly Value.
type Filter struct {
	Column string
	Value  []byte
}

// ScanOptions controls a table scan. Rows come back ordered by row key,
// descending when Reverse is set.
type ScanOptions struct {
	Filter  *Filter
	Reverse bool
	Limit   int
}

// ColumnStore is the durable wide-column record store.
type ColumnStore interface {
	// Put writes the given cells of a row, creating the row if needed.
	Put(ctx context.Context, table, rowKey string, cells Cells) error

	// Get returns all cells of a row or ErrNotFound.
	Get(ctx context.Context, table, rowKey string) (Cells, error)

	// Delete removes a row. Deleting a missing row is not an error.
	Delete(ctx context.Context, table, rowKey string) error

	// Increment atomically adds delta to a counter cell and returns the new value.
	Increment(ctx context.Context, table, rowKey, column string, delta int64) (int64, error)

	// Scan returns rows of a table.
	Scan(ctx context.Context, table string, opts ScanOptions) ([]Row, error)

	// Stats returns statistics about the store.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the store connection.
	Close() error
}

// OrderStore is the durable order persistence used by the order lifecycle.
type OrderStore interface {
	Save(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	Exists(ctx context.Context, orderID string) (bool, error)
	UpdateStatus(ctx context.Context, order *model.Order) error
	UpdateLogistics(ctx context.Context, orderID, company, trackingNo string) error
	AppendTrace(ctx context.Context, orderID string, info model.LogisticsInfo) error
	Delete(ctx context.Context, orderID string) error
	FindByUser(ctx context.Context, userID string, limit int) ([]*model.Order, error)
	FindByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.Order, error)
	Recent(ctx context.Context, limit int) ([]*model.Order, error)
	CountByStatus(ctx context.Context) (*model.OrderStats, error)
}

// ProductStore is the durable product catalog.
type ProductStore interface {
	Save(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
	Delete(ctx context.Context, productID string) error
	UpdateStatus(ctx context.Context, productID string, status model.ProductStatus) error
	IncrementSaleCount(ctx context.Context, productID string, delta int64) (int64, error)
	IncrementViewCount(ctx context.Context, productID string, delta int64) (int64, error)
	FindAll(ctx context.Context, limit int) ([]*model.Product, error)
	FindByCategory(ctx context.Context, category string, limit int) ([]*model.Product, error)
}
