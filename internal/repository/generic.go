package repository

import (
	"context"
	"errors"
	"fmt"
)

// Codec converts an entity to and from its wide-column row.
type Codec[T any] interface {
	RowKey(v *T) string
	Encode(v *T) (Cells, error)
	Decode(rowKey string, cells Cells) (*T, error)
}

// Repository is the key-value persistence of one entity type on a ColumnStore.
type Repository[T any] struct {
	store ColumnStore
	table string
	codec Codec[T]
}

// NewRepository binds codec to table on store.
func NewRepository[T any](store ColumnStore, table string, codec Codec[T]) *Repository[T] {
	return &Repository[T]{store: store, table: table, codec: codec}
}

// Save writes every column of v.
func (r *Repository[T]) Save(ctx context.Context, v *T) error {
	key := r.codec.RowKey(v)
	if key == "" {
		return fmt.Errorf("%s: empty row key", r.table)
	}
	cells, err := r.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", r.table, key, err)
	}
	return r.store.Put(ctx, r.table, key, cells)
}

// FindByID loads one entity or returns ErrNotFound.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	cells, err := r.store.Get(ctx, r.table, id)
	if err != nil {
		return nil, err
	}
	v, err := r.codec.Decode(id, cells)
	if err != nil {
		return nil, fmt.Errorf("%s: decode %s: %w", r.table, id, err)
	}
	return v, nil
}

// Exists reports whether the row is present.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.store.Get(ctx, r.table, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update writes a subset of columns of an existing row.
func (r *Repository[T]) Update(ctx context.Context, id string, cells Cells) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return r.store.Put(ctx, r.table, id, cells)
}

// Delete removes the row.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.table, id)
}

// Increment adds delta to a counter column of an existing row.
func (r *Repository[T]) Increment(ctx context.Context, id, column string, delta int64) (int64, error) {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	return r.store.Increment(ctx, r.table, id, column, delta)
}

// Scan decodes the rows matched by opts. Rows that fail to decode are
// reported through the returned error after the scan completes.
func (r *Repository[T]) Scan(ctx context.Context, opts ScanOptions) ([]*T, error) {
	rows, err := r.store.Scan(ctx, r.table, opts)
	if err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(rows))
	var errs []error
	for _, row := range rows {
		v, err := r.codec.Decode(row.Key, row.Cells)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: decode %s: %w", r.table, row.Key, err))
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}
