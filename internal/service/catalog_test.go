package service

import (
	"context"
	"testing"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogReadThrough(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "12.00", 4)

	p, err := e.catalog.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Product P1", p.Name)
	assert.Equal(t, int64(4), p.TotalStock)
	assert.True(t, e.mr.Exists(cache.ProductCacheNamespace+"P1"))

	require.NoError(t, e.catalog.SetStatus(ctx, "P1", model.ProductOffShelf))
	assert.False(t, e.mr.Exists(cache.ProductCacheNamespace+"P1"))

	sellable, err := e.catalog.IsSellable(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, sellable)

	withStock, err := e.catalog.GetWithStock(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, withStock.RealTimeStock)
	assert.Equal(t, int64(4), *withStock.RealTimeStock)
}

func TestCatalogMissingProduct(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.catalog.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := e.catalog.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, e.catalog.SetStatus(ctx, "nope", model.ProductOnShelf), ErrNotFound)
	assert.ErrorIs(t, e.catalog.RecordView(ctx, "nope"), ErrNotFound)
}

func TestCatalogSaveValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	negative := int64(-1)

	assert.ErrorIs(t, e.catalog.Save(ctx, &model.Product{ID: "P1"}, nil), ErrValidation)
	assert.ErrorIs(t, e.catalog.Save(ctx, &model.Product{ID: "P1", Name: "x"}, &negative), ErrValidation)
	assert.ErrorIs(t, e.catalog.SetStatus(ctx, "P1", model.ProductStatus(7)), ErrValidation)
}

func TestCatalogDeleteDropsStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1", 9)

	require.NoError(t, e.catalog.Delete(ctx, "P1"))
	assert.False(t, e.mr.Exists(cache.StockKey("P1")))
	_, err := e.catalog.Get(ctx, "P1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlushSaleCountsSkipsUnknownProducts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1", 9)
	require.NoError(t, e.catalog.RecordView(ctx, "P1"))

	require.NoError(t, e.catalog.FlushSaleCounts(ctx, map[string]int64{"P1": 3, "gone": 2}))

	p, err := e.catalog.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.SaleCount)
	assert.Equal(t, int64(1), p.ViewCount)
}

func TestCatalogList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stock := int64(1)
	require.NoError(t, e.catalog.Save(ctx, &model.Product{ID: "A1", Name: "a", Category: "books"}, &stock))
	require.NoError(t, e.catalog.Save(ctx, &model.Product{ID: "B1", Name: "b", Category: "toys"}, &stock))

	all, err := e.catalog.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	books, err := e.catalog.List(ctx, "books", 10)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "A1", books[0].ID)
}

func TestCatalogUndecodableCacheEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "3.00", 1)
	require.NoError(t, e.mr.Set(cache.ProductCacheNamespace+"P1", "{broken"))
	require.NoError(t, e.mr.Set(cache.ProductCacheNamespace+"gone", "{broken"))

	p, err := e.catalog.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Product P1", p.Name)

	_, err = e.catalog.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrPersistence)
}
