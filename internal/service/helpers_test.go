package service

import (
	"context"
	"testing"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/events"
	"sales-realtime-api/internal/model"
	"sales-realtime-api/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2024, 6, 18, 12, 0, 0, 0, time.UTC)

// env wires every service against miniredis and an in-memory sqlite store.
type env struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	store    *repository.SQLColumnStore
	orders   *repository.OrderRepository
	products *repository.ProductRepository

	stock    *StockService
	catalog  *CatalogService
	cart     *CartService
	ranking  *RankingBoard
	agg      *MetricsAggregator
	sales    *cache.SalesBuffer
	order    *OrderService
	events   *recordingPublisher
	clockNow time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := repository.NewSQLColumnStore("sqlite", ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &env{
		mr:       mr,
		client:   client,
		store:    store,
		orders:   repository.NewOrderRepository(store),
		products: repository.NewProductRepository(store),
		events:   &recordingPublisher{},
		clockNow: testDay,
	}
	clock := func() time.Time { return e.clockNow }
	log := zerolog.Nop()

	e.stock = NewStockService(client, StockConfig{TTL: time.Hour, LeaseTTL: 30 * time.Second}, nil, log)
	e.catalog = NewCatalogService(e.products, e.stock, cache.NewLoader(cache.NewRedisCache(client, cache.ProductCacheNamespace), log), 5*time.Minute, log)
	e.cart = NewCartService(client, e.stock, e.catalog, CartConfig{TTL: 7 * 24 * time.Hour}, nil, log)
	e.cart.now = clock
	e.ranking = NewRankingBoard(client, log)
	e.agg = NewMetricsAggregator(client, e.ranking, AggregatorConfig{MarkerTTL: 7 * 24 * time.Hour, DashboardTTL: time.Hour}, nil, log)
	e.agg.now = clock
	e.sales = cache.NewSalesBuffer(client, cache.SalesBufferConfig{}, e.catalog.FlushSaleCounts, log)
	t.Cleanup(func() { e.sales.Close() })
	e.order = NewOrderService(OrderDeps{
		Orders:     e.orders,
		Client:     client,
		Stock:      e.stock,
		Cart:       e.cart,
		Aggregator: e.agg,
		Sales:      e.sales,
		Events:     e.events,
	}, OrderConfig{StatusTTL: 7 * 24 * time.Hour}, nil, log)
	e.order.now = clock
	return e
}

func (e *env) addProduct(t *testing.T, id, price string, stock int64) {
	t.Helper()
	err := e.catalog.Save(context.Background(), &model.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  decimal.RequireFromString(price),
		Status: model.ProductOnShelf,
		Images: []string{id + ".png"},
	}, &stock)
	require.NoError(t, err)
}

// recordingPublisher captures published order events.
type recordingPublisher struct {
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.OrderEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}
