package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/events"
	"sales-realtime-api/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) newOrder(t *testing.T, id string, items ...model.OrderItem) *model.Order {
	t.Helper()
	o, err := e.order.Create(context.Background(), &model.Order{ID: id, UserID: "u1", Items: items})
	require.NoError(t, err)
	return o
}

func item(productID, price string, qty int64) model.OrderItem {
	return model.OrderItem{ProductID: productID, ProductName: "Product " + productID, Price: decimal.RequireFromString(price), Quantity: qty}
}

func TestCreateOrderDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.order.Create(ctx, &model.Order{
		UserID:         "u1",
		DiscountAmount: decimal.RequireFromString("5"),
		Items:          []model.OrderItem{item("P1", "10.00", 2), item("P2", "7.50", 1)},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(o.ID, "ORD20240618120000"), o.ID)
	assert.Len(t, o.ID, len("ORD20240618120000")+4)
	assert.Equal(t, model.StatusPendingPayment, o.Status)
	assert.Equal(t, "27.5", o.TotalAmount.String())
	assert.Equal(t, "22.5", o.ActualAmount.String())
	assert.Equal(t, "cart checkout", o.Remark)
	assert.Equal(t, testDay, o.CreateTime)

	stored, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "22.5", stored.ActualAmount.String())
	assert.Equal(t, "1", mustGet(t, e, cache.OrderStatusKey(o.ID)))
	assert.Equal(t, []string{events.OrderCreated}, e.events.types())
}

func mustGet(t *testing.T, e *env, key string) string {
	t.Helper()
	v, err := e.mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestCreateOrderValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		order *model.Order
	}{
		{"no user", &model.Order{Items: []model.OrderItem{item("P1", "1", 1)}}},
		{"no items", &model.Order{UserID: "u1"}},
		{"zero quantity", &model.Order{UserID: "u1", Items: []model.OrderItem{item("P1", "1", 0)}}},
		{"negative price", &model.Order{UserID: "u1", Items: []model.OrderItem{item("P1", "-1", 1)}}},
		{"discount above total", &model.Order{UserID: "u1", DiscountAmount: decimal.NewFromInt(5), Items: []model.OrderItem{item("P1", "1", 1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.order.Create(ctx, tt.order)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "50.00", 10)

	_, err := e.cart.AddToCart(ctx, "u1", "P1", 2)
	require.NoError(t, err)

	o, err := e.order.CreateFromCart(ctx, "u1", &model.Order{Receiver: "Ann", Address: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "100", o.ActualAmount.String())
	assert.Equal(t, int64(8), e.stockOf(t, "P1"))

	o, err = e.order.Pay(ctx, o.ID, model.PayWechat)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingDelivery, o.Status)
	require.NotNil(t, o.PayTime)
	assert.Equal(t, model.PayWechat, o.PayMethod)

	// Paid lines leave the cart without returning stock.
	n, err := e.cart.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(8), e.stockOf(t, "P1"))

	o, err = e.order.Deliver(ctx, o.ID, "SF", "SF123")
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, o.Status)

	o, err = e.order.Complete(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, o.Status)

	stored, err := e.order.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, "SF123", stored.ExpressNo)
	assert.NotNil(t, stored.CompleteTime)
	assert.Equal(t, "Ann", stored.Receiver)

	pending, err := e.sales.Pending(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
	require.NoError(t, e.sales.Flush(ctx))
	p, err := e.products.FindByID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.SaleCount)

	assert.Equal(t, []string{
		events.OrderCreated, events.OrderPaid, events.OrderShipped, events.OrderCompleted,
	}, e.events.types())
}

func TestPayRejectsUnknownMethod(t *testing.T) {
	e := newEnv(t)
	o := e.newOrder(t, "", item("P1", "1", 1))

	_, err := e.order.Pay(context.Background(), o.ID, "cash")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCancelOnlyFromPendingPayment(t *testing.T) {
	for _, from := range model.AllStatuses {
		t.Run(from.String(), func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			o := e.newOrder(t, "O1", item("P1", "10", 1))
			if from != model.StatusPendingPayment {
				_, err := e.order.UpdateOrderStatus(ctx, o.ID, from)
				require.NoError(t, err)
			}

			_, err := e.order.Cancel(ctx, o.ID)
			if from == model.StatusPendingPayment {
				require.NoError(t, err)
				status, err := e.order.Status(ctx, o.ID)
				require.NoError(t, err)
				assert.Equal(t, model.StatusCancelled, status)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
			status, err := e.order.Status(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, from, status)
		})
	}
}

func TestTransitionGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.newOrder(t, "", item("P1", "10", 1))

	_, err := e.order.Deliver(ctx, o.ID, "SF", "1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.order.Complete(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.order.Pay(ctx, o.ID, model.PayAlipay)
	require.NoError(t, err)
	_, err = e.order.Pay(ctx, o.ID, model.PayAlipay)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.order.Pay(ctx, "missing", model.PayAlipay)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaidOrderAggregatedOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.newOrder(t, "O1", item("P1", "100.00", 1))

	_, err := e.order.Pay(ctx, o.ID, model.PayAlipay)
	require.NoError(t, err)

	d, err := e.agg.Dashboard(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.OrderCount)
	assert.InDelta(t, 100.0, d.TotalAmount, 1e-9)

	_, err = e.order.UpdateOrderStatus(ctx, o.ID, model.StatusCompleted)
	require.NoError(t, err)

	d, err = e.agg.Dashboard(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.OrderCount)
	assert.InDelta(t, 100.0, d.TotalAmount, 1e-9)
}

func TestAdminCompletionUsesTotalAmount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.order.Create(ctx, &model.Order{
		UserID:         "u1",
		DiscountAmount: decimal.NewFromInt(20),
		Items:          []model.OrderItem{item("P1", "100", 1)},
	})
	require.NoError(t, err)

	o, err = e.order.UpdateOrderStatus(ctx, o.ID, model.StatusCompleted)
	require.NoError(t, err)
	assert.NotNil(t, o.CompleteTime)

	d, err := e.agg.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.OrderCount)
	assert.InDelta(t, 100.0, d.TotalAmount, 1e-9)
	assert.Equal(t, []string{events.OrderCreated, events.OrderStatusChanged}, e.events.types())
}

func TestDeleteOrderReturnsStockOfPaidOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "10", 10)
	e.addProduct(t, "P2", "10", 10)

	_, err := e.cart.AddToCart(ctx, "u1", "P1", 3)
	require.NoError(t, err)
	paid, err := e.order.CreateFromCart(ctx, "u1", nil)
	require.NoError(t, err)
	_, err = e.order.Pay(ctx, paid.ID, model.PayBalance)
	require.NoError(t, err)

	_, err = e.cart.AddToCart(ctx, "u1", "P2", 4)
	require.NoError(t, err)
	unpaid, err := e.order.CreateFromCart(ctx, "u1", nil)
	require.NoError(t, err)

	require.NoError(t, e.order.Delete(ctx, paid.ID))
	assert.Equal(t, int64(10), e.stockOf(t, "P1"))
	assert.False(t, e.mr.Exists(cache.OrderStatusKey(paid.ID)))
	assert.False(t, e.mr.Exists(cache.OrderStatsKey(paid.ID)))

	require.NoError(t, e.order.Delete(ctx, unpaid.ID))
	assert.Equal(t, int64(6), e.stockOf(t, "P2"))

	_, err = e.order.Get(ctx, paid.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, events.OrderDeleted, e.events.types()[len(e.events.events)-1])
}

func TestStatusFallsBackToDurableStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.newOrder(t, "", item("P1", "1", 1))
	_, err := e.order.Pay(ctx, o.ID, model.PayAlipay)
	require.NoError(t, err)

	e.mr.Del(cache.OrderStatusKey(o.ID))
	status, err := e.order.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingDelivery, status)
	assert.Equal(t, model.StatusPendingDelivery.Code(), mustGet(t, e, cache.OrderStatusKey(o.ID)))

	_, err = e.order.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newOrder(t, "ORD20240618110000AAAA", item("P1", "1", 1))
	b := e.newOrder(t, "ORD20240618120000BBBB", item("P1", "1", 1))
	_, err := e.order.Create(ctx, &model.Order{ID: "ORD20240618130000CCCC", UserID: "u2", Items: []model.OrderItem{item("P1", "1", 1)}})
	require.NoError(t, err)

	_, err = e.order.Pay(ctx, a.ID, model.PayAlipay)
	require.NoError(t, err)

	mine, err := e.order.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, b.ID, mine[0].ID)
	assert.Equal(t, model.StatusPendingDelivery, mine[1].Status)

	pending, err := e.order.ListByStatus(ctx, model.StatusPendingPayment, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	recent, err := e.order.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ORD20240618130000CCCC", recent[0].ID)

	stats, err := e.order.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Counts[model.StatusPendingDelivery])
}

func TestLogistics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.newOrder(t, "", item("P1", "1", 1))

	require.NoError(t, e.order.UpdateLogistics(ctx, o.ID, "SF", "SF1"))
	require.NoError(t, e.order.AddLogisticsTrace(ctx, o.ID, model.LogisticsInfo{Content: "picked up", Location: "Shenzhen"}))

	got, err := e.order.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "SF1", got.ExpressNo)
	require.Len(t, got.Logistics, 1)
	assert.Equal(t, "picked up", got.Logistics[0].Content)

	assert.ErrorIs(t, e.order.UpdateLogistics(ctx, "missing", "SF", "1"), ErrNotFound)
	assert.ErrorIs(t, e.order.AddLogisticsTrace(ctx, o.ID, model.LogisticsInfo{}), ErrValidation)
}

func TestExpireUnpaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	old := e.newOrder(t, "", item("P1", "1", 1))
	e.clockNow = testDay.Add(90 * time.Minute)
	fresh := e.newOrder(t, "", item("P1", "1", 1))

	sweeper := NewExpiryScheduler(e.order, ExpiryConfig{Timeout: time.Hour}, e.order.log)
	n, err := sweeper.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := e.order.Status(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, status)
	status, err = e.order.Status(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingPayment, status)

	disabled := NewExpiryScheduler(e.order, ExpiryConfig{}, e.order.log)
	n, err = disabled.RunNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	disabled.Start()
	disabled.Stop()
}

func TestExpireUnpaidReachesPastNewestPage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stale := e.newOrder(t, "", item("P1", "1", 1))

	e.clockNow = testDay.Add(90 * time.Minute)
	for i := 0; i < maxListLimit+5; i++ {
		e.newOrder(t, fmt.Sprintf("%s%03d", stale.ID, i), item("P1", "1", 1))
	}

	n, err := e.order.ExpireUnpaid(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := e.order.Status(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, status)

	stats, err := e.order.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Counts[model.StatusCancelled])
	assert.Equal(t, int64(maxListLimit+5), stats.Counts[model.StatusPendingPayment])
}

func TestRecompletionCountsSalesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.newOrder(t, "", item("P1", "5", 2))

	_, err := e.order.UpdateOrderStatus(ctx, o.ID, model.StatusShipped)
	require.NoError(t, err)
	_, err = e.order.Complete(ctx, o.ID)
	require.NoError(t, err)

	_, err = e.order.UpdateOrderStatus(ctx, o.ID, model.StatusShipped)
	require.NoError(t, err)
	_, err = e.order.Complete(ctx, o.ID)
	require.NoError(t, err)

	pending, err := e.sales.Pending(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	hot, err := e.ranking.Score(ctx, cache.BoardHotProducts, "P1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, hot)
}
