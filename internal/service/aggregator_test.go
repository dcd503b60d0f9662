package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidOrder(id string) *model.Order {
	o := &model.Order{
		ID:     id,
		UserID: "u1",
		Items: []model.OrderItem{
			{ProductID: "P1", Price: decimal.RequireFromString("25"), Quantity: 2},
			{ProductID: "P2", Price: decimal.RequireFromString("10"), Quantity: 1},
		},
	}
	o.Recalculate()
	return o
}

func TestRecordIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := paidOrder("O1")

	first, err := e.agg.Record(ctx, o, o.ActualAmount)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := e.agg.Record(ctx, o, o.ActualAmount)
	require.NoError(t, err)
	assert.False(t, second)

	d, err := e.agg.Dashboard(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-18", d.Date)
	assert.Equal(t, int64(1), d.OrderCount)
	assert.InDelta(t, 60.0, d.TotalAmount, 1e-9)
	assert.InDelta(t, 60.0, d.AvgOrderValue, 1e-9)

	assert.Equal(t, 7*24*time.Hour, e.mr.TTL(cache.OrderStatsKey("O1")))
	assert.Equal(t, time.Hour, e.mr.TTL(cache.DashboardKey(testDay)))

	daily, err := e.ranking.Score(ctx, cache.BoardDailySale, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, daily)
	hot, err := e.ranking.Score(ctx, cache.BoardHotProducts, "P1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, hot)
}

func TestRecordConcurrentTriggersCountOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := paidOrder("O1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.agg.Record(ctx, o, o.ActualAmount)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
	d, err := e.agg.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.OrderCount)
}

func TestRecordCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := paidOrder("O1")

	ok, err := e.agg.RecordCompletion(ctx, o)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.agg.RecordCompletion(ctx, o)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, board := range []string{cache.BoardDailySale, cache.BoardWeeklySale, cache.BoardMonthlySale, cache.BoardHotProducts} {
		score, err := e.ranking.Score(ctx, board, "P1")
		require.NoError(t, err)
		assert.Equal(t, 50.0, score, board)
	}

	// Completion does not touch the dashboard.
	d, err := e.agg.Today(ctx)
	require.NoError(t, err)
	assert.Zero(t, d.OrderCount)
}

func TestForgetAllowsRecordingAgain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := paidOrder("O1")

	_, err := e.agg.Record(ctx, o, o.ActualAmount)
	require.NoError(t, err)
	recorded, err := e.agg.Recorded(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, recorded)

	require.NoError(t, e.agg.Forget(ctx, "O1"))
	recorded, err = e.agg.Recorded(ctx, "O1")
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestDashboardFallsBackToTodayCounters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := paidOrder("O1")

	_, err := e.agg.Record(ctx, o, decimal.RequireFromString("40"))
	require.NoError(t, err)
	e.mr.Del(cache.DashboardKey(testDay))

	d, err := e.agg.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.OrderCount)
	assert.InDelta(t, 40.0, d.TotalAmount, 1e-9)

	other, err := e.agg.Dashboard(ctx, testDay.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, other.OrderCount)
	assert.Zero(t, other.AvgOrderValue)
}
