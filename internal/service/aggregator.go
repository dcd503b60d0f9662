package service

import (
	"context"
	"strconv"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/metrics"
	"sales-realtime-api/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AggregatorConfig holds the TTLs of aggregation keys.
type AggregatorConfig struct {
	MarkerTTL    time.Duration
	DashboardTTL time.Duration
}

// MetricsAggregator folds paid and completed orders into the real-time
// dashboard and the leaderboards. Every order is counted at most once per
// kind: the idempotency marker is claimed with SET NX before anything is
// aggregated.
type MetricsAggregator struct {
	client       redis.UniversalClient
	ranking      *RankingBoard
	markerTTL    time.Duration
	dashboardTTL time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time
	log          zerolog.Logger
}

// NewMetricsAggregator creates the aggregator.
func NewMetricsAggregator(client redis.UniversalClient, ranking *RankingBoard, cfg AggregatorConfig, m *metrics.Metrics, log zerolog.Logger) *MetricsAggregator {
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = 7 * 24 * time.Hour
	}
	if cfg.DashboardTTL <= 0 {
		cfg.DashboardTTL = time.Hour
	}
	return &MetricsAggregator{
		client:       client,
		ranking:      ranking,
		markerTTL:    cfg.MarkerTTL,
		dashboardTTL: cfg.DashboardTTL,
		metrics:      m,
		now:          time.Now,
		log:          log,
	}
}

// Record adds order to today's dashboard with the given amount and scores
// its lines on the daily sales board (quantity) and the hot list (line
// amount). It reports false when the order was already recorded.
func (a *MetricsAggregator) Record(ctx context.Context, o *model.Order, amount decimal.Decimal) (bool, error) {
	marker := cache.OrderStatsKey(o.ID)
	claimed, err := a.client.SetNX(ctx, marker, "true", a.markerTTL).Result()
	if err != nil {
		a.metrics.Aggregation("record", "error")
		return false, persistence("claim stats marker", err)
	}
	if !claimed {
		a.metrics.Aggregation("record", "duplicate")
		a.log.Debug().Str("order_id", o.ID).Msg("order already aggregated")
		return false, nil
	}

	value := amount.InexactFloat64()
	dashboard := cache.DashboardKey(a.now())
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, cache.KeyOrdersToday)
		pipe.Expire(ctx, cache.KeyOrdersToday, a.dashboardTTL)
		pipe.IncrByFloat(ctx, cache.KeySalesToday, value)
		pipe.Expire(ctx, cache.KeySalesToday, a.dashboardTTL)

		pipe.HIncrByFloat(ctx, dashboard, cache.FieldTotalAmount, value)
		pipe.HIncrBy(ctx, dashboard, cache.FieldOrderCount, 1)
		pipe.Expire(ctx, dashboard, a.dashboardTTL)

		for _, item := range o.Items {
			a.ranking.queue(ctx, pipe, cache.BoardDailySale, item.ProductID, float64(item.Quantity))
			a.ranking.queue(ctx, pipe, cache.BoardHotProducts, item.ProductID, item.Amount.InexactFloat64())
		}
		return nil
	})
	if err != nil {
		// Give the marker back so the next trigger can retry.
		if derr := a.client.Del(ctx, marker).Err(); derr != nil {
			a.log.Error().Err(derr).Str("order_id", o.ID).Msg("releasing stats marker failed")
		}
		a.metrics.Aggregation("record", "error")
		return false, persistence("aggregate order", err)
	}

	a.metrics.Aggregation("record", "ok")
	a.log.Info().Str("order_id", o.ID).Str("amount", amount.String()).Msg("order aggregated")
	return true, nil
}

// RecordCompletion scores a completed order's line amounts on the daily,
// weekly and monthly sale boards and the hot list, once per order.
func (a *MetricsAggregator) RecordCompletion(ctx context.Context, o *model.Order) (bool, error) {
	marker := cache.OrderCompletionKey(o.ID)
	claimed, err := a.client.SetNX(ctx, marker, "true", a.markerTTL).Result()
	if err != nil {
		a.metrics.Aggregation("completion", "error")
		return false, persistence("claim completion marker", err)
	}
	if !claimed {
		a.metrics.Aggregation("completion", "duplicate")
		return false, nil
	}

	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range o.Items {
			amount := item.Amount.InexactFloat64()
			a.ranking.queue(ctx, pipe, cache.BoardDailySale, item.ProductID, amount)
			a.ranking.queue(ctx, pipe, cache.BoardWeeklySale, item.ProductID, amount)
			a.ranking.queue(ctx, pipe, cache.BoardMonthlySale, item.ProductID, amount)
			a.ranking.queue(ctx, pipe, cache.BoardHotProducts, item.ProductID, amount)
		}
		return nil
	})
	if err != nil {
		if derr := a.client.Del(ctx, marker).Err(); derr != nil {
			a.log.Error().Err(derr).Str("order_id", o.ID).Msg("releasing completion marker failed")
		}
		a.metrics.Aggregation("completion", "error")
		return false, persistence("rank completed order", err)
	}
	a.metrics.Aggregation("completion", "ok")
	return true, nil
}

// Forget drops both markers of an order.
func (a *MetricsAggregator) Forget(ctx context.Context, orderID string) error {
	if err := a.client.Del(ctx, cache.OrderStatsKey(orderID), cache.OrderCompletionKey(orderID)).Err(); err != nil {
		return persistence("delete stats markers", err)
	}
	return nil
}

// Recorded reports whether the order has been aggregated.
func (a *MetricsAggregator) Recorded(ctx context.Context, orderID string) (bool, error) {
	n, err := a.client.Exists(ctx, cache.OrderStatsKey(orderID)).Result()
	if err != nil {
		return false, persistence("read stats marker", err)
	}
	return n > 0, nil
}

// Today returns the dashboard of the current day.
func (a *MetricsAggregator) Today(ctx context.Context) (*model.Dashboard, error) {
	return a.Dashboard(ctx, a.now())
}

// Dashboard returns the summary of day. When the day hash is gone and day is
// today, the standalone counters are used instead.
func (a *MetricsAggregator) Dashboard(ctx context.Context, day time.Time) (*model.Dashboard, error) {
	fields, err := a.client.HGetAll(ctx, cache.DashboardKey(day)).Result()
	if err != nil {
		return nil, persistence("read dashboard", err)
	}

	d := &model.Dashboard{Date: day.Format("2006-01-02")}
	if len(fields) > 0 {
		d.TotalAmount, _ = strconv.ParseFloat(fields[cache.FieldTotalAmount], 64)
		d.OrderCount, _ = strconv.ParseInt(fields[cache.FieldOrderCount], 10, 64)
	} else if sameDay(day, a.now()) {
		vals, err := a.client.MGet(ctx, cache.KeyOrdersToday, cache.KeySalesToday).Result()
		if err != nil {
			return nil, persistence("read today counters", err)
		}
		d.OrderCount = toInt64(vals[0])
		if s, ok := vals[1].(string); ok {
			d.TotalAmount, _ = strconv.ParseFloat(s, 64)
		}
	}

	if d.OrderCount > 0 {
		d.AvgOrderValue = d.TotalAmount / float64(d.OrderCount)
	}
	return d, nil
}

func sameDay(a, b time.Time) bool {
	return a.Format("20060102") == b.Format("20060102")
}
