package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/events"
	"sales-realtime-api/internal/metrics"
	"sales-realtime-api/internal/model"
	"sales-realtime-api/internal/repository"
	"sales-realtime-api/pkg/uid"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	defaultRemark    = "cart checkout"
)

// CartLines is the part of the cart an order consumes.
type CartLines interface {
	Checkout(ctx context.Context, userID string) ([]model.OrderItem, error)
	ConsumeLines(ctx context.Context, userID string, items []model.OrderItem) error
}

// OrderDeps are the collaborators of OrderService.
type OrderDeps struct {
	Orders     repository.OrderStore
	Client     redis.UniversalClient
	Stock      StockLedger
	Cart       CartLines
	Aggregator *MetricsAggregator
	Sales      *cache.SalesBuffer
	Events     events.Publisher
}

// OrderConfig holds order settings.
type OrderConfig struct {
	StatusTTL time.Duration
}

// OrderService runs the order lifecycle:
//
//	PENDING_PAYMENT -> PENDING_DELIVERY -> SHIPPED -> COMPLETED
//	PENDING_PAYMENT -> CANCELLED
//
// The durable store holds the record; Redis caches the status.
type OrderService struct {
	orders    repository.OrderStore
	client    redis.UniversalClient
	stock     StockLedger
	cart      CartLines
	agg       *MetricsAggregator
	sales     *cache.SalesBuffer
	events    events.Publisher
	statusTTL time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
	log       zerolog.Logger
}

// NewOrderService creates the order service.
func NewOrderService(deps OrderDeps, cfg OrderConfig, m *metrics.Metrics, log zerolog.Logger) *OrderService {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 7 * 24 * time.Hour
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	return &OrderService{
		orders:    deps.Orders,
		client:    deps.Client,
		stock:     deps.Stock,
		cart:      deps.Cart,
		agg:       deps.Aggregator,
		sales:     deps.Sales,
		events:    deps.Events,
		statusTTL: cfg.StatusTTL,
		metrics:   m,
		now:       time.Now,
		log:       log,
	}
}

// Create stores a new order. Stock is not touched; the cart already
// reserved it.
func (s *OrderService) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	if err := validateOrder(o); err != nil {
		return nil, err
	}

	now := s.now()
	if o.ID == "" {
		o.ID = uid.OrderID(now)
	}
	if o.Status == 0 {
		o.Status = model.StatusPendingPayment
	}
	if !o.Status.Valid() {
		return nil, validationf("unknown order status %d", o.Status)
	}
	if o.CreateTime.IsZero() {
		o.CreateTime = now
	}
	if o.Remark == "" {
		o.Remark = defaultRemark
	}
	o.Recalculate()
	if o.ActualAmount.IsNegative() {
		return nil, validationf("discount %s exceeds order total %s", o.DiscountAmount, o.TotalAmount)
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, persistence("save order", err)
	}
	s.cacheStatus(ctx, o)
	s.metrics.OrderTransition(o.Status.String())
	s.publish(ctx, events.OrderCreated, o)

	s.log.Info().Str("order_id", o.ID).Str("user_id", o.UserID).Str("amount", o.ActualAmount.String()).Msg("order created")
	return o, nil
}

func validateOrder(o *model.Order) error {
	if o == nil {
		return validationf("order is required")
	}
	if o.UserID == "" {
		return validationf("user id is required")
	}
	if len(o.Items) == 0 {
		return validationf("order has no items")
	}
	for _, item := range o.Items {
		if item.ProductID == "" {
			return validationf("order item without product id")
		}
		if item.Quantity <= 0 {
			return validationf("quantity of %s must be positive", item.ProductID)
		}
		if item.Price.IsNegative() || item.Amount.IsNegative() {
			return validationf("price of %s must not be negative", item.ProductID)
		}
	}
	if o.DiscountAmount.IsNegative() {
		return validationf("discount must not be negative")
	}
	return nil
}

// CreateFromCart checks out the selected cart lines of userID into a new
// order. Receiver fields are taken from o, which may be nil.
func (s *OrderService) CreateFromCart(ctx context.Context, userID string, o *model.Order) (*model.Order, error) {
	items, err := s.cart.Checkout(ctx, userID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		o = &model.Order{}
	}
	o.UserID = userID
	o.Items = items
	return s.Create(ctx, o)
}

// Get returns an order with its cached status applied.
func (s *OrderService) Get(ctx context.Context, orderID string) (*model.Order, error) {
	if orderID == "" {
		return nil, validationf("order id is required")
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, persistence("load order", err)
	}
	s.overlay(ctx, o)
	return o, nil
}

// Status returns the order status from the cache, falling back to the
// durable record and re-caching it.
func (s *OrderService) Status(ctx context.Context, orderID string) (model.OrderStatus, error) {
	if status, ok := s.cachedStatus(ctx, orderID); ok {
		return status, nil
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return 0, persistence("load order", err)
	}
	s.cacheStatus(ctx, o)
	return o.Status, nil
}

// Exists reports whether the order is stored.
func (s *OrderService) Exists(ctx context.Context, orderID string) (bool, error) {
	ok, err := s.orders.Exists(ctx, orderID)
	if err != nil {
		return false, persistence("check order", err)
	}
	return ok, nil
}

// Pay moves a pending order to PENDING_DELIVERY, adds it to the dashboard
// and takes its lines out of the cart. Only the quantities the order holds
// are consumed; unselected lines and any extra quantity added since checkout
// stay in the cart with their reservations.
func (s *OrderService) Pay(ctx context.Context, orderID, method string) (*model.Order, error) {
	if !model.ValidPayMethod(method) {
		return nil, validationf("unknown pay method %q", method)
	}

	o, err := s.transition(ctx, orderID, model.StatusPendingDelivery, (*model.Order).CanPay, events.OrderPaid, func(o *model.Order, now time.Time) {
		o.PayMethod = method
		o.PayTime = &now
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.agg.Record(ctx, o, o.ActualAmount); err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Msg("aggregating paid order failed")
	}
	if err := s.cart.ConsumeLines(ctx, o.UserID, o.Items); err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Str("user_id", o.UserID).Msg("consuming cart lines failed")
	}
	return o, nil
}

// Deliver ships a paid order.
func (s *OrderService) Deliver(ctx context.Context, orderID, company, trackingNo string) (*model.Order, error) {
	if company == "" || trackingNo == "" {
		return nil, validationf("express company and tracking number are required")
	}
	return s.transition(ctx, orderID, model.StatusShipped, (*model.Order).CanDeliver, events.OrderShipped, func(o *model.Order, now time.Time) {
		o.ExpressCompany = company
		o.ExpressNo = trackingNo
		o.DeliverTime = &now
	})
}

// Complete closes a shipped order, scores it on the leaderboards and buffers
// its sale counts. Both happen once per order, under the completion marker.
func (s *OrderService) Complete(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.transition(ctx, orderID, model.StatusCompleted, (*model.Order).CanComplete, events.OrderCompleted, func(o *model.Order, now time.Time) {
		o.CompleteTime = &now
	})
	if err != nil {
		return nil, err
	}
	s.recordCompletion(ctx, o)
	return o, nil
}

// Cancel cancels an unpaid order. Reserved stock stays consumed.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	return s.transition(ctx, orderID, model.StatusCancelled, (*model.Order).CanCancel, events.OrderCancelled, nil)
}

// UpdateOrderStatus sets any status without the transition guard. Moving an
// order to COMPLETED aggregates it with its total amount unless it was
// already aggregated.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, validationf("unknown order status %d", status)
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := o.Status
	o.Status = status
	switch status {
	case model.StatusPendingDelivery:
		if o.PayTime == nil {
			o.PayTime = &now
		}
	case model.StatusShipped:
		if o.DeliverTime == nil {
			o.DeliverTime = &now
		}
	case model.StatusCompleted:
		if o.CompleteTime == nil {
			o.CompleteTime = &now
		}
	}

	if err := s.orders.UpdateStatus(ctx, o); err != nil {
		return nil, persistence("update order status", err)
	}
	s.cacheStatus(ctx, o)
	s.metrics.OrderTransition(status.String())

	if status == model.StatusCompleted {
		if _, err := s.agg.Record(ctx, o, o.TotalAmount); err != nil {
			s.log.Error().Err(err).Str("order_id", o.ID).Msg("aggregating completed order failed")
		}
		s.recordCompletion(ctx, o)
	}
	s.publish(ctx, events.OrderStatusChanged, o)

	s.log.Info().Str("order_id", o.ID).Stringer("from", from).Stringer("to", status).Msg("order status overridden")
	return o, nil
}

// Delete removes an order. Stock of paid orders is returned to the ledger.
func (s *OrderService) Delete(ctx context.Context, orderID string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if o.Status.Paid() {
		for _, item := range o.Items {
			if _, err := s.stock.IncreaseStock(ctx, item.ProductID, item.Quantity); err != nil {
				s.log.Error().Err(err).Str("order_id", o.ID).Str("product_id", item.ProductID).
					Int64("qty", item.Quantity).Msg("returning stock of deleted order failed")
			}
		}
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return persistence("delete order", err)
	}
	if err := s.client.Del(ctx, cache.OrderStatusKey(orderID)).Err(); err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("dropping cached status failed")
	}
	if err := s.agg.Forget(ctx, orderID); err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("dropping stats markers failed")
	}
	s.publish(ctx, events.OrderDeleted, o)

	s.log.Info().Str("order_id", orderID).Stringer("status", o.Status).Msg("order deleted")
	return nil
}

// ListByUser returns the newest orders of a user.
func (s *OrderService) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Order, error) {
	if userID == "" {
		return nil, validationf("user id is required")
	}
	orders, err := s.orders.FindByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, persistence("list orders", err)
	}
	s.overlayAll(ctx, orders)
	return orders, nil
}

// ListByStatus returns the newest orders whose current status is status.
func (s *OrderService) ListByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.Order, error) {
	if !status.Valid() {
		return nil, validationf("unknown order status %d", status)
	}
	orders, err := s.orders.FindByStatus(ctx, status, clampLimit(limit))
	if err != nil {
		return nil, persistence("list orders", err)
	}
	s.overlayAll(ctx, orders)

	out := orders[:0]
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

// Recent returns the newest orders.
func (s *OrderService) Recent(ctx context.Context, limit int) ([]*model.Order, error) {
	orders, err := s.orders.Recent(ctx, clampLimit(limit))
	if err != nil {
		return nil, persistence("list orders", err)
	}
	s.overlayAll(ctx, orders)
	return orders, nil
}

// Stats counts stored orders per status.
func (s *OrderService) Stats(ctx context.Context) (*model.OrderStats, error) {
	stats, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, persistence("count orders", err)
	}
	return stats, nil
}

// UpdateLogistics sets carrier and tracking number without changing status.
func (s *OrderService) UpdateLogistics(ctx context.Context, orderID, company, trackingNo string) error {
	err := s.orders.UpdateLogistics(ctx, orderID, company, trackingNo)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return persistence("update logistics", err)
	}
	return nil
}

// AddLogisticsTrace appends a tracking event to the order.
func (s *OrderService) AddLogisticsTrace(ctx context.Context, orderID string, info model.LogisticsInfo) error {
	if info.Content == "" {
		return validationf("trace content is required")
	}
	if info.Time.IsZero() {
		info.Time = s.now()
	}
	err := s.orders.AppendTrace(ctx, orderID, info)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if err != nil {
		return persistence("append logistics trace", err)
	}
	return nil
}

// ExpireUnpaid cancels pending orders created more than timeout ago and
// returns how many were cancelled. It walks every stored pending order, not a
// page of the newest ones; order ids supplied by callers need not sort by
// creation time.
func (s *OrderService) ExpireUnpaid(ctx context.Context, timeout time.Duration) (int, error) {
	pending, err := s.orders.FindByStatus(ctx, model.StatusPendingPayment, 0)
	if err != nil {
		return 0, persistence("list pending orders", err)
	}
	s.overlayAll(ctx, pending)

	cutoff := s.now().Add(-timeout)
	cancelled := 0
	for _, o := range pending {
		if o.Status != model.StatusPendingPayment || o.CreateTime.After(cutoff) {
			continue
		}
		_, err := s.Cancel(ctx, o.ID)
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// transition applies a guarded status change: load, check, mutate, persist,
// cache, publish. It is check-then-write; concurrent transitions of one
// order are last-writer-wins.
func (s *OrderService) transition(ctx context.Context, orderID string, to model.OrderStatus, allowed func(*model.Order) bool, eventType string, apply func(*model.Order, time.Time)) (*model.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !allowed(o) {
		return nil, fmt.Errorf("%w: order %s is %s, cannot move to %s", ErrInvalidTransition, orderID, o.Status, to)
	}

	if apply != nil {
		apply(o, s.now())
	}
	o.Status = to
	if err := s.orders.UpdateStatus(ctx, o); err != nil {
		return nil, persistence("update order status", err)
	}
	s.cacheStatus(ctx, o)
	s.metrics.OrderTransition(to.String())
	s.publish(ctx, eventType, o)

	s.log.Info().Str("order_id", o.ID).Stringer("status", to).Msg("order status changed")
	return o, nil
}

func (s *OrderService) recordCompletion(ctx context.Context, o *model.Order) {
	claimed, err := s.agg.RecordCompletion(ctx, o)
	if err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Msg("ranking completed order failed")
		return
	}
	if claimed {
		s.countSales(ctx, o)
	}
}

func (s *OrderService) countSales(ctx context.Context, o *model.Order) {
	if s.sales == nil {
		return
	}
	deltas := make(map[string]int64, len(o.Items))
	for _, item := range o.Items {
		deltas[item.ProductID] += item.Quantity
	}
	if err := s.sales.AddAll(ctx, deltas); err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Msg("buffering sale counts failed")
	}
}

// cacheStatus is best effort; a failed write leaves the previous value until
// its TTL runs out.
func (s *OrderService) cacheStatus(ctx context.Context, o *model.Order) {
	if err := s.client.Set(ctx, cache.OrderStatusKey(o.ID), o.Status.Code(), s.statusTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("order_id", o.ID).Msg("caching order status failed")
	}
}

func (s *OrderService) cachedStatus(ctx context.Context, orderID string) (model.OrderStatus, bool) {
	code, err := s.client.Get(ctx, cache.OrderStatusKey(orderID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn().Err(err).Str("order_id", orderID).Msg("reading cached status failed")
		}
		return 0, false
	}
	status, err := model.ParseStatus(code)
	if err != nil {
		return 0, false
	}
	return status, true
}

func (s *OrderService) overlay(ctx context.Context, o *model.Order) {
	if status, ok := s.cachedStatus(ctx, o.ID); ok {
		o.Status = status
	}
}

func (s *OrderService) overlayAll(ctx context.Context, orders []*model.Order) {
	if len(orders) == 0 {
		return
	}
	keys := make([]string, len(orders))
	for i, o := range orders {
		keys[i] = cache.OrderStatusKey(o.ID)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("reading cached statuses failed")
		return
	}
	for i, v := range vals {
		code, ok := v.(string)
		if !ok {
			continue
		}
		if status, err := model.ParseStatus(code); err == nil {
			orders[i].Status = status
		}
	}
}

func (s *OrderService) publish(ctx context.Context, eventType string, o *model.Order) {
	if err := s.events.Publish(ctx, events.FromOrder(eventType, o, s.now())); err != nil {
		s.metrics.EventPublished("error")
		s.log.Warn().Err(err).Str("order_id", o.ID).Str("type", eventType).Msg("publishing order event failed")
		return
	}
	s.metrics.EventPublished("ok")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
