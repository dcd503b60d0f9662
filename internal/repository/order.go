package repository

import (
	"context"
	"time"

	"sales-realtime-api/internal/model"
)

// Table and columns of the order row.
const (
	OrderTable = "orders"

	colOrderUserID         = "base:user_id"
	colOrderTotalAmount    = "base:total_amount"
	colOrderDiscountAmount = "base:discount_amount"
	colOrderActualAmount   = "base:actual_amount"
	colOrderStatus         = "base:status"
	colOrderPayMethod      = "base:pay_method"
	colOrderCreateTime     = "base:create_time"
	colOrderPayTime        = "base:pay_time"
	colOrderDeliverTime    = "base:deliver_time"
	colOrderCompleteTime   = "base:complete_time"
	colOrderRemark         = "base:remark"
	colOrderReceiver       = "address:receiver"
	colOrderPhone          = "address:phone"
	colOrderAddress        = "address:address"
	colOrderPostcode       = "address:postcode"
	colOrderItems          = "items:list"
	colOrderExpressCompany = "logistics:express_company"
	colOrderExpressNo      = "logistics:express_no"
	colOrderTrace          = "logistics:trace"
)

type orderCodec struct{}

func (orderCodec) RowKey(o *model.Order) string { return o.ID }

func (orderCodec) Encode(o *model.Order) (Cells, error) {
	c := make(Cells)
	c.putString(colOrderUserID, o.UserID)
	c.putDecimal(colOrderTotalAmount, o.TotalAmount)
	c.putDecimal(colOrderDiscountAmount, o.DiscountAmount)
	c.putDecimal(colOrderActualAmount, o.ActualAmount)
	c.putInt(colOrderStatus, int64(o.Status))
	c.putString(colOrderPayMethod, o.PayMethod)
	c.putTime(colOrderCreateTime, o.CreateTime)
	c.putTimePtr(colOrderPayTime, o.PayTime)
	c.putTimePtr(colOrderDeliverTime, o.DeliverTime)
	c.putTimePtr(colOrderCompleteTime, o.CompleteTime)
	c.putString(colOrderRemark, o.Remark)

	c.putString(colOrderReceiver, o.Receiver)
	c.putString(colOrderPhone, o.Phone)
	c.putString(colOrderAddress, o.Address)
	c.putString(colOrderPostcode, o.Postcode)

	items := o.Items
	if items == nil {
		items = []model.OrderItem{}
	}
	if err := c.putJSON(colOrderItems, items); err != nil {
		return nil, err
	}

	c.putString(colOrderExpressCompany, o.ExpressCompany)
	c.putString(colOrderExpressNo, o.ExpressNo)
	if len(o.Logistics) > 0 {
		if err := c.putJSON(colOrderTrace, o.Logistics); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (orderCodec) Decode(rowKey string, c Cells) (*model.Order, error) {
	d := decoder{cells: c}
	o := &model.Order{
		ID:             rowKey,
		UserID:         c.str(colOrderUserID),
		TotalAmount:    d.decimal(colOrderTotalAmount),
		DiscountAmount: d.decimal(colOrderDiscountAmount),
		ActualAmount:   d.decimal(colOrderActualAmount),
		Status:         model.OrderStatus(d.int64(colOrderStatus)),
		PayMethod:      c.str(colOrderPayMethod),
		CreateTime:     d.time(colOrderCreateTime),
		PayTime:        d.timePtr(colOrderPayTime),
		DeliverTime:    d.timePtr(colOrderDeliverTime),
		CompleteTime:   d.timePtr(colOrderCompleteTime),
		Remark:         c.str(colOrderRemark),
		Receiver:       c.str(colOrderReceiver),
		Phone:          c.str(colOrderPhone),
		Address:        c.str(colOrderAddress),
		Postcode:       c.str(colOrderPostcode),
		ExpressCompany: c.str(colOrderExpressCompany),
		ExpressNo:      c.str(colOrderExpressNo),
	}
	d.json(colOrderItems, &o.Items)
	d.json(colOrderTrace, &o.Logistics)
	if d.err != nil {
		return nil, d.err
	}
	return o, nil
}

// OrderRepository persists orders in the "orders" table. Row keys start with
// a timestamp so reverse scans list newest orders first.
type OrderRepository struct {
	*Repository[model.Order]
}

// NewOrderRepository creates an order repository on store.
func NewOrderRepository(store ColumnStore) *OrderRepository {
	return &OrderRepository{Repository: NewRepository[model.Order](store, OrderTable, orderCodec{})}
}

// UpdateStatus writes the status of an existing order along with the
// timestamp and payment columns the transition set.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *model.Order) error {
	c := make(Cells)
	c.putInt(colOrderStatus, int64(o.Status))
	c.putString(colOrderPayMethod, o.PayMethod)
	c.putTimePtr(colOrderPayTime, o.PayTime)
	c.putTimePtr(colOrderDeliverTime, o.DeliverTime)
	c.putTimePtr(colOrderCompleteTime, o.CompleteTime)
	c.putString(colOrderExpressCompany, o.ExpressCompany)
	c.putString(colOrderExpressNo, o.ExpressNo)
	return r.Update(ctx, o.ID, c)
}

// UpdateLogistics sets the carrier and tracking number of an order.
func (r *OrderRepository) UpdateLogistics(ctx context.Context, orderID, company, trackingNo string) error {
	c := make(Cells)
	c.putString(colOrderExpressCompany, company)
	c.putString(colOrderExpressNo, trackingNo)
	return r.Update(ctx, orderID, c)
}

// AppendTrace adds a logistics tracking event.
func (r *OrderRepository) AppendTrace(ctx context.Context, orderID string, info model.LogisticsInfo) error {
	o, err := r.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if info.Time.IsZero() {
		info.Time = time.Now()
	}
	c := make(Cells)
	if err := c.putJSON(colOrderTrace, append(o.Logistics, info)); err != nil {
		return err
	}
	return r.Update(ctx, orderID, c)
}

// FindByUser returns the newest orders of a user.
func (r *OrderRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*model.Order, error) {
	return r.Scan(ctx, ScanOptions{
		Filter:  &Filter{Column: colOrderUserID, Value: []byte(userID)},
		Reverse: true,
		Limit:   limit,
	})
}

// FindByStatus returns the newest orders in a status.
func (r *OrderRepository) FindByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]*model.Order, error) {
	return r.Scan(ctx, ScanOptions{
		Filter:  &Filter{Column: colOrderStatus, Value: []byte(status.Code())},
		Reverse: true,
		Limit:   limit,
	})
}

// Recent returns the newest orders.
func (r *OrderRepository) Recent(ctx context.Context, limit int) ([]*model.Order, error) {
	return r.Scan(ctx, ScanOptions{Reverse: true, Limit: limit})
}

// CountByStatus counts stored orders per durable status.
func (r *OrderRepository) CountByStatus(ctx context.Context) (*model.OrderStats, error) {
	stats := &model.OrderStats{Counts: make(map[model.OrderStatus]int64, len(model.AllStatuses))}
	for _, s := range model.AllStatuses {
		orders, err := r.FindByStatus(ctx, s, 0)
		if err != nil {
			return nil, err
		}
		stats.Counts[s] = int64(len(orders))
		stats.Total += int64(len(orders))
	}
	return stats, nil
}

var _ OrderStore = (*OrderRepository)(nil)
