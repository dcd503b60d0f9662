package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state. The numeric code is the wire and
// cache representation.
type OrderStatus int

const (
	StatusPendingPayment  OrderStatus = 1
	StatusPendingDelivery OrderStatus = 2
	StatusShipped         OrderStatus = 3
	StatusCompleted       OrderStatus = 4
	StatusCancelled       OrderStatus = 5
)

var statusNames = map[OrderStatus]string{
	StatusPendingPayment:  "PENDING_PAYMENT",
	StatusPendingDelivery: "PENDING_DELIVERY",
	StatusShipped:         "SHIPPED",
	StatusCompleted:       "COMPLETED",
	StatusCancelled:       "CANCELLED",
}

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPendingPayment,
	StatusPendingDelivery,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// Valid reports whether s is one of the known codes.
func (s OrderStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Code returns the cache representation of the status.
func (s OrderStatus) Code() string {
	return strconv.Itoa(int(s))
}

// Paid reports whether stock for the order has been handed over to the buyer
// side of the lifecycle.
func (s OrderStatus) Paid() bool {
	return s == StatusPendingDelivery || s == StatusShipped || s == StatusCompleted
}

// ParseStatus parses a numeric status code.
func ParseStatus(code string) (OrderStatus, error) {
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, fmt.Errorf("invalid status code %q: %w", code, err)
	}
	s := OrderStatus(n)
	if !s.Valid() {
		return 0, fmt.Errorf("unknown status code %d", n)
	}
	return s, nil
}

// Payment methods accepted by Pay.
const (
	PayAlipay   = "alipay"
	PayWechat   = "wechat"
	PayBankCard = "bank_card"
	PayBalance  = "balance"
)

// ValidPayMethod reports whether m is an accepted payment method.
func ValidPayMethod(m string) bool {
	switch m {
	case PayAlipay, PayWechat, PayBankCard, PayBalance:
		return true
	}
	return false
}

// OrderItem is one line of an order with name and price captured at checkout.
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	Image       string          `json:"image,omitempty"`
}

// LogisticsInfo is one tracking event of a shipment.
type LogisticsInfo struct {
	Time     time.Time `json:"time"`
	Content  string    `json:"content"`
	Location string    `json:"location,omitempty"`
}

// Order is the durable order record.
type Order struct {
	ID             string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ActualAmount   decimal.Decimal `json:"actual_amount"`
	Status         OrderStatus     `json:"status"`
	PayMethod      string          `json:"pay_method,omitempty"`
	CreateTime     time.Time       `json:"create_time"`
	PayTime        *time.Time      `json:"pay_time,omitempty"`
	DeliverTime    *time.Time      `json:"deliver_time,omitempty"`
	CompleteTime   *time.Time      `json:"complete_time,omitempty"`

	Receiver string `json:"receiver,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Postcode string `json:"postcode,omitempty"`

	Items []OrderItem `json:"items"`

	ExpressCompany string          `json:"express_company,omitempty"`
	ExpressNo      string          `json:"express_no,omitempty"`
	Logistics      []LogisticsInfo `json:"logistics,omitempty"`

	Remark string `json:"remark,omitempty"`
}

// StatusDesc returns the human readable status name.
func (o *Order) StatusDesc() string { return o.Status.String() }

func (o *Order) CanPay() bool      { return o.Status == StatusPendingPayment }
func (o *Order) CanCancel() bool   { return o.Status == StatusPendingPayment }
func (o *Order) CanDeliver() bool  { return o.Status == StatusPendingDelivery }
func (o *Order) CanComplete() bool { return o.Status == StatusShipped }

// Recalculate fills missing line amounts with price*quantity and derives the
// order totals from the lines.
func (o *Order) Recalculate() {
	total := decimal.Zero
	for i := range o.Items {
		item := &o.Items[i]
		if item.Amount.IsZero() {
			item.Amount = item.Price.Mul(decimal.NewFromInt(item.Quantity))
		}
		total = total.Add(item.Amount)
	}
	o.TotalAmount = total
	o.ActualAmount = total.Sub(o.DiscountAmount)
}

// ProductIDs returns the distinct product ids of the order lines.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// OrderStats counts orders per status.
type OrderStats struct {
	Total  int64                 `json:"total"`
	Counts map[OrderStatus]int64 `json:"counts"`
}
