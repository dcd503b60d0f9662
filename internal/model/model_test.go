package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRecalculate(t *testing.T) {
	o := &Order{
		DiscountAmount: decimal.NewFromInt(5),
		Items: []OrderItem{
			{ProductID: "p1", Price: decimal.RequireFromString("10.50"), Quantity: 2},
			{ProductID: "p2", Price: decimal.NewFromInt(3), Quantity: 1, Amount: decimal.NewFromInt(2)},
		},
	}

	o.Recalculate()

	assert.True(t, o.Items[0].Amount.Equal(decimal.RequireFromString("21")))
	assert.True(t, o.Items[1].Amount.Equal(decimal.NewFromInt(2)), "explicit amount is kept")
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(23)))
	assert.True(t, o.ActualAmount.Equal(decimal.NewFromInt(18)))
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    OrderStatus
		wantErr bool
	}{
		{"1", StatusPendingPayment, false},
		{"4", StatusCompleted, false},
		{"5", StatusCancelled, false},
		{"0", 0, true},
		{"9", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.Code())
		})
	}
}

func TestStatusPaid(t *testing.T) {
	assert.False(t, StatusPendingPayment.Paid())
	assert.True(t, StatusPendingDelivery.Paid())
	assert.True(t, StatusShipped.Paid())
	assert.True(t, StatusCompleted.Paid())
	assert.False(t, StatusCancelled.Paid())
}

func TestCartLineSelectedDefault(t *testing.T) {
	var line CartLine
	require.NoError(t, json.Unmarshal([]byte(`{"product_id":"p1","quantity":3,"add_time":100}`), &line))
	assert.True(t, line.Selected)
	assert.Equal(t, int64(3), line.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"product_id":"p1","quantity":1,"selected":false}`), &line))
	assert.False(t, line.Selected)
}

func TestOrderProductIDs(t *testing.T) {
	o := &Order{Items: []OrderItem{{ProductID: "a"}, {ProductID: "b"}, {ProductID: "a"}}}
	assert.Equal(t, []string{"a", "b"}, o.ProductIDs())
}
