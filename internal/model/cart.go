package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CartLine is the stored form of one cart entry. Quantity always equals the
// stock already deducted for this line.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	AddTime   int64  `json:"add_time"`
	Selected  bool   `json:"selected"`
}

// UnmarshalJSON defaults Selected to true when the field is absent.
func (l *CartLine) UnmarshalJSON(data []byte) error {
	type alias CartLine
	aux := struct {
		*alias
		Selected *bool `json:"selected"`
	}{alias: (*alias)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.Selected = aux.Selected == nil || *aux.Selected
	return nil
}

// CartItem is a reconciled cart line enriched with catalog data.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	AddTime   int64           `json:"add_time"`
	Selected  bool            `json:"selected"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
