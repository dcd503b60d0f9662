package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the listing state of a product.
type ProductStatus int

const (
	ProductOffShelf ProductStatus = 0
	ProductOnShelf  ProductStatus = 1
)

// Product is the durable catalog record.
type Product struct {
	ID          string          `json:"product_id"`
	Name        string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Status      ProductStatus   `json:"status"`
	Description string          `json:"description,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Tags        string          `json:"tags,omitempty"`
	TotalStock  int64           `json:"total_stock"`
	SafeStock   int64           `json:"safe_stock"`
	ViewCount   int64           `json:"view_count"`
	SaleCount   int64           `json:"sale_count"`
	CreateTime  time.Time       `json:"create_time"`
	UpdateTime  time.Time       `json:"update_time"`

	// RealTimeStock is filled from the stock counter on reads, never stored.
	RealTimeStock *int64 `json:"real_time_stock,omitempty"`
}

// Sellable reports whether the product can be put in a cart.
func (p *Product) Sellable() bool {
	return p.Status == ProductOnShelf
}

// MainImage returns the first image or an empty string.
func (p *Product) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Snapshot returns the fields captured on cart views and order lines.
func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.MainImage(),
		Sellable:  p.Sellable(),
	}
}

// ProductSnapshot is the subset of a product the cart and orders rely on.
type ProductSnapshot struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Sellable  bool            `json:"sellable"`
}
