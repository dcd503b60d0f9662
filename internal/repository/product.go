package repository

import (
	"context"
	"strconv"
	"time"

	"sales-realtime-api/internal/model"
)

const (
	ProductTable = "products"

	colProductName        = "base:name"
	colProductCategory    = "base:category"
	colProductBrand       = "base:brand"
	colProductPrice       = "base:price"
	colProductCost        = "base:cost"
	colProductStatus      = "base:status"
	colProductCreateTime  = "base:create_time"
	colProductDescription = "detail:description"
	colProductImages      = "detail:images"
	colProductTags        = "detail:tags"
	colProductTotalStock  = "stock:total"
	colProductSafeStock   = "stock:safe"
	colProductViewCount   = "stat:view_count"
	colProductSaleCount   = "stat:sale_count"
	colProductUpdateTime  = "stat:update_time"
)

type productCodec struct{}

func (productCodec) RowKey(p *model.Product) string { return p.ID }

func (productCodec) Encode(p *model.Product) (Cells, error) {
	c := make(Cells)
	c.putString(colProductName, p.Name)
	c.putString(colProductCategory, p.Category)
	c.putString(colProductBrand, p.Brand)
	c.putDecimal(colProductPrice, p.Price)
	c.putDecimal(colProductCost, p.Cost)
	c.putInt(colProductStatus, int64(p.Status))
	c.putTime(colProductCreateTime, p.CreateTime)
	c.putString(colProductDescription, p.Description)
	if len(p.Images) > 0 {
		if err := c.putJSON(colProductImages, p.Images); err != nil {
			return nil, err
		}
	}
	c.putString(colProductTags, p.Tags)
	c.putInt(colProductTotalStock, p.TotalStock)
	c.putInt(colProductSafeStock, p.SafeStock)
	c.putInt(colProductViewCount, p.ViewCount)
	c.putInt(colProductSaleCount, p.SaleCount)
	c.putTime(colProductUpdateTime, p.UpdateTime)
	return c, nil
}

func (productCodec) Decode(rowKey string, c Cells) (*model.Product, error) {
	d := decoder{cells: c}
	p := &model.Product{
		ID:          rowKey,
		Name:        c.str(colProductName),
		Category:    c.str(colProductCategory),
		Brand:       c.str(colProductBrand),
		Price:       d.decimal(colProductPrice),
		Cost:        d.decimal(colProductCost),
		Status:      model.ProductStatus(d.int64(colProductStatus)),
		CreateTime:  d.time(colProductCreateTime),
		Description: c.str(colProductDescription),
		Tags:        c.str(colProductTags),
		TotalStock:  d.int64(colProductTotalStock),
		SafeStock:   d.int64(colProductSafeStock),
		ViewCount:   d.int64(colProductViewCount),
		SaleCount:   d.int64(colProductSaleCount),
		UpdateTime:  d.time(colProductUpdateTime),
	}
	d.json(colProductImages, &p.Images)
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// ProductRepository persists the product catalog in the "products" table.
type ProductRepository struct {
	*Repository[model.Product]
	now func() time.Time
}

// NewProductRepository creates a product repository on store.
func NewProductRepository(store ColumnStore) *ProductRepository {
	return &ProductRepository{
		Repository: NewRepository[model.Product](store, ProductTable, productCodec{}),
		now:        time.Now,
	}
}

// UpdateStatus lists or delists a product.
func (r *ProductRepository) UpdateStatus(ctx context.Context, productID string, status model.ProductStatus) error {
	c := make(Cells)
	c.putInt(colProductStatus, int64(status))
	c.putTime(colProductUpdateTime, r.now())
	return r.Update(ctx, productID, c)
}

// IncrementSaleCount adds delta to the durable sale counter.
func (r *ProductRepository) IncrementSaleCount(ctx context.Context, productID string, delta int64) (int64, error) {
	return r.Increment(ctx, productID, colProductSaleCount, delta)
}

// IncrementViewCount adds delta to the durable view counter.
func (r *ProductRepository) IncrementViewCount(ctx context.Context, productID string, delta int64) (int64, error) {
	return r.Increment(ctx, productID, colProductViewCount, delta)
}

// FindAll returns up to limit products ordered by id.
func (r *ProductRepository) FindAll(ctx context.Context, limit int) ([]*model.Product, error) {
	return r.Scan(ctx, ScanOptions{Limit: limit})
}

// FindByCategory returns up to limit products of a category.
func (r *ProductRepository) FindByCategory(ctx context.Context, category string, limit int) ([]*model.Product, error) {
	return r.Scan(ctx, ScanOptions{
		Filter: &Filter{Column: colProductCategory, Value: []byte(category)},
		Limit:  limit,
	})
}

// FindByStatus returns up to limit products in a listing state.
func (r *ProductRepository) FindByStatus(ctx context.Context, status model.ProductStatus, limit int) ([]*model.Product, error) {
	return r.Scan(ctx, ScanOptions{
		Filter: &Filter{Column: colProductStatus, Value: []byte(strconv.Itoa(int(status)))},
		Limit:  limit,
	})
}

var _ ProductStore = (*ProductRepository)(nil)
