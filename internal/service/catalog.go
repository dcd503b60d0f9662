package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/model"
	"sales-realtime-api/internal/repository"

	"github.com/rs/zerolog"
)

// ProductCatalog answers the product questions carts and orders ask.
// Snapshot returns ErrNotFound for unknown products.
type ProductCatalog interface {
	Snapshot(ctx context.Context, productID string) (*model.ProductSnapshot, error)
}

// CatalogService owns products: the durable record, its read-through cache
// entry and the initial stock counter.
type CatalogService struct {
	products repository.ProductStore
	stock    *StockService
	loader   *cache.Loader
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewCatalogService creates the catalog. Cached products expire after ttl.
func NewCatalogService(products repository.ProductStore, stock *StockService, loader *cache.Loader, ttl time.Duration, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		stock:    stock,
		loader:   loader,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

// Get returns a product through the cache.
func (s *CatalogService) Get(ctx context.Context, productID string) (*model.Product, error) {
	if productID == "" {
		return nil, validationf("product id is required")
	}

	data, err := s.loader.GetOrLoad(ctx, productID, s.ttl, func(ctx context.Context) ([]byte, error) {
		p, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(p)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, persistence("load product", err)
	}

	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		// A bad cache entry must not hide the product; drop it and read through.
		s.log.Warn().Err(err).Str("product_id", productID).Msg("dropping undecodable cached product")
		_ = s.loader.Invalidate(ctx, productID)
		fresh, err := s.products.FindByID(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		if err != nil {
			return nil, persistence("load product", err)
		}
		return fresh, nil
	}
	return &p, nil
}

// GetWithStock returns a product with its live stock counter filled in.
func (s *CatalogService) GetWithStock(ctx context.Context, productID string) (*model.Product, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	stock, err := s.stock.GetStock(ctx, productID)
	if err != nil {
		return nil, err
	}
	p.RealTimeStock = &stock
	return p, nil
}

// Snapshot implements ProductCatalog.
func (s *CatalogService) Snapshot(ctx context.Context, productID string) (*model.ProductSnapshot, error) {
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	snap := p.Snapshot()
	return &snap, nil
}

// Exists reports whether the product is known.
func (s *CatalogService) Exists(ctx context.Context, productID string) (bool, error) {
	_, err := s.Get(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IsSellable reports whether the product exists and is on shelf.
func (s *CatalogService) IsSellable(ctx context.Context, productID string) (bool, error) {
	p, err := s.Get(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Sellable(), nil
}

// Save creates or replaces a product. A non-nil stock also sets the live
// stock counter.
func (s *CatalogService) Save(ctx context.Context, p *model.Product, stock *int64) error {
	if p.ID == "" || p.Name == "" {
		return validationf("product id and name are required")
	}
	if p.Price.IsNegative() {
		return validationf("price must not be negative")
	}
	if stock != nil && *stock < 0 {
		return validationf("stock must not be negative")
	}

	now := s.now()
	if p.CreateTime.IsZero() {
		p.CreateTime = now
	}
	p.UpdateTime = now
	if stock != nil {
		p.TotalStock = *stock
	}

	err := s.loader.PutAndInvalidate(ctx, p.ID, func(ctx context.Context) error {
		return s.products.Save(ctx, p)
	})
	if err != nil {
		return persistence("save product", err)
	}

	if stock != nil {
		if err := s.stock.SetStock(ctx, p.ID, *stock); err != nil {
			return err
		}
	}
	s.log.Info().Str("product_id", p.ID).Msg("product saved")
	return nil
}

// SetStatus lists or delists a product.
func (s *CatalogService) SetStatus(ctx context.Context, productID string, status model.ProductStatus) error {
	if status != model.ProductOnShelf && status != model.ProductOffShelf {
		return validationf("unknown product status %d", status)
	}
	err := s.loader.PutAndInvalidate(ctx, productID, func(ctx context.Context) error {
		return s.products.UpdateStatus(ctx, productID, status)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if err != nil {
		return persistence("update product status", err)
	}
	return nil
}

// Delete removes the product and its stock counter.
func (s *CatalogService) Delete(ctx context.Context, productID string) error {
	err := s.loader.PutAndInvalidate(ctx, productID, func(ctx context.Context) error {
		return s.products.Delete(ctx, productID)
	})
	if err != nil {
		return persistence("delete product", err)
	}
	return s.stock.DeleteStock(ctx, productID)
}

// List returns products, optionally of one category.
func (s *CatalogService) List(ctx context.Context, category string, limit int) ([]*model.Product, error) {
	var (
		products []*model.Product
		err      error
	)
	if category != "" {
		products, err = s.products.FindByCategory(ctx, category, limit)
	} else {
		products, err = s.products.FindAll(ctx, limit)
	}
	if err != nil {
		return nil, persistence("list products", err)
	}
	return products, nil
}

// RecordView bumps the durable view counter.
func (s *CatalogService) RecordView(ctx context.Context, productID string) error {
	if _, err := s.products.IncrementViewCount(ctx, productID, 1); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return persistence("record view", err)
	}
	return nil
}

// FlushSaleCounts persists buffered sale counts. Products deleted in the
// meantime are skipped.
func (s *CatalogService) FlushSaleCounts(ctx context.Context, deltas map[string]int64) error {
	for productID, n := range deltas {
		_, err := s.products.IncrementSaleCount(ctx, productID, n)
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Str("product_id", productID).Int64("sales", n).Msg("dropping sale count of unknown product")
			continue
		}
		if err != nil {
			return err
		}
		if err := s.loader.Invalidate(ctx, productID); err != nil {
			s.log.Warn().Err(err).Str("product_id", productID).Msg("product cache invalidation failed")
		}
	}
	return nil
}

var _ ProductCatalog = (*CatalogService)(nil)
