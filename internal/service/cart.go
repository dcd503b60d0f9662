package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/metrics"
	"sales-realtime-api/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxLineRetries = 32

// deleteIfUnchangedScript removes a cart field only while it holds ARGV[2].
var deleteIfUnchangedScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// lineChange maps the current cart line to the one to store and an undo for
// side effects taken on the way.
type lineChange func(line *model.CartLine) (*model.CartLine, func(), error)

// StockLedger is the part of the inventory ledger a cart reserves against.
type StockLedger interface {
	DeductStock(ctx context.Context, productID string, qty int64) (bool, error)
	IncreaseStock(ctx context.Context, productID string, delta int64) (int64, error)
	GetStock(ctx context.Context, productID string) (int64, error)
}

// CartConfig holds cart settings.
type CartConfig struct {
	TTL time.Duration
}

// CartService keeps carts in Redis hashes. Stock is reserved when a line is
// added, so a line's quantity always matches what was taken from the ledger.
type CartService struct {
	client  redis.UniversalClient
	stock   StockLedger
	catalog ProductCatalog
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
	log     zerolog.Logger
}

// NewCartService creates the cart service.
func NewCartService(client redis.UniversalClient, stock StockLedger, catalog ProductCatalog, cfg CartConfig, m *metrics.Metrics, log zerolog.Logger) *CartService {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &CartService{
		client:  client,
		stock:   stock,
		catalog: catalog,
		ttl:     cfg.TTL,
		metrics: m,
		now:     time.Now,
		log:     log,
	}
}

// AddToCart reserves qty units of productID and adds them to the user's line.
func (s *CartService) AddToCart(ctx context.Context, userID, productID string, qty int64) (*model.CartLine, error) {
	if userID == "" || productID == "" {
		return nil, validationf("user id and product id are required")
	}
	if qty <= 0 {
		return nil, validationf("quantity must be positive, got %d", qty)
	}

	snap, err := s.catalog.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !snap.Sellable {
		return nil, validationf("product %s is not on sale", productID)
	}

	ok, err := s.stock.DeductStock(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: product %s, requested %d", ErrInsufficientStock, productID, qty)
	}

	line, err := s.updateLine(ctx, userID, productID, func(line *model.CartLine) (*model.CartLine, func(), error) {
		if line == nil {
			line = &model.CartLine{ProductID: productID, AddTime: s.now().UnixMilli(), Selected: true}
		}
		line.Quantity += qty
		return line, nil, nil
	})
	if err != nil {
		s.compensate(ctx, productID, qty)
		return nil, err
	}

	s.log.Info().Str("user_id", userID).Str("product_id", productID).Int64("qty", qty).Int64("total", line.Quantity).Msg("added to cart")
	return line, nil
}

// GetCart returns the user's cart after reconciling it with the catalog and
// the ledger. Lines of products that vanished, were delisted or ran out of
// stock are evicted without returning their reservation. Lines reserving more
// than the current stock are clamped to it.
func (s *CartService) GetCart(ctx context.Context, userID string) ([]model.CartItem, error) {
	raw, err := s.client.HGetAll(ctx, cache.CartKey(userID)).Result()
	if err != nil {
		return nil, persistence("read cart", err)
	}

	items := make([]model.CartItem, 0, len(raw))
	for productID, data := range raw {
		var line model.CartLine
		if err := json.Unmarshal([]byte(data), &line); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Str("product_id", productID).Msg("evicting unreadable cart line")
			s.evict(ctx, userID, productID, data, "corrupt")
			continue
		}
		line.ProductID = productID

		snap, err := s.catalog.Snapshot(ctx, productID)
		if errors.Is(err, ErrNotFound) {
			s.evict(ctx, userID, productID, data, "missing")
			continue
		}
		if err != nil {
			return nil, err
		}
		if !snap.Sellable {
			s.evict(ctx, userID, productID, data, "delisted")
			continue
		}

		stock, err := s.stock.GetStock(ctx, productID)
		if err != nil {
			return nil, err
		}
		if stock <= 0 {
			s.evict(ctx, userID, productID, data, "out_of_stock")
			continue
		}
		if stock < line.Quantity {
			s.log.Info().Str("user_id", userID).Str("product_id", productID).
				Int64("reserved", line.Quantity).Int64("stock", stock).Msg("clamping cart line to stock")
			clamped, err := s.updateLine(ctx, userID, productID, func(cur *model.CartLine) (*model.CartLine, func(), error) {
				if cur == nil {
					return nil, nil, fmt.Errorf("%w: product %s not in cart", ErrNotFound, productID)
				}
				if cur.Quantity > stock {
					cur.Quantity = stock
				}
				return cur, nil, nil
			})
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			line = *clamped
			s.metrics.CartReconciled("clamped")
		}

		items = append(items, model.CartItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			AddTime:   line.AddTime,
			Selected:  line.Selected,
			Name:      snap.Name,
			Price:     snap.Price,
			Image:     snap.Image,
			Subtotal:  snap.Price.Mul(decimal.NewFromInt(line.Quantity)),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].AddTime != items[j].AddTime {
			return items[i].AddTime < items[j].AddTime
		}
		return items[i].ProductID < items[j].ProductID
	})
	return items, nil
}

// evict drops a line only if it still holds the value GetCart judged, so a
// concurrent add is not thrown away with it.
func (s *CartService) evict(ctx context.Context, userID, productID, seen, reason string) {
	n, err := deleteIfUnchangedScript.Run(ctx, s.client, []string{cache.CartKey(userID)}, productID, seen).Int64()
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("product_id", productID).Msg("cart line eviction failed")
		return
	}
	if n == 0 {
		return
	}
	s.metrics.CartReconciled(reason)
	s.log.Info().Str("user_id", userID).Str("product_id", productID).Str("reason", reason).Msg("cart line evicted")
}

// UpdateQuantity sets the quantity of a line, reserving or returning the
// difference. A quantity of zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, qty int64) (*model.CartLine, error) {
	if qty <= 0 {
		return nil, s.RemoveFromCart(ctx, userID, productID)
	}

	return s.updateLine(ctx, userID, productID, func(line *model.CartLine) (*model.CartLine, func(), error) {
		if line == nil {
			return nil, nil, fmt.Errorf("%w: product %s not in cart", ErrNotFound, productID)
		}
		undo, err := s.adjust(ctx, productID, qty-line.Quantity)
		if err != nil {
			return nil, nil, err
		}
		line.Quantity = qty
		return line, undo, nil
	})
}

// adjust reserves a positive delta or returns a negative one, and hands back
// the reverse operation.
func (s *CartService) adjust(ctx context.Context, productID string, delta int64) (func(), error) {
	switch {
	case delta > 0:
		ok, err := s.stock.DeductStock(ctx, productID, delta)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: product %s, requested %d more", ErrInsufficientStock, productID, delta)
		}
		return func() { s.compensate(ctx, productID, delta) }, nil
	case delta < 0:
		if _, err := s.stock.IncreaseStock(ctx, productID, -delta); err != nil {
			return nil, err
		}
		return func() {
			ok, err := s.stock.DeductStock(ctx, productID, -delta)
			if err != nil || !ok {
				s.log.Error().Err(err).Str("product_id", productID).Int64("qty", -delta).Msg("re-reserving stock after failed cart write failed")
			}
		}, nil
	}
	return nil, nil
}

// RemoveFromCart deletes a line and returns its reservation to the ledger.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID string) error {
	_, err := s.release(ctx, userID, productID)
	return err
}

// release deletes the line and returns the quantity it held at deletion.
// Only the transaction that removed the field returns stock, so concurrent
// removals cannot return a reservation twice.
func (s *CartService) release(ctx context.Context, userID, productID string) (int64, error) {
	var qty int64
	_, err := s.updateLine(ctx, userID, productID, func(line *model.CartLine) (*model.CartLine, func(), error) {
		if line == nil {
			return nil, nil, fmt.Errorf("%w: product %s not in cart", ErrNotFound, productID)
		}
		qty = line.Quantity
		return nil, nil, nil
	})
	if err != nil {
		return 0, err
	}
	if qty > 0 {
		if _, err := s.stock.IncreaseStock(ctx, productID, qty); err != nil {
			return 0, err
		}
	}
	s.log.Info().Str("user_id", userID).Str("product_id", productID).Int64("qty", qty).Msg("removed from cart")
	return qty, nil
}

// ClearCart returns every reconciled line to the ledger and deletes it.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	items, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := s.release(ctx, userID, item.ProductID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// Checkout turns the selected lines into order lines priced at the current
// catalog price. The ledger and the cart are left as they are.
func (s *CartService) Checkout(ctx context.Context, userID string) ([]model.OrderItem, error) {
	items, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]model.OrderItem, 0, len(items))
	for _, item := range items {
		if !item.Selected {
			continue
		}
		lines = append(lines, model.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Amount:      item.Subtotal,
			Image:       item.Image,
		})
	}
	if len(lines) == 0 {
		return nil, validationf("no selected items in cart")
	}
	return lines, nil
}

// CountItems returns the total quantity in the cart.
func (s *CartService) CountItems(ctx context.Context, userID string) (int64, error) {
	lines, err := s.lines(ctx, userID)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, l := range lines {
		n += l.Quantity
	}
	return n, nil
}

// UpdateSelected marks a line for checkout or not.
func (s *CartService) UpdateSelected(ctx context.Context, userID, productID string, selected bool) error {
	_, err := s.updateLine(ctx, userID, productID, func(line *model.CartLine) (*model.CartLine, func(), error) {
		if line == nil {
			return nil, nil, fmt.Errorf("%w: product %s not in cart", ErrNotFound, productID)
		}
		line.Selected = selected
		return line, nil, nil
	})
	return err
}

// ExistsInCart reports whether the user has a line for productID.
func (s *CartService) ExistsInCart(ctx context.Context, userID, productID string) (bool, error) {
	ok, err := s.client.HExists(ctx, cache.CartKey(userID), productID).Result()
	if err != nil {
		return false, persistence("check cart line", err)
	}
	return ok, nil
}

// ProductQuantity returns the reserved quantity of a line, 0 when absent.
func (s *CartService) ProductQuantity(ctx context.Context, userID, productID string) (int64, error) {
	line, err := s.line(ctx, userID, productID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return line.Quantity, nil
}

// ConsumeLines takes the quantities of items out of the cart without
// touching the ledger; the stock now belongs to a paid order.
func (s *CartService) ConsumeLines(ctx context.Context, userID string, items []model.OrderItem) error {
	for _, item := range items {
		consumed := item.Quantity
		_, err := s.updateLine(ctx, userID, item.ProductID, func(line *model.CartLine) (*model.CartLine, func(), error) {
			if line == nil {
				return nil, nil, fmt.Errorf("%w: product %s not in cart", ErrNotFound, item.ProductID)
			}
			if line.Quantity <= consumed {
				return nil, nil, nil
			}
			line.Quantity -= consumed
			return line, nil, nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *CartService) line(ctx context.Context, userID, productID string) (*model.CartLine, error) {
	line, err := decodeLine(productID, s.client.HGet(ctx, cache.CartKey(userID), productID))
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, fmt.Errorf("%w: product %s not in cart", ErrNotFound, productID)
	}
	return line, nil
}

// decodeLine returns nil for an absent field.
func decodeLine(productID string, cmd *redis.StringCmd) (*model.CartLine, error) {
	data, err := cmd.Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("read cart line", err)
	}
	var line model.CartLine
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, persistence("decode cart line", err)
	}
	line.ProductID = productID
	return &line, nil
}

func (s *CartService) lines(ctx context.Context, userID string) ([]model.CartLine, error) {
	raw, err := s.client.HGetAll(ctx, cache.CartKey(userID)).Result()
	if err != nil {
		return nil, persistence("read cart", err)
	}
	lines := make([]model.CartLine, 0, len(raw))
	for productID, data := range raw {
		var line model.CartLine
		if err := json.Unmarshal([]byte(data), &line); err != nil {
			continue
		}
		line.ProductID = productID
		lines = append(lines, line)
	}
	return lines, nil
}

// updateLine runs change against the current line (nil when absent) inside
// a WATCH on the cart and writes what it returns; nil deletes the line. When
// another writer commits first, undo runs and change is retried against the
// fresh line.
func (s *CartService) updateLine(ctx context.Context, userID, productID string, change lineChange) (*model.CartLine, error) {
	key := cache.CartKey(userID)
	for attempt := 0; attempt < maxLineRetries; attempt++ {
		var out *model.CartLine
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := decodeLine(productID, tx.HGet(ctx, key, productID))
			if err != nil {
				return err
			}
			next, undo, err := change(cur)
			if err != nil {
				return err
			}

			var data []byte
			if next != nil {
				if data, err = json.Marshal(next); err != nil {
					if undo != nil {
						undo()
					}
					return persistence("encode cart line", err)
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.HDel(ctx, key, productID)
					return nil
				}
				pipe.HSet(ctx, key, productID, data)
				pipe.Expire(ctx, key, s.ttl)
				return nil
			})
			if err != nil {
				if undo != nil {
					undo()
				}
				if errors.Is(err, redis.TxFailedErr) {
					return err
				}
				return persistence("write cart line", err)
			}
			out = next
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return nil, fmt.Errorf("%w: cart of %s", ErrConcurrencyConflict, userID)
}

func (s *CartService) compensate(ctx context.Context, productID string, qty int64) {
	if _, err := s.stock.IncreaseStock(ctx, productID, qty); err != nil {
		s.log.Error().Err(err).Str("product_id", productID).Int64("qty", qty).Msg("returning reserved stock failed")
	}
}
