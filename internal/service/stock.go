package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/metrics"
	"sales-realtime-api/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// decrementWithFloorScript decrements KEYS[1] by ARGV[1] only when the
// counter holds at least that much. A missing counter counts as 0. Returns
// {1, remaining} on success and {0, current} when rejected.
var decrementWithFloorScript = redis.NewScript(`
	local current = tonumber(redis.call("GET", KEYS[1]) or "0")
	local delta = tonumber(ARGV[1])
	if current < delta then
		return {0, current}
	end
	local left = redis.call("DECRBY", KEYS[1], delta)
	redis.call("EXPIRE", KEYS[1], ARGV[2])
	return {1, left}
`)

// StockConfig holds ledger settings.
type StockConfig struct {
	TTL      time.Duration
	LeaseTTL time.Duration
}

// StockService is the inventory ledger: per-product stock counters and
// flash-sale counters kept in Redis. Counters never go below zero.
type StockService struct {
	client  redis.UniversalClient
	locker  *cache.Locker
	ttl     time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewStockService creates the ledger.
func NewStockService(client redis.UniversalClient, cfg StockConfig, m *metrics.Metrics, log zerolog.Logger) *StockService {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	return &StockService{
		client:  client,
		locker:  cache.NewLocker(client, cfg.LeaseTTL),
		ttl:     cfg.TTL,
		metrics: m,
		log:     log,
	}
}

// SetStock overwrites the counter of productID and resets its TTL.
func (s *StockService) SetStock(ctx context.Context, productID string, qty int64) error {
	if productID == "" {
		return validationf("product id is required")
	}
	if qty < 0 {
		return validationf("stock must not be negative, got %d", qty)
	}
	if err := s.set(ctx, cache.StockKey(productID), qty); err != nil {
		return err
	}
	s.log.Info().Str("product_id", productID).Int64("stock", qty).Msg("stock set")
	return nil
}

// GetStock returns the counter of productID, 0 when absent.
func (s *StockService) GetStock(ctx context.Context, productID string) (int64, error) {
	return s.get(ctx, cache.StockKey(productID))
}

// IncreaseStock adds delta to the counter and returns the new value.
func (s *StockService) IncreaseStock(ctx context.Context, productID string, delta int64) (int64, error) {
	if productID == "" {
		return 0, validationf("product id is required")
	}
	return s.increase(ctx, "increase", cache.StockKey(productID), delta)
}

// ReleaseStock returns previously deducted stock to the ledger.
func (s *StockService) ReleaseStock(ctx context.Context, productID string, qty int64) error {
	_, err := s.IncreaseStock(ctx, productID, qty)
	return err
}

// DecreaseStock subtracts delta. It fails with ErrInsufficientStock and
// leaves the counter untouched when fewer than delta units are available.
func (s *StockService) DecreaseStock(ctx context.Context, productID string, delta int64) (int64, error) {
	if productID == "" {
		return 0, validationf("product id is required")
	}
	return s.decrease(ctx, "decrease", cache.StockKey(productID), delta)
}

// DeductStock reserves qty units. It reports false when stock is short.
func (s *StockService) DeductStock(ctx context.Context, productID string, qty int64) (bool, error) {
	if productID == "" {
		return false, validationf("product id is required")
	}
	return s.deduct(ctx, cache.StockKey(productID), qty)
}

// LockStock deducts qty while holding the product's lease. A lease held by
// someone else yields ErrConcurrencyConflict.
func (s *StockService) LockStock(ctx context.Context, productID string, qty int64) (bool, error) {
	if productID == "" {
		return false, validationf("product id is required")
	}
	return s.lock(ctx, cache.StockLockKey(productID), cache.StockKey(productID), qty)
}

// CheckStock reports whether at least qty units are available.
func (s *StockService) CheckStock(ctx context.Context, productID string, qty int64) (bool, error) {
	stock, err := s.GetStock(ctx, productID)
	if err != nil {
		return false, err
	}
	return stock >= qty, nil
}

// BatchCheckStock checks several products at once.
func (s *StockService) BatchCheckStock(ctx context.Context, wanted map[string]int64) (map[string]bool, error) {
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	stocks, err := s.BatchGetStock(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(wanted))
	for id, qty := range wanted {
		result[id] = stocks[id] >= qty
	}
	return result, nil
}

// BatchLockStock locks every requested quantity or none. Products are locked
// in id order; on the first failure the already locked quantities are
// returned to the ledger.
func (s *StockService) BatchLockStock(ctx context.Context, wanted map[string]int64) error {
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	locked := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := s.LockStock(ctx, id, wanted[id])
		if err == nil && !ok {
			err = fmt.Errorf("%w: product %s", ErrInsufficientStock, id)
		}
		if err != nil {
			s.rollback(ctx, locked, wanted)
			return err
		}
		locked = append(locked, id)
	}
	return nil
}

func (s *StockService) rollback(ctx context.Context, ids []string, qty map[string]int64) {
	for _, id := range ids {
		if err := s.ReleaseStock(ctx, id, qty[id]); err != nil {
			s.log.Error().Err(err).Str("product_id", id).Int64("qty", qty[id]).Msg("rollback of locked stock failed")
		}
	}
}

// StockExists reports whether a counter exists for productID.
func (s *StockService) StockExists(ctx context.Context, productID string) (bool, error) {
	n, err := s.client.Exists(ctx, cache.StockKey(productID)).Result()
	if err != nil {
		return false, persistence("stock exists", err)
	}
	return n > 0, nil
}

// DeleteStock removes the counter of productID.
func (s *StockService) DeleteStock(ctx context.Context, productID string) error {
	if err := s.client.Del(ctx, cache.StockKey(productID)).Err(); err != nil {
		return persistence("delete stock", err)
	}
	return nil
}

// BatchGetStock returns the counters of several products; missing ones are 0.
func (s *StockService) BatchGetStock(ctx context.Context, productIDs []string) (map[string]int64, error) {
	result := make(map[string]int64, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = cache.StockKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence("batch get stock", err)
	}
	for i, v := range vals {
		result[productIDs[i]] = toInt64(v)
	}
	return result, nil
}

// StockInfo describes the counter of productID.
func (s *StockService) StockInfo(ctx context.Context, productID string) (*model.StockInfo, error) {
	exists, err := s.StockExists(ctx, productID)
	if err != nil {
		return nil, err
	}
	stock, err := s.GetStock(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &model.StockInfo{ProductID: productID, Stock: stock, Exists: exists}, nil
}

// Flash-sale counters live in their own namespace and never touch the
// regular stock of the product. The key joins sale and product with "_", so
// sale ids must not contain one.

func flashKey(saleID, productID string) (string, error) {
	if saleID == "" || productID == "" {
		return "", validationf("sale id and product id are required")
	}
	if strings.Contains(saleID, "_") {
		return "", validationf("sale id %q must not contain '_'", saleID)
	}
	return cache.FlashStockKey(saleID, productID), nil
}

func (s *StockService) SetFlashStock(ctx context.Context, saleID, productID string, qty int64) error {
	key, err := flashKey(saleID, productID)
	if err != nil {
		return err
	}
	if qty < 0 {
		return validationf("stock must not be negative, got %d", qty)
	}
	return s.set(ctx, key, qty)
}

func (s *StockService) GetFlashStock(ctx context.Context, saleID, productID string) (int64, error) {
	key, err := flashKey(saleID, productID)
	if err != nil {
		return 0, err
	}
	return s.get(ctx, key)
}

func (s *StockService) IncreaseFlashStock(ctx context.Context, saleID, productID string, delta int64) (int64, error) {
	key, err := flashKey(saleID, productID)
	if err != nil {
		return 0, err
	}
	return s.increase(ctx, "flash_increase", key, delta)
}

func (s *StockService) DecreaseFlashStock(ctx context.Context, saleID, productID string, delta int64) (int64, error) {
	key, err := flashKey(saleID, productID)
	if err != nil {
		return 0, err
	}
	return s.decrease(ctx, "flash_decrease", key, delta)
}

func (s *StockService) DeductFlashStock(ctx context.Context, saleID, productID string, qty int64) (bool, error) {
	key, err := flashKey(saleID, productID)
	if err != nil {
		return false, err
	}
	return s.deduct(ctx, key, qty)
}

func (s *StockService) LockFlashStock(ctx context.Context, saleID, productID string, qty int64) (bool, error) {
	key, err := flashKey(saleID, productID)
	if err != nil {
		return false, err
	}
	return s.lock(ctx, cache.FlashStockLockKey(saleID, productID), key, qty)
}

func (s *StockService) set(ctx context.Context, key string, qty int64) error {
	if err := s.client.Set(ctx, key, qty, s.ttl).Err(); err != nil {
		s.metrics.StockOp("set", "error")
		return persistence("set stock", err)
	}
	s.metrics.StockOp("set", "ok")
	return nil
}

func (s *StockService) get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, persistence("get stock", err)
	}
	return n, nil
}

func (s *StockService) increase(ctx context.Context, op, key string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, validationf("delta must be positive, got %d", delta)
	}

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, delta)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		s.metrics.StockOp(op, "error")
		return 0, persistence("increase stock", err)
	}
	s.metrics.StockOp(op, "ok")
	s.log.Debug().Str("key", key).Int64("delta", delta).Int64("stock", incr.Val()).Msg("stock increased")
	return incr.Val(), nil
}

func (s *StockService) decrease(ctx context.Context, op, key string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, validationf("delta must be positive, got %d", delta)
	}

	res, err := decrementWithFloorScript.Run(ctx, s.client, []string{key}, delta, int64(s.ttl/time.Second)).Int64Slice()
	if err != nil {
		s.metrics.StockOp(op, "error")
		return 0, persistence("decrease stock", err)
	}
	if len(res) != 2 {
		s.metrics.StockOp(op, "error")
		return 0, persistence("decrease stock", fmt.Errorf("unexpected script reply %v", res))
	}
	if res[0] == 0 {
		s.metrics.StockOp(op, "insufficient")
		s.log.Info().Str("key", key).Int64("requested", delta).Int64("available", res[1]).Msg("insufficient stock")
		return res[1], fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, delta, res[1])
	}
	s.metrics.StockOp(op, "ok")
	s.log.Debug().Str("key", key).Int64("delta", delta).Int64("stock", res[1]).Msg("stock decreased")
	return res[1], nil
}

func (s *StockService) deduct(ctx context.Context, key string, qty int64) (bool, error) {
	_, err := s.decrease(ctx, "deduct", key, qty)
	switch {
	case err == nil:
		return true, nil
	case isInsufficient(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *StockService) lock(ctx context.Context, lockKey, key string, qty int64) (bool, error) {
	lease, err := s.locker.Acquire(ctx, lockKey)
	if err != nil {
		return false, persistence("acquire stock lease", err)
	}
	if lease == nil {
		s.metrics.StockOp("lock", "conflict")
		return false, fmt.Errorf("%w: %s is locked", ErrConcurrencyConflict, key)
	}
	defer func() {
		released, err := lease.Release(ctx)
		if err != nil || !released {
			s.log.Warn().Err(err).Str("lease", lockKey).Msg("stock lease was not released by its holder")
		}
	}()

	return s.deduct(ctx, key, qty)
}

func toInt64(v interface{}) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
