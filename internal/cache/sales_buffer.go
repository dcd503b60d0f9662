package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Buffer configuration
const (
	MaxBatchSize  = 100
	FlushTimeout  = 30 * time.Second
	ShutdownFlush = 2 * time.Minute
)

// SalesFlushFunc persists a batch of per-product sale count deltas.
type SalesFlushFunc func(ctx context.Context, deltas map[string]int64) error

// subtractFlushedScript removes exactly the flushed amount so increments that
// land during a flush survive it.
var subtractFlushedScript = redis.NewScript(`
	local left = redis.call("HINCRBY", KEYS[1], ARGV[1], -tonumber(ARGV[2]))
	if left <= 0 then
		redis.call("HDEL", KEYS[1], ARGV[1])
	end
	return left
`)

// SalesBuffer accumulates per-product sale counts in Redis and writes them
// behind to the durable product store.
type SalesBuffer struct {
	client      redis.UniversalClient
	flushFunc   SalesFlushFunc
	flushTicker *time.Ticker
	stopFlush   chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	key         string
	log         zerolog.Logger
}

// SalesBufferConfig holds configuration for the buffer.
type SalesBufferConfig struct {
	FlushInterval time.Duration
	Key           string
}

// NewSalesBuffer starts a buffer on client. A zero FlushInterval disables the
// background loop; Flush must then be called explicitly.
func NewSalesBuffer(client redis.UniversalClient, cfg SalesBufferConfig, flushFunc SalesFlushFunc, log zerolog.Logger) *SalesBuffer {
	key := cfg.Key
	if key == "" {
		key = "sales:buffer:sale_count"
	}

	b := &SalesBuffer{
		client:    client,
		flushFunc: flushFunc,
		stopFlush: make(chan struct{}),
		done:      make(chan struct{}),
		key:       key,
		log:       log,
	}

	if cfg.FlushInterval > 0 {
		b.flushTicker = time.NewTicker(cfg.FlushInterval)
		go b.backgroundFlush()
	} else {
		close(b.done)
	}

	log.Info().Str("key", key).Dur("flush", cfg.FlushInterval).Int("batch", MaxBatchSize).Msg("sales buffer started")
	return b
}

// Add buffers qty additional sales of productID.
func (b *SalesBuffer) Add(ctx context.Context, productID string, qty int64) error {
	return b.client.HIncrBy(ctx, b.key, productID, qty).Err()
}

// AddAll buffers several products in one round-trip.
func (b *SalesBuffer) AddAll(ctx context.Context, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	pipe := b.client.Pipeline()
	for productID, qty := range deltas {
		pipe.HIncrBy(ctx, b.key, productID, qty)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Pending returns the not yet flushed count for productID.
func (b *SalesBuffer) Pending(ctx context.Context, productID string) (int64, error) {
	n, err := b.client.HGet(ctx, b.key, productID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Count returns the number of products with pending deltas.
func (b *SalesBuffer) Count(ctx context.Context) (int64, error) {
	return b.client.HLen(ctx, b.key).Result()
}

// FlushBatch writes up to MaxBatchSize products to the durable store.
func (b *SalesBuffer) FlushBatch(ctx context.Context) (int, error) {
	fields, _, err := b.client.HScan(ctx, b.key, 0, "", MaxBatchSize).Result()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}

	deltas := make(map[string]int64, len(fields)/2)
	for i := 0; i+1 < len(fields) && len(deltas) < MaxBatchSize; i += 2 {
		n, err := strconv.ParseInt(fields[i+1], 10, 64)
		if err != nil || n <= 0 {
			b.log.Warn().Str("product_id", fields[i]).Str("value", fields[i+1]).Msg("dropping unusable buffered count")
			b.client.HDel(ctx, b.key, fields[i])
			continue
		}
		deltas[fields[i]] = n
	}
	if len(deltas) == 0 {
		return 0, nil
	}

	if err := b.flushFunc(ctx, deltas); err != nil {
		b.log.Error().Err(err).Int("items", len(deltas)).Msg("flush failed")
		return 0, err
	}

	pipe := b.client.Pipeline()
	for productID, n := range deltas {
		subtractFlushedScript.Run(ctx, pipe, []string{b.key}, productID, n)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Error().Err(err).Msg("clearing flushed counts failed")
	}

	b.log.Debug().Int("items", len(deltas)).Msg("flushed sale counts")
	return len(deltas), nil
}

// Flush drains the buffer.
func (b *SalesBuffer) Flush(ctx context.Context) error {
	for {
		n, err := b.FlushBatch(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (b *SalesBuffer) backgroundFlush() {
	defer close(b.done)
	for {
		select {
		case <-b.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			if _, err := b.FlushBatch(ctx); err != nil {
				b.log.Error().Err(err).Msg("background flush failed")
			}
			cancel()
		case <-b.stopFlush:
			b.log.Info().Msg("shutdown: flushing remaining sale counts")
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownFlush)
			if err := b.Flush(ctx); err != nil {
				b.log.Error().Err(err).Msg("shutdown flush failed")
			}
			cancel()
			return
		}
	}
}

// Close stops the background loop and waits for the final flush. The Redis
// client is owned by the caller and stays open.
func (b *SalesBuffer) Close() error {
	b.stopOnce.Do(func() {
		if b.flushTicker != nil {
			b.flushTicker.Stop()
		}
		close(b.stopFlush)
	})
	<-b.done
	return nil
}
