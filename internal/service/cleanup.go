package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryConfig holds configuration for the unpaid order sweeper.
type ExpiryConfig struct {
	// Timeout is how long an order may stay PENDING_PAYMENT.
	Timeout time.Duration

	// Interval is how often the sweep runs.
	// Default: 5 minutes
	Interval time.Duration
}

// unpaidExpirer is the part of OrderService the sweeper drives.
type unpaidExpirer interface {
	ExpireUnpaid(ctx context.Context, timeout time.Duration) (int, error)
}

// ExpiryScheduler periodically cancels orders that were never paid.
// Cancelling does not return their stock.
type ExpiryScheduler struct {
	orders    unpaidExpirer
	config    ExpiryConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	log       zerolog.Logger
}

// NewExpiryScheduler creates a sweeper over orders.
func NewExpiryScheduler(orders unpaidExpirer, config ExpiryConfig, log zerolog.Logger) *ExpiryScheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}

	return &ExpiryScheduler{
		orders: orders,
		config: config,
		stopCh: make(chan struct{}),
		log:    log,
	}
}

// Start begins the sweep loop. It does nothing when no timeout is set.
func (s *ExpiryScheduler) Start() {
	if s.config.Timeout <= 0 {
		s.log.Info().Msg("unpaid order expiry disabled")
		return
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.config.Interval).Dur("timeout", s.config.Timeout).Msg("unpaid order expiry started")
	go s.run()
}

func (s *ExpiryScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.log.Info().Msg("unpaid order expiry stopped")
			return
		}
	}
}

func (s *ExpiryScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.RunNow(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("cancelled", n).Msg("unpaid order sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("cancelled", n).Msg("expired unpaid orders")
	}
}

// Stop stops the sweep loop.
func (s *ExpiryScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow sweeps once.
func (s *ExpiryScheduler) RunNow(ctx context.Context) (int, error) {
	if s.config.Timeout <= 0 {
		return 0, nil
	}
	return s.orders.ExpireUnpaid(ctx, s.config.Timeout)
}
