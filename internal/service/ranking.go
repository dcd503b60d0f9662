package service

import (
	"context"
	"fmt"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const maxTopN = 100

var boards = map[string]string{
	"daily":   cache.BoardDailySale,
	"weekly":  cache.BoardWeeklySale,
	"monthly": cache.BoardMonthlySale,
	"hot":     cache.BoardHotProducts,
}

// BoardKey resolves a public board name (daily, weekly, monthly, hot) to
// its sorted set.
func BoardKey(name string) (string, bool) {
	key, ok := boards[name]
	return key, ok
}

// RankingBoard maintains cumulative leaderboards in Redis sorted sets.
// Scores only grow; there is no decay.
type RankingBoard struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

// NewRankingBoard creates the leaderboard service.
func NewRankingBoard(client redis.UniversalClient, log zerolog.Logger) *RankingBoard {
	return &RankingBoard{client: client, log: log}
}

// AddScore adds delta to member on board and returns the new score.
func (b *RankingBoard) AddScore(ctx context.Context, board, member string, delta float64) (float64, error) {
	if board == "" || member == "" {
		return 0, validationf("board and member are required")
	}
	if delta < 0 {
		return 0, validationf("score delta must not be negative, got %v", delta)
	}
	score, err := b.client.ZIncrBy(ctx, board, delta, member).Result()
	if err != nil {
		return 0, persistence("add score", err)
	}
	return score, nil
}

func (b *RankingBoard) AddSalesScore(ctx context.Context, productID string, qty float64) (float64, error) {
	return b.AddScore(ctx, cache.BoardDailySale, productID, qty)
}

func (b *RankingBoard) AddWeeklySalesScore(ctx context.Context, productID string, qty float64) (float64, error) {
	return b.AddScore(ctx, cache.BoardWeeklySale, productID, qty)
}

func (b *RankingBoard) AddMonthlySalesScore(ctx context.Context, productID string, qty float64) (float64, error) {
	return b.AddScore(ctx, cache.BoardMonthlySale, productID, qty)
}

// AddPurchaseScore adds a purchase amount to the hot products list.
func (b *RankingBoard) AddPurchaseScore(ctx context.Context, productID string, amount float64) (float64, error) {
	return b.AddScore(ctx, cache.BoardHotProducts, productID, amount)
}

// queue adds a ZINCRBY to pipe so callers can batch board updates with
// other writes.
func (b *RankingBoard) queue(ctx context.Context, pipe redis.Pipeliner, board, member string, delta float64) {
	if member == "" || delta <= 0 {
		return
	}
	pipe.ZIncrBy(ctx, board, delta, member)
}

// TopN returns the n highest scored members of board, best first.
func (b *RankingBoard) TopN(ctx context.Context, board string, n int64) ([]model.RankEntry, error) {
	if n <= 0 {
		return nil, validationf("n must be positive, got %d", n)
	}
	if n > maxTopN {
		n = maxTopN
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, board, 0, n-1).Result()
	if err != nil {
		return nil, persistence("read ranking", err)
	}
	entries := make([]model.RankEntry, len(zs))
	for i, z := range zs {
		entries[i] = model.RankEntry{
			Rank:   int64(i + 1),
			Member: fmt.Sprint(z.Member),
			Score:  z.Score,
		}
	}
	return entries, nil
}

// Score returns the score of member, 0 when unranked.
func (b *RankingBoard) Score(ctx context.Context, board, member string) (float64, error) {
	score, err := b.client.ZScore(ctx, board, member).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, persistence("read score", err)
	}
	return score, nil
}

// Rank returns the 1-based position of member, 0 when unranked.
func (b *RankingBoard) Rank(ctx context.Context, board, member string) (int64, error) {
	rank, err := b.client.ZRevRank(ctx, board, member).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, persistence("read rank", err)
	}
	return rank + 1, nil
}
