package service

import (
	"context"
	"testing"

	"sales-realtime-api/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankingBoard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ranking.AddSalesScore(ctx, "P1", 3)
	require.NoError(t, err)
	_, err = e.ranking.AddSalesScore(ctx, "P2", 7)
	require.NoError(t, err)
	score, err := e.ranking.AddSalesScore(ctx, "P1", 5)
	require.NoError(t, err)
	assert.Equal(t, 8.0, score)
	_, err = e.ranking.AddSalesScore(ctx, "P3", 1)
	require.NoError(t, err)

	top, err := e.ranking.TopN(ctx, cache.BoardDailySale, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "P1", top[0].Member)
	assert.Equal(t, int64(1), top[0].Rank)
	assert.Equal(t, 8.0, top[0].Score)
	assert.Equal(t, "P2", top[1].Member)

	rank, err := e.ranking.Rank(ctx, cache.BoardDailySale, "P3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rank)
	rank, err = e.ranking.Rank(ctx, cache.BoardDailySale, "P9")
	require.NoError(t, err)
	assert.Zero(t, rank)

	score, err = e.ranking.Score(ctx, cache.BoardWeeklySale, "P1")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestRankingBoardValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ranking.AddScore(ctx, cache.BoardHotProducts, "P1", -1)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.ranking.TopN(ctx, cache.BoardHotProducts, 0)
	assert.ErrorIs(t, err, ErrValidation)

	top, err := e.ranking.TopN(ctx, cache.BoardHotProducts, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestBoardKey(t *testing.T) {
	key, ok := BoardKey("weekly")
	assert.True(t, ok)
	assert.Equal(t, "rank:weekly:sale", key)

	key, ok = BoardKey("hot")
	assert.True(t, ok)
	assert.Equal(t, "hot:products", key)

	_, ok = BoardKey("yearly")
	assert.False(t, ok)
}

func TestRankingBoardPeriodBoards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ranking.AddWeeklySalesScore(ctx, "P1", 2)
	require.NoError(t, err)
	_, err = e.ranking.AddMonthlySalesScore(ctx, "P1", 4)
	require.NoError(t, err)
	score, err := e.ranking.AddPurchaseScore(ctx, "P1", 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, score)

	weekly, err := e.ranking.Score(ctx, cache.BoardWeeklySale, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, weekly)
	monthly, err := e.ranking.Score(ctx, cache.BoardMonthlySale, "P1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, monthly)
	daily, err := e.ranking.Score(ctx, cache.BoardDailySale, "P1")
	require.NoError(t, err)
	assert.Zero(t, daily)
}
