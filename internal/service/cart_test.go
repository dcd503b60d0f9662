package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) stockOf(t *testing.T, productID string) int64 {
	t.Helper()
	n, err := e.stock.GetStock(context.Background(), productID)
	require.NoError(t, err)
	return n
}

func TestCartReservationScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P100", "9.90", 10)

	line, err := e.cart.AddToCart(ctx, "userA", "P100", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(6), line.Quantity)
	assert.Equal(t, int64(4), e.stockOf(t, "P100"))

	_, err = e.cart.AddToCart(ctx, "userB", "P100", 5)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(4), e.stockOf(t, "P100"))
	ok, err := e.cart.ExistsInCart(ctx, "userB", "P100")
	require.NoError(t, err)
	assert.False(t, ok)

	line, err = e.cart.UpdateQuantity(ctx, "userA", "P100", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), line.Quantity)
	assert.Equal(t, int64(7), e.stockOf(t, "P100"))

	require.NoError(t, e.cart.RemoveFromCart(ctx, "userA", "P100"))
	assert.Equal(t, int64(10), e.stockOf(t, "P100"))
}

func TestCartConservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 20)

	reserved := func() int64 {
		var sum int64
		for _, u := range []string{"u1", "u2"} {
			q, err := e.cart.ProductQuantity(ctx, u, "P1")
			require.NoError(t, err)
			sum += q
		}
		return sum
	}

	steps := []func() error{
		func() error { _, err := e.cart.AddToCart(ctx, "u1", "P1", 3); return err },
		func() error { _, err := e.cart.AddToCart(ctx, "u2", "P1", 5); return err },
		func() error { _, err := e.cart.AddToCart(ctx, "u1", "P1", 2); return err },
		func() error { _, err := e.cart.UpdateQuantity(ctx, "u2", "P1", 9); return err },
		func() error { _, err := e.cart.UpdateQuantity(ctx, "u1", "P1", 1); return err },
		func() error { _, err := e.cart.AddToCart(ctx, "u1", "P1", 50); return err },
		func() error { return e.cart.RemoveFromCart(ctx, "u2", "P1") },
		func() error { _, err := e.cart.UpdateQuantity(ctx, "u1", "P1", 0); return err },
	}
	for i, step := range steps {
		err := step()
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientStock, "step %d", i)
		}
		assert.Equal(t, int64(20), e.stockOf(t, "P1")+reserved(), "step %d", i)
	}
	assert.Equal(t, int64(20), e.stockOf(t, "P1"))
}

func TestConcurrentCartWritesConserveStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P100", "1.00", 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.cart.AddToCart(ctx, "u1", "P100", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	q, err := e.cart.ProductQuantity(ctx, "u1", "P100")
	require.NoError(t, err)
	assert.Equal(t, int64(20), q)
	assert.Equal(t, int64(80), e.stockOf(t, "P100"))

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.cart.AddToCart(ctx, "u1", "P100", 2)
			assert.NoError(t, err)
		}()
		go func(n int64) {
			defer wg.Done()
			_, err := e.cart.UpdateQuantity(ctx, "u1", "P100", n)
			assert.NoError(t, err)
		}(int64(i + 1))
	}
	wg.Wait()

	q, err = e.cart.ProductQuantity(ctx, "u1", "P100")
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.stockOf(t, "P100")+q)
}

func TestAddToCartValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 5)

	_, err := e.cart.AddToCart(ctx, "u1", "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.cart.AddToCart(ctx, "u1", "P1", 0)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, e.catalog.SetStatus(ctx, "P1", model.ProductOffShelf))
	_, err = e.cart.AddToCart(ctx, "u1", "P1", 1)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(5), e.stockOf(t, "P1"))
}

func TestAddToCartMergesLines(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "2.50", 10)

	_, err := e.cart.AddToCart(ctx, "u1", "P1", 2)
	require.NoError(t, err)
	line, err := e.cart.AddToCart(ctx, "u1", "P1", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(5), line.Quantity)
	assert.Equal(t, testDay.UnixMilli(), line.AddTime)
	assert.Equal(t, int64(5), e.stockOf(t, "P1"))
	assert.Equal(t, 7*24*time.Hour, e.mr.TTL(cache.CartKey("u1")))
}

func TestGetCartEvictsDelisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 10)
	e.addProduct(t, "P2", "3.00", 10)

	_, err := e.cart.AddToCart(ctx, "u1", "P1", 2)
	require.NoError(t, err)
	_, err = e.cart.AddToCart(ctx, "u1", "P2", 1)
	require.NoError(t, err)

	require.NoError(t, e.catalog.SetStatus(ctx, "P1", model.ProductOffShelf))

	items, err := e.cart.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "P2", items[0].ProductID)
	assert.Equal(t, "Product P2", items[0].Name)
	assert.Equal(t, "3", items[0].Subtotal.String())

	ok, err := e.cart.ExistsInCart(ctx, "u1", "P1")
	require.NoError(t, err)
	assert.False(t, ok)
	// The evicted reservation is not returned.
	assert.Equal(t, int64(8), e.stockOf(t, "P1"))
}

func TestGetCartClampsToStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 10)
	e.addProduct(t, "P2", "1.00", 10)

	_, err := e.cart.AddToCart(ctx, "u1", "P1", 5)
	require.NoError(t, err)
	_, err = e.cart.AddToCart(ctx, "u1", "P2", 5)
	require.NoError(t, err)

	require.NoError(t, e.stock.SetStock(ctx, "P1", 2))
	require.NoError(t, e.stock.SetStock(ctx, "P2", 0))

	items, err := e.cart.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Quantity)

	q, err := e.cart.ProductQuantity(ctx, "u1", "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q)
	assert.Equal(t, int64(2), e.stockOf(t, "P1"))

	ok, err := e.cart.ExistsInCart(ctx, "u1", "P2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetCartEvictsCorruptLine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 10)
	_, err := e.cart.AddToCart(ctx, "u1", "P1", 1)
	require.NoError(t, err)
	e.mr.HSet(cache.CartKey("u1"), "P9", "{not json")

	items, err := e.cart.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, e.mr.HGet(cache.CartKey("u1"), "P9"))
}

func TestRemoveFromCartMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 10)
	_, err := e.cart.AddToCart(ctx, "u1", "P1", 4)
	require.NoError(t, err)

	require.NoError(t, e.cart.RemoveFromCart(ctx, "u1", "P1"))
	err = e.cart.RemoveFromCart(ctx, "u1", "P1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(10), e.stockOf(t, "P1"))

	_, err = e.cart.UpdateQuantity(ctx, "u1", "P1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 10)
	e.addProduct(t, "P2", "1.00", 10)
	_, err := e.cart.AddToCart(ctx, "u1", "P1", 3)
	require.NoError(t, err)
	_, err = e.cart.AddToCart(ctx, "u1", "P2", 4)
	require.NoError(t, err)

	n, err := e.cart.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.NoError(t, e.cart.ClearCart(ctx, "u1"))
	assert.False(t, e.mr.Exists(cache.CartKey("u1")))
	assert.Equal(t, int64(10), e.stockOf(t, "P1"))
	assert.Equal(t, int64(10), e.stockOf(t, "P2"))
}

func TestCheckoutSelectedLines(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "2.50", 10)
	e.addProduct(t, "P2", "4.00", 10)
	_, err := e.cart.AddToCart(ctx, "u1", "P1", 2)
	require.NoError(t, err)
	_, err = e.cart.AddToCart(ctx, "u1", "P2", 1)
	require.NoError(t, err)
	require.NoError(t, e.cart.UpdateSelected(ctx, "u1", "P2", false))

	lines, err := e.cart.Checkout(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "P1", lines[0].ProductID)
	assert.Equal(t, "Product P1", lines[0].ProductName)
	assert.Equal(t, "5", lines[0].Amount.String())
	assert.Equal(t, "P1.png", lines[0].Image)

	// Checkout reserves nothing more and keeps the cart.
	assert.Equal(t, int64(8), e.stockOf(t, "P1"))
	n, err := e.cart.CountItems(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, e.cart.UpdateSelected(ctx, "u1", "P1", false))
	_, err = e.cart.Checkout(ctx, "u1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConsumeLines(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addProduct(t, "P1", "1.00", 10)
	e.addProduct(t, "P2", "1.00", 10)
	_, err := e.cart.AddToCart(ctx, "u1", "P1", 3)
	require.NoError(t, err)
	_, err = e.cart.AddToCart(ctx, "u1", "P2", 3)
	require.NoError(t, err)

	err = e.cart.ConsumeLines(ctx, "u1", []model.OrderItem{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P3", Quantity: 1},
	})
	require.NoError(t, err)

	ok, err := e.cart.ExistsInCart(ctx, "u1", "P1")
	require.NoError(t, err)
	assert.False(t, ok)
	q, err := e.cart.ProductQuantity(ctx, "u1", "P2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q)
	assert.Equal(t, int64(7), e.stockOf(t, "P1"))
	assert.Equal(t, int64(7), e.stockOf(t, "P2"))
}
