package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
	"github.com/hsmazur/Taberna3/internal/usecase/usecasetest"
)

type fixture struct {
	mem      *usecasetest.Memory
	cart     *usecase.Cart
	checkout *usecase.Checkout
	orders   *usecase.Orders
	buyer    int64
	a, b     int64
}

// newFixture seeds a buyer and two products: A at 10.00 and B at 5.50.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := usecasetest.NewMemory()
	f := &fixture{
		mem:      mem,
		cart:     usecase.NewCart(mem),
		checkout: usecase.NewCheckout(mem, mem.Users(), mem.Notifier(), nil),
		orders:   usecase.NewOrders(mem),
	}
	f.buyer = mem.AddUser("Ana", "ana@example.com")
	f.a = mem.AddProduct("Pastel", "10.00")
	f.b = mem.AddProduct("Caldo", "5.50")
	return f
}

func TestGetOrCreatePendingOrder_CreatesEmptyOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, f.buyer, o.BuyerID)
	assert.True(t, o.TotalAmount.IsZero())
	assert.Empty(t, f.mem.Lines(o.ID))
}

func TestGetOrCreatePendingOrder_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)
	second, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.mem.PendingOrders(f.buyer), 1)
}

func TestGetOrCreatePendingOrder_UnknownBuyer(t *testing.T) {
	f := newFixture(t)
	_, err := f.cart.GetOrCreatePendingOrder(context.Background(), 999)
	assert.ErrorIs(t, err, usecase.ErrBuyerNotFound)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestGetOrCreatePendingOrder_ConcurrentCallersShareOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
			if assert.NoError(t, err) {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, f.mem.PendingOrders(f.buyer), 1)
}

func TestSetLineQuantity_AddUpdateRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)

	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 2)
	require.NoError(t, err)
	assert.Equal(t, "20.00", snap.Order.TotalAmount.StringFixed(2))
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "10.00", snap.Lines[0].UnitPrice.StringFixed(2))

	snap, err = f.cart.SetLineQuantity(ctx, o.ID, f.b, 1)
	require.NoError(t, err)
	assert.Equal(t, "25.50", snap.Order.TotalAmount.StringFixed(2))
	assert.Len(t, snap.Lines, 2)

	snap, err = f.cart.SetLineQuantity(ctx, o.ID, f.a, 0)
	require.NoError(t, err)
	assert.Equal(t, "5.50", snap.Order.TotalAmount.StringFixed(2))
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, f.b, snap.Lines[0].ProductID)

	stored, ok := f.mem.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, "5.50", stored.TotalAmount.StringFixed(2))
}

func TestSetLineQuantity_QuantityIsAbsolute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 3)
	require.NoError(t, err)
	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 1)
	require.NoError(t, err)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 1, snap.Lines[0].Quantity)
	assert.Equal(t, "10.00", snap.Order.TotalAmount.StringFixed(2))
}

func TestSetLineQuantity_RemoveAbsentLineIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Lines)
	assert.True(t, snap.Order.TotalAmount.IsZero())
}

func TestSetLineQuantity_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, -1)
	assert.ErrorIs(t, err, usecase.ErrInvalidQuantity)

	_, err = f.cart.SetLineQuantity(ctx, o.ID, 12345, 1)
	assert.ErrorIs(t, err, usecase.ErrProductNotFound)

	_, err = f.cart.SetLineQuantity(ctx, 777, f.a, 1)
	assert.ErrorIs(t, err, usecase.ErrOrderNotFound)

	assert.Empty(t, f.mem.Lines(o.ID))
}

func TestSetLineQuantity_RejectsValuesTheSchemaCannotHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 3_000_000_000)
	assert.ErrorIs(t, err, usecase.ErrInvalidQuantity)
	_, err = f.cart.SetBuyerLineQuantity(ctx, f.buyer, f.a, domain.MaxLineQuantity+1)
	assert.ErrorIs(t, err, usecase.ErrInvalidQuantity)

	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, domain.MaxLineQuantity)
	require.NoError(t, err)
	assert.Equal(t, "99990.00", snap.Order.TotalAmount.StringFixed(2))

	// 9999 x 99999.99 overflows DECIMAL(10,2); the line is rolled back
	banquet := f.mem.AddProduct("Banquete", "99999.99")
	_, err = f.cart.SetLineQuantity(ctx, o.ID, banquet, domain.MaxLineQuantity)
	assert.ErrorIs(t, err, usecase.ErrInvalidAmount)
	require.Len(t, f.mem.Lines(o.ID), 1)
	stored, ok := f.mem.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, "99990.00", stored.TotalAmount.StringFixed(2))
}

func TestGetOrCreatePendingOrder_LosingInsertRaceReturnsWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mem.LoseCreateRace()
	o, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)

	pending := f.mem.PendingOrders(f.buyer)
	require.Len(t, pending, 1)
	assert.Equal(t, pending[0], o.ID)

	again, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)
}

func TestSetLineQuantity_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 1)
	require.NoError(t, err)
	f.mem.SetPrice(f.a, "12.00")

	// quantity change keeps the snapshot
	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 2)
	require.NoError(t, err)
	assert.Equal(t, "10.00", snap.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "20.00", snap.Order.TotalAmount.StringFixed(2))

	// remove then re-add takes the current price
	_, err = f.cart.SetLineQuantity(ctx, o.ID, f.a, 0)
	require.NoError(t, err)
	snap, err = f.cart.SetLineQuantity(ctx, o.ID, f.a, 1)
	require.NoError(t, err)
	assert.Equal(t, "12.00", snap.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "12.00", snap.Order.TotalAmount.StringFixed(2))
}

func TestSetLineQuantity_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	f.mem.Fail("SaveOrder", errors.New("connection reset"))
	_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 2)
	require.Error(t, err)
	assert.True(t, usecase.IsStorage(err))
	assert.Empty(t, f.mem.Lines(o.ID), "line insert must be rolled back with the failed total")

	f.mem.Fail("SaveOrder", nil)
	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 2)
	require.NoError(t, err)
	assert.Equal(t, "20.00", snap.Order.TotalAmount.StringFixed(2))
}

func TestSetLineQuantity_ConcurrentMutationsKeepTotalConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(2)
		go func(q int) {
			defer wg.Done()
			_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, q)
			assert.NoError(t, err)
		}(i)
		go func(q int) {
			defer wg.Done()
			_, err := f.cart.SetLineQuantity(ctx, o.ID, f.b, q)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, _ := f.mem.Order(o.ID)
	lines := f.mem.Lines(o.ID)
	assert.True(t, domain.ComputeTotal(lines, stored.DeliveryFee).Equal(stored.TotalAmount))
}

func TestSetBuyerLineQuantity_ResolvesPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.cart.SetBuyerLineQuantity(ctx, f.buyer, f.a, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, snap.Order.Status)

	again, err := f.cart.SetBuyerLineQuantity(ctx, f.buyer, f.b, 1)
	require.NoError(t, err)
	assert.Equal(t, snap.Order.ID, again.Order.ID)
	assert.Equal(t, "15.50", again.Order.TotalAmount.StringFixed(2))
}

func TestBuyerCartAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.cart.BuyerCart(ctx, f.buyer)
	require.NoError(t, err)
	assert.Empty(t, snap.Lines)

	_, err = f.cart.SetLineQuantity(ctx, snap.Order.ID, f.a, 2)
	require.NoError(t, err)

	cleared, err := f.cart.ClearBuyerCart(ctx, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, snap.Order.ID, cleared.Order.ID)
	assert.Empty(t, cleared.Lines)
	assert.True(t, cleared.Order.TotalAmount.IsZero())

	read, err := f.cart.Snapshot(ctx, snap.Order.ID)
	require.NoError(t, err)
	assert.Empty(t, read.Lines)
}

func TestMutationsRejectedAfterFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, _ := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	_, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 1)
	require.NoError(t, err)
	_, err = f.checkout.Finalize(ctx, usecase.FinalizeInput{OrderID: o.ID, Method: domain.PaymentPix})
	require.NoError(t, err)

	_, err = f.cart.SetLineQuantity(ctx, o.ID, f.b, 1)
	assert.ErrorIs(t, err, usecase.ErrOrderNotMutable)
	_, err = f.cart.Clear(ctx, o.ID)
	assert.ErrorIs(t, err, usecase.ErrOrderNotMutable)

	assert.Len(t, f.mem.Lines(o.ID), 1)

	// the next resolve opens a fresh cart
	next, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)
	assert.NotEqual(t, o.ID, next.ID)
}
