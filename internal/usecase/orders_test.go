package usecase_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.cart.GetOrCreatePendingOrder(ctx, f.buyer)
	require.NoError(t, err)

	snap, err := f.cart.SetLineQuantity(ctx, o.ID, f.a, 2)
	require.NoError(t, err)
	assert.Equal(t, "20.00", snap.Order.TotalAmount.StringFixed(2))

	snap, err = f.cart.SetLineQuantity(ctx, o.ID, f.b, 1)
	require.NoError(t, err)
	assert.Equal(t, "25.50", snap.Order.TotalAmount.StringFixed(2))

	snap, err = f.cart.SetLineQuantity(ctx, o.ID, f.a, 0)
	require.NoError(t, err)
	assert.Equal(t, "5.50", snap.Order.TotalAmount.StringFixed(2))

	_, err = f.checkout.Finalize(ctx, usecase.FinalizeInput{OrderID: o.ID, Method: domain.PaymentPix})
	require.NoError(t, err)

	d, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, d.Order.Status)
	assert.Equal(t, "5.50", d.Order.TotalAmount.StringFixed(2))
	require.Len(t, d.Lines, 1)
	assert.Equal(t, f.b, d.Lines[0].ProductID)
	require.NotNil(t, d.Payment)
	assert.Equal(t, domain.PaymentPix, d.Payment.Method)
}

func TestOrders_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.cartWith(t, 1, 0)
	_, err := f.checkout.Finalize(ctx, usecase.FinalizeInput{OrderID: first, Method: domain.PaymentPix})
	require.NoError(t, err)
	second := f.cartWith(t, 1, 1)
	_, err = f.checkout.Finalize(ctx, usecase.FinalizeInput{OrderID: second, Method: domain.PaymentPix})
	require.NoError(t, err)
	f.cartWith(t, 1, 0) // open cart, not part of history

	hist, err := f.orders.History(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, second, hist[0].ID)
	assert.Equal(t, 2, hist[0].LineCount)
	assert.Equal(t, first, hist[1].ID)

	all, err := f.orders.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOrders_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.cartWith(t, 1, 0)

	_, err := f.orders.UpdateStatus(ctx, id, domain.StatusRefunded, "")
	assert.ErrorIs(t, err, usecase.ErrOrderNotMutable, "a pending cart cannot be overridden")

	_, err = f.checkout.Finalize(ctx, usecase.FinalizeInput{OrderID: id, Method: domain.PaymentPix})
	require.NoError(t, err)

	o, err := f.orders.UpdateStatus(ctx, id, domain.StatusCancelled, "customer called")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)

	_, err = f.orders.UpdateStatus(ctx, id, domain.StatusApproved, "")
	assert.ErrorIs(t, err, usecase.ErrOrderNotMutable)

	o, err = f.orders.UpdateStatus(ctx, id, domain.StatusRefunded, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, o.Status)

	events := f.mem.Outbox()
	require.Len(t, events, 3)
	assert.Equal(t, usecase.EventOrderStatusChanged, events[1].Type)
	var ev usecase.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(events[1].Payload, &ev))
	assert.Equal(t, domain.StatusApproved, ev.From)
	assert.Equal(t, domain.StatusCancelled, ev.To)
	assert.Equal(t, "customer called", ev.Reason)

	_, err = f.orders.UpdateStatus(ctx, 9999, domain.StatusRefunded, "")
	assert.ErrorIs(t, err, usecase.ErrOrderNotFound)
}

func TestOrders_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.cartWith(t, 1, 1)

	require.NoError(t, f.orders.Delete(ctx, id))
	_, ok := f.mem.Order(id)
	assert.False(t, ok)
	assert.Empty(t, f.mem.Lines(id))

	assert.ErrorIs(t, f.orders.Delete(ctx, id), usecase.ErrOrderNotFound)
}
