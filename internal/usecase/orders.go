package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/logging"
)

type OrderSummary struct {
	domain.Order
	LineCount int `json:"line_count"`
}

// Orders serves order history and the administrative status override.
type Orders struct {
	uow UnitOfWork
	now func() time.Time
}

func NewOrders(uow UnitOfWork) *Orders {
	return &Orders{uow: uow, now: time.Now}
}

// Get returns the order with its lines, delivery and payment records.
func (uc *Orders) Get(ctx context.Context, orderID int64) (*OrderDetails, error) {
	var out *OrderDetails
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := s.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		out, err = details(ctx, s, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func details(ctx context.Context, s OrderStore, o *domain.Order) (*OrderDetails, error) {
	lines, err := s.ListLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	d, err := s.GetDelivery(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	p, err := s.GetPayment(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &OrderDetails{Order: *o, Lines: lines, Delivery: d, Payment: p}, nil
}

// ListAll returns every order with its lines, newest first.
func (uc *Orders) ListAll(ctx context.Context) ([]OrderDetails, error) {
	var out []OrderDetails
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		orders, err := s.ListOrders(ctx)
		if err != nil {
			return err
		}
		out = make([]OrderDetails, 0, len(orders))
		for i := range orders {
			lines, err := s.ListLines(ctx, orders[i].ID)
			if err != nil {
				return err
			}
			out = append(out, OrderDetails{Order: orders[i], Lines: lines})
		}
		return nil
	})
	return out, err
}

// History returns the buyer's finalized orders (any status but Pending), newest first.
func (uc *Orders) History(ctx context.Context, buyerID int64) ([]OrderSummary, error) {
	var out []OrderSummary
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		orders, err := s.ListBuyerOrders(ctx, buyerID)
		if err != nil {
			return err
		}
		out = make([]OrderSummary, 0, len(orders))
		for _, o := range orders {
			if o.Status == domain.StatusPending {
				continue
			}
			lines, err := s.ListLines(ctx, o.ID)
			if err != nil {
				return err
			}
			out = append(out, OrderSummary{Order: o, LineCount: len(lines)})
		}
		return nil
	})
	return out, err
}

// UpdateStatus applies an administrative override (refund, cancellation).
func (uc *Orders) UpdateStatus(ctx context.Context, orderID int64, to domain.Status, reason string) (*domain.Order, error) {
	var out *domain.Order
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := s.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if !from.CanOverride(to) {
			return ErrOrderNotMutable
		}
		now := uc.now().UTC()
		o.Status = to
		o.UpdatedAt = now
		if err := s.SaveOrder(ctx, o); err != nil {
			return err
		}
		ev, err := newOutboxEvent(uuid.NewString(), EventOrderStatusChanged, o.ID, OrderStatusChangedEvent{
			OrderID: o.ID, From: from, To: to, Reason: reason, At: now,
		})
		if err != nil {
			return err
		}
		if err := s.AppendOutbox(ctx, ev); err != nil {
			return err
		}
		out = o
		logging.FromCtx(ctx).Info("order status overridden", "order_id", o.ID, "from", from, "to", to, "reason", reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an order with its lines, delivery and payment records.
func (uc *Orders) Delete(ctx context.Context, orderID int64) error {
	return uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		if _, err := s.LockOrder(ctx, orderID); err != nil {
			return err
		}
		return s.DeleteOrder(ctx, orderID)
	})
}
