package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/logging"
)

// CartSnapshot is an order together with its lines, as shown to the buyer.
type CartSnapshot struct {
	Order domain.Order       `json:"order"`
	Lines []domain.OrderLine `json:"lines"`
}

type Cart struct {
	uow UnitOfWork
	now func() time.Time
	log *slog.Logger
}

func NewCart(uow UnitOfWork) *Cart {
	return &Cart{uow: uow, now: time.Now, log: logging.New("cart")}
}

// GetOrCreatePendingOrder returns the buyer's single pending order, creating an
// empty one when none exists. Concurrent callers for the same buyer observe the same order.
func (uc *Cart) GetOrCreatePendingOrder(ctx context.Context, buyerID int64) (*domain.Order, error) {
	var out *domain.Order
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := resolvePending(ctx, s, buyerID)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func resolvePending(ctx context.Context, s OrderStore, buyerID int64) (*domain.Order, error) {
	if err := s.LockBuyer(ctx, buyerID); err != nil {
		return nil, err
	}
	o, err := s.FindPendingOrder(ctx, buyerID)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}
	o, err = s.CreatePendingOrder(ctx, buyerID)
	if errors.Is(err, ErrDuplicate) {
		// lost the insert race; the winner's order is now visible
		return s.FindPendingOrder(ctx, buyerID)
	}
	if err != nil {
		return nil, err
	}
	logging.FromCtx(ctx).Info("pending order created", "order_id", o.ID, "buyer_id", buyerID)
	return o, nil
}

// SetLineQuantity sets the absolute quantity of a product on a pending order.
// Zero removes the line; a new line snapshots the current catalog price.
func (uc *Cart) SetLineQuantity(ctx context.Context, orderID, productID int64, qty int) (*CartSnapshot, error) {
	if qty < 0 || qty > domain.MaxLineQuantity {
		return nil, ErrInvalidQuantity
	}
	var snap *CartSnapshot
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := s.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err = uc.setLine(ctx, s, o, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SetBuyerLineQuantity resolves the buyer's pending order and sets the line in the same transaction.
func (uc *Cart) SetBuyerLineQuantity(ctx context.Context, buyerID, productID int64, qty int) (*CartSnapshot, error) {
	if qty < 0 || qty > domain.MaxLineQuantity {
		return nil, ErrInvalidQuantity
	}
	var snap *CartSnapshot
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := resolvePending(ctx, s, buyerID)
		if err != nil {
			return err
		}
		if o, err = s.LockOrder(ctx, o.ID); err != nil {
			return err
		}
		snap, err = uc.setLine(ctx, s, o, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (uc *Cart) setLine(ctx context.Context, s OrderStore, o *domain.Order, productID int64, qty int) (*CartSnapshot, error) {
	if !o.Status.Mutable() {
		return nil, ErrOrderNotMutable
	}
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	_, exists, err := s.GetLine(ctx, o.ID, productID)
	if err != nil {
		return nil, err
	}
	switch {
	case qty == 0 && exists:
		err = s.DeleteLine(ctx, o.ID, productID)
	case qty == 0:
		// nothing to remove
	case exists:
		err = s.UpdateLineQuantity(ctx, o.ID, productID, qty)
	default:
		err = s.InsertLine(ctx, domain.OrderLine{
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    qty,
			UnitPrice:   p.Price,
		})
	}
	if err != nil {
		return nil, err
	}
	return uc.recompute(ctx, s, o)
}

// recompute derives the total from the persisted lines and stores it.
func (uc *Cart) recompute(ctx context.Context, s OrderStore, o *domain.Order) (*CartSnapshot, error) {
	lines, err := s.ListLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.TotalAmount = domain.ComputeTotal(lines, o.DeliveryFee)
	if o.TotalAmount.GreaterThan(domain.MaxOrderTotal) {
		return nil, ErrInvalidAmount
	}
	o.UpdatedAt = uc.now().UTC()
	if err := s.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	return &CartSnapshot{Order: *o, Lines: lines}, nil
}

// Snapshot reads an order and its lines without modifying anything.
func (uc *Cart) Snapshot(ctx context.Context, orderID int64) (*CartSnapshot, error) {
	var snap *CartSnapshot
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := s.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		lines, err := s.ListLines(ctx, o.ID)
		if err != nil {
			return err
		}
		snap = &CartSnapshot{Order: *o, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// BuyerCart returns the snapshot of the buyer's pending order, creating it if needed.
func (uc *Cart) BuyerCart(ctx context.Context, buyerID int64) (*CartSnapshot, error) {
	var snap *CartSnapshot
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := resolvePending(ctx, s, buyerID)
		if err != nil {
			return err
		}
		lines, err := s.ListLines(ctx, o.ID)
		if err != nil {
			return err
		}
		snap = &CartSnapshot{Order: *o, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Clear removes every line of a pending order.
func (uc *Cart) Clear(ctx context.Context, orderID int64) (*CartSnapshot, error) {
	var snap *CartSnapshot
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := s.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err = uc.clear(ctx, s, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (uc *Cart) ClearBuyerCart(ctx context.Context, buyerID int64) (*CartSnapshot, error) {
	var snap *CartSnapshot
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := resolvePending(ctx, s, buyerID)
		if err != nil {
			return err
		}
		if o, err = s.LockOrder(ctx, o.ID); err != nil {
			return err
		}
		snap, err = uc.clear(ctx, s, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (uc *Cart) clear(ctx context.Context, s OrderStore, o *domain.Order) (*CartSnapshot, error) {
	if !o.Status.Mutable() {
		return nil, ErrOrderNotMutable
	}
	if err := s.DeleteLines(ctx, o.ID); err != nil {
		return nil, err
	}
	snap, err := uc.recompute(ctx, s, o)
	if err != nil {
		return nil, err
	}
	uc.log.Debug("cart cleared", "order_id", o.ID)
	return snap, nil
}
