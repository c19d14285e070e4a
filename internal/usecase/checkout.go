package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/logging"
)

// CardDetails is accepted only to derive the stored last four digits; the full number is never persisted.
type CardDetails struct {
	Number string
	Holder string
}

type FinalizeInput struct {
	OrderID  int64
	Method   domain.PaymentMethod
	Delivery *domain.DeliveryInfo
	Tendered *decimal.Decimal
	Card     *CardDetails
}

// OrderDetails is a finalized (or any) order with everything recorded for it.
type OrderDetails struct {
	Order    domain.Order         `json:"order"`
	Lines    []domain.OrderLine   `json:"lines"`
	Delivery *domain.DeliveryInfo `json:"delivery,omitempty"`
	Payment  *domain.PaymentInfo  `json:"payment,omitempty"`
}

type Checkout struct {
	uow     UnitOfWork
	users   UserRepo
	notify  Notifier
	methods map[domain.PaymentMethod]bool
	now     func() time.Time
	log     *slog.Logger
}

// NewCheckout builds the finalizer. users and notify may be nil, in which case no
// receipt is sent. An empty methods list accepts every known payment method.
func NewCheckout(uow UnitOfWork, users UserRepo, notify Notifier, methods []string) *Checkout {
	allowed := map[domain.PaymentMethod]bool{}
	for _, m := range methods {
		allowed[domain.PaymentMethod(strings.TrimSpace(m))] = true
	}
	return &Checkout{
		uow:     uow,
		users:   users,
		notify:  notify,
		methods: allowed,
		now:     time.Now,
		log:     logging.New("checkout"),
	}
}

func (uc *Checkout) methodAllowed(m domain.PaymentMethod) bool {
	if !m.Known() {
		return false
	}
	return len(uc.methods) == 0 || uc.methods[m]
}

// Finalize converts a pending order into an Approved order with its payment
// (and optional delivery) recorded. All writes are atomic.
func (uc *Checkout) Finalize(ctx context.Context, in FinalizeInput) (*OrderDetails, error) {
	if err := uc.validate(in); err != nil {
		return nil, err
	}
	var out *OrderDetails
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		o, err := s.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		out, err = uc.finalize(ctx, s, o, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.afterCommit(ctx, out)
	return out, nil
}

// FinalizeBuyer finalizes the buyer's pending order; ErrOrderNotFound when there is none.
func (uc *Checkout) FinalizeBuyer(ctx context.Context, buyerID int64, in FinalizeInput) (*OrderDetails, error) {
	if err := uc.validate(in); err != nil {
		return nil, err
	}
	var out *OrderDetails
	err := uc.uow.Do(ctx, func(ctx context.Context, s OrderStore) error {
		if err := s.LockBuyer(ctx, buyerID); err != nil {
			return err
		}
		pending, err := s.FindPendingOrder(ctx, buyerID)
		if err != nil {
			return err
		}
		o, err := s.LockOrder(ctx, pending.ID)
		if err != nil {
			return err
		}
		out, err = uc.finalize(ctx, s, o, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.afterCommit(ctx, out)
	return out, nil
}

func (uc *Checkout) validate(in FinalizeInput) error {
	if !uc.methodAllowed(in.Method) {
		return ErrInvalidPaymentMethod
	}
	if in.Delivery != nil && in.Delivery.Fee.IsNegative() {
		return ErrInvalidAmount
	}
	if in.Tendered != nil && in.Tendered.IsNegative() {
		return ErrInvalidAmount
	}
	if in.Method == domain.PaymentDebitCard {
		if in.Card == nil || strings.TrimSpace(in.Card.Holder) == "" {
			return invalidf("card number and holder are required for %s", in.Method)
		}
		if _, err := domain.CardLast4(in.Card.Number); err != nil {
			return invalidf("%v", err)
		}
	}
	return nil
}

func (uc *Checkout) finalize(ctx context.Context, s OrderStore, o *domain.Order, in FinalizeInput) (*OrderDetails, error) {
	if !o.Status.Mutable() {
		return nil, ErrOrderNotMutable
	}
	lines, err := s.ListLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	if in.Delivery != nil {
		o.DeliveryFee = in.Delivery.Fee.Round(2)
	}
	total := domain.ComputeTotal(lines, o.DeliveryFee)
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}

	now := uc.now().UTC()
	pay := domain.PaymentInfo{Method: in.Method, Amount: total, PaidAt: now}
	switch in.Method {
	case domain.PaymentCash:
		if in.Tendered != nil {
			tendered := in.Tendered.Round(2)
			change := tendered.Sub(total)
			if change.IsNegative() {
				return nil, ErrInsufficientPayment
			}
			pay.Tendered, pay.Change = &tendered, &change
		}
	case domain.PaymentDebitCard:
		last4, _ := domain.CardLast4(in.Card.Number)
		pay.CardLast4 = last4
		pay.CardHolder = strings.TrimSpace(in.Card.Holder)
	}

	o.TotalAmount = total
	o.Status = domain.StatusApproved
	o.PaymentMethod = in.Method
	o.UpdatedAt = now
	o.FinalizedAt = &now
	if err := s.SaveOrder(ctx, o); err != nil {
		return nil, err
	}

	var delivery *domain.DeliveryInfo
	if in.Delivery != nil {
		d := *in.Delivery
		d.Fee = o.DeliveryFee
		if err := s.SaveDelivery(ctx, o.ID, d); err != nil {
			return nil, err
		}
		delivery = &d
	}
	if err := s.SavePayment(ctx, o.ID, pay); err != nil {
		return nil, err
	}

	ev, err := newOutboxEvent(uuid.NewString(), EventOrderFinalized, o.ID, OrderFinalizedEvent{
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		Total:       total.StringFixed(2),
		Method:      in.Method,
		Lines:       len(lines),
		Delivery:    delivery != nil,
		FinalizedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.AppendOutbox(ctx, ev); err != nil {
		return nil, err
	}

	return &OrderDetails{Order: *o, Lines: lines, Delivery: delivery, Payment: &pay}, nil
}

// afterCommit sends the receipt e-mail command. Failures are logged only; the order is already committed.
func (uc *Checkout) afterCommit(ctx context.Context, d *OrderDetails) {
	l := logging.FromCtx(ctx)
	l.Info("order finalized",
		"order_id", d.Order.ID,
		"buyer_id", d.Order.BuyerID,
		"total", d.Order.TotalAmount.StringFixed(2),
		"method", d.Order.PaymentMethod,
	)
	if uc.users == nil || uc.notify == nil {
		return
	}
	u, err := uc.users.Get(ctx, d.Order.BuyerID)
	if err != nil {
		l.Warn("receipt: buyer lookup failed", "order_id", d.Order.ID, "err", err)
		return
	}
	if u.Guest || u.Email == "" {
		return
	}
	n := Notification{
		Kind: NotifyOrderReceipt,
		To:   u.Email,
		Name: u.Name,
		Data: map[string]string{
			"order_id": strconv.FormatInt(d.Order.ID, 10),
			"total":    d.Order.TotalAmount.StringFixed(2),
			"method":   string(d.Order.PaymentMethod),
			"lines":    strconv.Itoa(len(d.Lines)),
		},
		Issue: uc.now().UTC(),
	}
	if err := uc.notify.Notify(ctx, n); err != nil {
		l.Warn("receipt: publish failed", "order_id", d.Order.ID, "err", err)
	}
}

// IdempotentCheckout wraps FinalizeBuyer with an idempotency key: a repeated
// key returns the order finalized by the first request.
type IdempotentCheckout struct {
	checkout *Checkout
	orders   *Orders
	idem     IdempotencyStore
}

func NewIdempotentCheckout(c *Checkout, o *Orders, idem IdempotencyStore) *IdempotentCheckout {
	return &IdempotentCheckout{checkout: c, orders: o, idem: idem}
}

func (uc *IdempotentCheckout) Execute(ctx context.Context, buyerID int64, key string, in FinalizeInput) (*OrderDetails, error) {
	if key == "" || uc.idem == nil {
		return uc.checkout.FinalizeBuyer(ctx, buyerID, in)
	}
	scope := strconv.FormatInt(buyerID, 10)

	// Fast path: idempotency recall
	if id, ok, _ := uc.idem.Recall(ctx, scope, key); ok {
		orderID, err := strconv.ParseInt(id, 10, 64)
		if err == nil {
			return uc.orders.Get(ctx, orderID)
		}
	}
	ok, err := uc.idem.TryLock(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDuplicate
	}

	out, err := uc.checkout.FinalizeBuyer(ctx, buyerID, in)
	if err != nil {
		// let the client retry the same key after a failed attempt
		_ = uc.idem.Release(ctx, scope, key)
		return nil, err
	}
	_ = uc.idem.Remember(ctx, scope, key, strconv.FormatInt(out.Order.ID, 10))
	return out, nil
}
