package usecasetest

import (
	"context"
	"sort"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

// orderStore runs with Memory.mu held by Do.
type orderStore struct{ m *Memory }

func (s *orderStore) st() *state { return s.m.st }

func (s *orderStore) LockBuyer(_ context.Context, buyerID int64) error {
	if err := s.m.fault("LockBuyer"); err != nil {
		return err
	}
	if _, ok := s.st().users[buyerID]; !ok {
		return usecase.ErrBuyerNotFound
	}
	return nil
}

func (s *orderStore) FindPendingOrder(_ context.Context, buyerID int64) (*domain.Order, error) {
	for _, o := range s.st().orders {
		if o.BuyerID == buyerID && o.Status == domain.StatusPending {
			o := o
			return &o, nil
		}
	}
	return nil, usecase.ErrOrderNotFound
}

func (s *orderStore) CreatePendingOrder(ctx context.Context, buyerID int64) (*domain.Order, error) {
	if _, err := s.FindPendingOrder(ctx, buyerID); err == nil {
		return nil, usecase.ErrDuplicate
	}
	now := s.m.Now().UTC()
	o := domain.Order{ID: s.st().next(), BuyerID: buyerID, Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now}
	s.st().orders[o.ID] = o
	if s.m.loseRace {
		s.m.loseRace = false
		return nil, usecase.ErrDuplicate
	}
	return &o, nil
}

func (s *orderStore) LockOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	if err := s.m.fault("LockOrder"); err != nil {
		return nil, err
	}
	o, ok := s.st().orders[orderID]
	if !ok {
		return nil, usecase.ErrOrderNotFound
	}
	return &o, nil
}

func (s *orderStore) SaveOrder(_ context.Context, o *domain.Order) error {
	if err := s.m.fault("SaveOrder"); err != nil {
		return err
	}
	if _, ok := s.st().orders[o.ID]; !ok {
		return usecase.ErrOrderNotFound
	}
	s.st().orders[o.ID] = *o
	return nil
}

func (s *orderStore) DeleteOrder(_ context.Context, orderID int64) error {
	st := s.st()
	if _, ok := st.orders[orderID]; !ok {
		return usecase.ErrOrderNotFound
	}
	delete(st.orders, orderID)
	delete(st.lines, orderID)
	delete(st.deliveries, orderID)
	delete(st.payments, orderID)
	return nil
}

func newestFirst(orders []domain.Order) []domain.Order {
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders
}

func (s *orderStore) ListOrders(context.Context) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(s.st().orders))
	for _, o := range s.st().orders {
		out = append(out, o)
	}
	return newestFirst(out), nil
}

func (s *orderStore) ListBuyerOrders(_ context.Context, buyerID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.st().orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return newestFirst(out), nil
}

func (s *orderStore) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	p, ok := s.st().products[productID]
	if !ok {
		return nil, usecase.ErrProductNotFound
	}
	return &p, nil
}

func (s *orderStore) ListLines(_ context.Context, orderID int64) ([]domain.OrderLine, error) {
	return append([]domain.OrderLine{}, s.st().lines[orderID]...), nil
}

func (s *orderStore) GetLine(_ context.Context, orderID, productID int64) (domain.OrderLine, bool, error) {
	for _, l := range s.st().lines[orderID] {
		if l.ProductID == productID {
			return l, true, nil
		}
	}
	return domain.OrderLine{}, false, nil
}

func (s *orderStore) InsertLine(_ context.Context, l domain.OrderLine) error {
	if err := s.m.fault("InsertLine"); err != nil {
		return err
	}
	for _, x := range s.st().lines[l.OrderID] {
		if x.ProductID == l.ProductID {
			return usecase.ErrDuplicate
		}
	}
	s.st().lines[l.OrderID] = append(s.st().lines[l.OrderID], l)
	return nil
}

func (s *orderStore) UpdateLineQuantity(_ context.Context, orderID, productID int64, qty int) error {
	lines := s.st().lines[orderID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = qty
			return nil
		}
	}
	return usecase.ErrNotFound
}

func (s *orderStore) DeleteLine(_ context.Context, orderID, productID int64) error {
	lines := s.st().lines[orderID]
	for i := range lines {
		if lines[i].ProductID == productID {
			s.st().lines[orderID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *orderStore) DeleteLines(_ context.Context, orderID int64) error {
	delete(s.st().lines, orderID)
	return nil
}

func (s *orderStore) SaveDelivery(_ context.Context, orderID int64, d domain.DeliveryInfo) error {
	s.st().deliveries[orderID] = d
	return nil
}

func (s *orderStore) GetDelivery(_ context.Context, orderID int64) (*domain.DeliveryInfo, error) {
	d, ok := s.st().deliveries[orderID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *orderStore) SavePayment(_ context.Context, orderID int64, p domain.PaymentInfo) error {
	if err := s.m.fault("SavePayment"); err != nil {
		return err
	}
	s.st().payments[orderID] = p
	return nil
}

func (s *orderStore) GetPayment(_ context.Context, orderID int64) (*domain.PaymentInfo, error) {
	p, ok := s.st().payments[orderID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *orderStore) AppendOutbox(_ context.Context, ev usecase.OutboxEvent) error {
	if err := s.m.fault("AppendOutbox"); err != nil {
		return err
	}
	ev.ID = int64(len(s.st().outbox) + 1)
	s.st().outbox = append(s.st().outbox, ev)
	return nil
}

var _ usecase.OrderStore = (*orderStore)(nil)
