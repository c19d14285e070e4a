// Package usecasetest provides in-memory implementations of the usecase ports
// for tests. Transactions are serialized by one mutex and rolled back by
// restoring a copy of the state taken when they began.
package usecasetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type state struct {
	seq        int64
	users      map[int64]domain.User
	clients    map[int64]domain.Client
	employees  map[int64]domain.Employee
	products   map[int64]domain.Product
	orders     map[int64]domain.Order
	lines      map[int64][]domain.OrderLine
	deliveries map[int64]domain.DeliveryInfo
	payments   map[int64]domain.PaymentInfo
	ratings    map[int64]domain.Rating
	outbox     []usecase.OutboxEvent
}

func newState() *state {
	return &state{
		users:      map[int64]domain.User{},
		clients:    map[int64]domain.Client{},
		employees:  map[int64]domain.Employee{},
		products:   map[int64]domain.Product{},
		orders:     map[int64]domain.Order{},
		lines:      map[int64][]domain.OrderLine{},
		deliveries: map[int64]domain.DeliveryInfo{},
		payments:   map[int64]domain.PaymentInfo{},
		ratings:    map[int64]domain.Rating{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		seq:        s.seq,
		users:      cloneMap(s.users),
		clients:    cloneMap(s.clients),
		employees:  cloneMap(s.employees),
		products:   cloneMap(s.products),
		orders:     cloneMap(s.orders),
		lines:      make(map[int64][]domain.OrderLine, len(s.lines)),
		deliveries: cloneMap(s.deliveries),
		payments:   cloneMap(s.payments),
		ratings:    cloneMap(s.ratings),
		outbox:     append([]usecase.OutboxEvent(nil), s.outbox...),
	}
	for k, v := range s.lines {
		c.lines[k] = append([]domain.OrderLine(nil), v...)
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Memory is an in-memory store. Use its accessors to obtain each port.
type Memory struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
	// set by LoseCreateRace, consumed by the next CreatePendingOrder
	loseRace bool

	codes map[string]usecase.RecoveryCode
	idem  map[string]string
	sent  []usecase.Notification
	// NotifyErr is returned by the notifier when set.
	NotifyErr error
	Now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		st:     newState(),
		faults: map[string]error{},
		codes:  map[string]usecase.RecoveryCode{},
		idem:   map[string]string{},
		Now:    time.Now,
	}
}

// Fail makes the named store operation return err until cleared with a nil err.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// LoseCreateRace makes the next CreatePendingOrder behave as if a concurrent
// transaction committed a pending order for the same buyer first: the
// competing order is stored and ErrDuplicate is returned.
func (m *Memory) LoseCreateRace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loseRace = true
}

func (m *Memory) fault(op string) error {
	if err, ok := m.faults[op]; ok {
		return &usecase.StorageError{Op: op, Err: err}
	}
	return nil
}

func (m *Memory) Do(ctx context.Context, fn func(ctx context.Context, s usecase.OrderStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("begin"); err != nil {
		return err
	}
	backup := m.st.clone()
	if err := fn(ctx, &orderStore{m: m}); err != nil {
		m.st = backup
		return err
	}
	return nil
}

// Seeding and inspection helpers.

func (m *Memory) AddUser(name, email string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	m.st.users[id] = domain.User{ID: id, Name: name, Email: email, CreatedAt: m.Now().UTC()}
	return id
}

func (m *Memory) AddEmployee(userID int64, position string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	m.st.employees[id] = domain.Employee{ID: id, UserID: userID, Position: position}
	return id
}

func (m *Memory) AddProduct(name, price string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	m.st.products[id] = domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price)}
	return id
}

func (m *Memory) SetPrice(productID int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.st.products[productID]
	p.Price = decimal.RequireFromString(price)
	m.st.products[productID] = p
}

// AddApprovedOrder records a finalized order with the given products, one unit each.
func (m *Memory) AddApprovedOrder(buyerID int64, productIDs ...int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	var lines []domain.OrderLine
	for _, pid := range productIDs {
		p := m.st.products[pid]
		lines = append(lines, domain.OrderLine{OrderID: id, ProductID: pid, ProductName: p.Name, Quantity: 1, UnitPrice: p.Price})
	}
	now := m.Now().UTC()
	m.st.orders[id] = domain.Order{
		ID: id, BuyerID: buyerID, Status: domain.StatusApproved,
		TotalAmount: domain.ComputeTotal(lines, decimal.Zero), PaymentMethod: domain.PaymentPix,
		CreatedAt: now, UpdatedAt: now, FinalizedAt: &now,
	}
	m.st.lines[id] = lines
	return id
}

func (m *Memory) Order(id int64) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[id]
	return o, ok
}

func (m *Memory) Lines(orderID int64) []domain.OrderLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderLine(nil), m.st.lines[orderID]...)
}

func (m *Memory) Payment(orderID int64) (domain.PaymentInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.payments[orderID]
	return p, ok
}

func (m *Memory) Delivery(orderID int64) (domain.DeliveryInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.deliveries[orderID]
	return d, ok
}

// PendingOrders returns the ids of the buyer's pending orders.
func (m *Memory) PendingOrders(buyerID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, o := range m.st.orders {
		if o.BuyerID == buyerID && o.Status == domain.StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Memory) Outbox() []usecase.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]usecase.OutboxEvent(nil), m.st.outbox...)
}

func (m *Memory) Sent() []usecase.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]usecase.Notification(nil), m.sent...)
}

func (m *Memory) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.users)
}

func (m *Memory) Code(email string) (usecase.RecoveryCode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.codes[email]
	return rc, ok
}

var _ usecase.UnitOfWork = (*Memory)(nil)
