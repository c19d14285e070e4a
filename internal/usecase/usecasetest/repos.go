package usecasetest

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Products

type Products struct{ m *Memory }

func (m *Memory) Products() *Products { return &Products{m: m} }

func (r *Products) List(context.Context) ([]domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []domain.Product{}
	for _, id := range sortedIDs(r.m.st.products) {
		out = append(out, r.m.st.products[id])
	}
	return out, nil
}

func (r *Products) Get(_ context.Context, id int64) (*domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.st.products[id]
	if !ok {
		return nil, usecase.ErrProductNotFound
	}
	return &p, nil
}

func (r *Products) Create(_ context.Context, p *domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p.ID = r.m.st.next()
	r.m.st.products[p.ID] = *p
	return nil
}

func (r *Products) Update(_ context.Context, p *domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.products[p.ID]; !ok {
		return usecase.ErrProductNotFound
	}
	r.m.st.products[p.ID] = *p
	return nil
}

func (r *Products) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.products[id]; !ok {
		return usecase.ErrProductNotFound
	}
	for _, lines := range r.m.st.lines {
		for _, l := range lines {
			if l.ProductID == id {
				return usecase.ErrProductInUse
			}
		}
	}
	delete(r.m.st.products, id)
	return nil
}

// Users

type Users struct{ m *Memory }

func (m *Memory) Users() *Users { return &Users{m: m} }

func (r *Users) emailTaken(email string, self int64) bool {
	if email == "" {
		return false
	}
	for _, u := range r.m.st.users {
		if u.Email == email && u.ID != self {
			return true
		}
	}
	return false
}

func (r *Users) Create(_ context.Context, u *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.emailTaken(u.Email, 0) {
		return usecase.ErrEmailTaken
	}
	u.ID = r.m.st.next()
	r.m.st.users[u.ID] = *u
	return nil
}

func (r *Users) Get(_ context.Context, id int64) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return nil, usecase.ErrUserNotFound
	}
	return &u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.st.users {
		if email != "" && u.Email == email {
			return &u, nil
		}
	}
	return nil, usecase.ErrUserNotFound
}

func (r *Users) List(context.Context) ([]domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []domain.User{}
	for _, id := range sortedIDs(r.m.st.users) {
		u := r.m.st.users[id]
		u.Role = r.role(u)
		out = append(out, u)
	}
	return out, nil
}

func (r *Users) Update(_ context.Context, u *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.st.users[u.ID]
	if !ok {
		return usecase.ErrUserNotFound
	}
	if r.emailTaken(u.Email, u.ID) {
		return usecase.ErrEmailTaken
	}
	cur.Name, cur.Email = u.Name, u.Email
	r.m.st.users[u.ID] = cur
	return nil
}

func (r *Users) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.users[id]; !ok {
		return usecase.ErrUserNotFound
	}
	delete(r.m.st.users, id)
	for cid, c := range r.m.st.clients {
		if c.UserID == id {
			delete(r.m.st.clients, cid)
		}
	}
	for eid, e := range r.m.st.employees {
		if e.UserID == id {
			delete(r.m.st.employees, eid)
		}
	}
	return nil
}

func (r *Users) SetPassword(_ context.Context, id int64, hash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return usecase.ErrUserNotFound
	}
	u.PasswordHash = hash
	r.m.st.users[id] = u
	return nil
}

func (r *Users) role(u domain.User) domain.Role {
	if u.Guest {
		return domain.RoleGuest
	}
	for _, e := range r.m.st.employees {
		if e.UserID == u.ID {
			return domain.RoleEmployee
		}
	}
	for _, c := range r.m.st.clients {
		if c.UserID == u.ID {
			return domain.RoleClient
		}
	}
	return domain.RoleUser
}

func (r *Users) Role(_ context.Context, id int64) (domain.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return "", usecase.ErrUserNotFound
	}
	return r.role(u), nil
}

// Clients

type Clients struct{ m *Memory }

func (m *Memory) Clients() *Clients { return &Clients{m: m} }

func (r *Clients) fill(c domain.Client) domain.Client {
	u := r.m.st.users[c.UserID]
	c.Name, c.Email = u.Name, u.Email
	return c
}

func (r *Clients) Create(_ context.Context, c *domain.Client) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.st.clients {
		if x.UserID == c.UserID {
			return usecase.ErrAlreadyClient
		}
	}
	c.ID = r.m.st.next()
	r.m.st.clients[c.ID] = *c
	return nil
}

func (r *Clients) Get(_ context.Context, id int64) (*domain.Client, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.st.clients[id]
	if !ok {
		return nil, usecase.ErrClientNotFound
	}
	c = r.fill(c)
	return &c, nil
}

func (r *Clients) GetByUser(_ context.Context, userID int64) (*domain.Client, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.st.clients {
		if c.UserID == userID {
			c = r.fill(c)
			return &c, nil
		}
	}
	return nil, usecase.ErrClientNotFound
}

func (r *Clients) List(context.Context) ([]domain.Client, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []domain.Client{}
	for _, id := range sortedIDs(r.m.st.clients) {
		out = append(out, r.fill(r.m.st.clients[id]))
	}
	return out, nil
}

func (r *Clients) Update(_ context.Context, c *domain.Client) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.clients[c.ID]; !ok {
		return usecase.ErrClientNotFound
	}
	r.m.st.clients[c.ID] = *c
	return nil
}

func (r *Clients) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.clients[id]; !ok {
		return usecase.ErrClientNotFound
	}
	delete(r.m.st.clients, id)
	return nil
}

// Employees

type Employees struct{ m *Memory }

func (m *Memory) Employees() *Employees { return &Employees{m: m} }

func (r *Employees) fill(e domain.Employee) domain.Employee {
	u := r.m.st.users[e.UserID]
	e.Name, e.Email = u.Name, u.Email
	return e
}

func (r *Employees) Create(_ context.Context, e *domain.Employee) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.st.employees {
		if x.UserID == e.UserID {
			return usecase.ErrAlreadyEmployee
		}
	}
	e.ID = r.m.st.next()
	r.m.st.employees[e.ID] = *e
	return nil
}

func (r *Employees) Get(_ context.Context, id int64) (*domain.Employee, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.st.employees[id]
	if !ok {
		return nil, usecase.ErrEmployeeNotFound
	}
	e = r.fill(e)
	return &e, nil
}

func (r *Employees) GetByUser(_ context.Context, userID int64) (*domain.Employee, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.st.employees {
		if e.UserID == userID {
			e = r.fill(e)
			return &e, nil
		}
	}
	return nil, usecase.ErrEmployeeNotFound
}

func (r *Employees) List(context.Context) ([]domain.Employee, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []domain.Employee{}
	for _, id := range sortedIDs(r.m.st.employees) {
		out = append(out, r.fill(r.m.st.employees[id]))
	}
	return out, nil
}

func (r *Employees) Update(_ context.Context, e *domain.Employee) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.employees[e.ID]; !ok {
		return usecase.ErrEmployeeNotFound
	}
	r.m.st.employees[e.ID] = *e
	return nil
}

func (r *Employees) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.employees[id]; !ok {
		return usecase.ErrEmployeeNotFound
	}
	delete(r.m.st.employees, id)
	return nil
}

// Ratings

type Ratings struct{ m *Memory }

func (m *Memory) Ratings() *Ratings { return &Ratings{m: m} }

func (r *Ratings) Create(_ context.Context, x *domain.Rating) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, y := range r.m.st.ratings {
		if y.UserID == x.UserID && y.ProductID == x.ProductID {
			return usecase.ErrAlreadyRated
		}
	}
	x.ID = r.m.st.next()
	r.m.st.ratings[x.ID] = *x
	return nil
}

func (r *Ratings) Get(_ context.Context, id int64) (*domain.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	x, ok := r.m.st.ratings[id]
	if !ok {
		return nil, usecase.ErrRatingNotFound
	}
	return &x, nil
}

func (r *Ratings) Update(_ context.Context, x *domain.Rating) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.ratings[x.ID]; !ok {
		return usecase.ErrRatingNotFound
	}
	r.m.st.ratings[x.ID] = *x
	return nil
}

func (r *Ratings) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.ratings[id]; !ok {
		return usecase.ErrRatingNotFound
	}
	delete(r.m.st.ratings, id)
	return nil
}

func (r *Ratings) list(keep func(domain.Rating) bool) []domain.Rating {
	out := []domain.Rating{}
	for _, id := range sortedIDs(r.m.st.ratings) {
		x := r.m.st.ratings[id]
		if keep(x) {
			x.UserName = r.m.st.users[x.UserID].Name
			out = append(out, x)
		}
	}
	return out
}

func (r *Ratings) ListByProduct(_ context.Context, productID int64) ([]domain.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.list(func(x domain.Rating) bool { return x.ProductID == productID }), nil
}

func (r *Ratings) ListByUser(_ context.Context, userID int64) ([]domain.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.list(func(x domain.Rating) bool { return x.UserID == userID }), nil
}

func (r *Ratings) consumed(userID int64) map[int64]bool {
	out := map[int64]bool{}
	for id, o := range r.m.st.orders {
		if o.BuyerID != userID || o.Status != domain.StatusApproved {
			continue
		}
		for _, l := range r.m.st.lines[id] {
			out[l.ProductID] = true
		}
	}
	return out
}

func (r *Ratings) HasConsumed(_ context.Context, userID, productID int64) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.consumed(userID)[productID], nil
}

func (r *Ratings) ConsumedNotRated(_ context.Context, userID int64) ([]domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	bought := r.consumed(userID)
	for _, x := range r.m.st.ratings {
		if x.UserID == userID {
			delete(bought, x.ProductID)
		}
	}
	out := []domain.Product{}
	for _, id := range sortedIDs(r.m.st.products) {
		if bought[id] {
			out = append(out, r.m.st.products[id])
		}
	}
	return out, nil
}

func (r *Ratings) Scores(context.Context) ([]domain.ProductScore, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	sum := map[int64]int{}
	count := map[int64]int{}
	for _, x := range r.m.st.ratings {
		sum[x.ProductID] += x.Score
		count[x.ProductID]++
	}
	var out []domain.ProductScore
	for _, id := range sortedIDs(count) {
		avg := decimal.NewFromInt(int64(sum[id])).Div(decimal.NewFromInt(int64(count[id])))
		out = append(out, domain.ProductScore{Product: r.m.st.products[id], Average: avg, Count: count[id]})
	}
	return out, nil
}

var (
	_ usecase.ProductRepo  = (*Products)(nil)
	_ usecase.UserRepo     = (*Users)(nil)
	_ usecase.ClientRepo   = (*Clients)(nil)
	_ usecase.EmployeeRepo = (*Employees)(nil)
	_ usecase.RatingRepo   = (*Ratings)(nil)
)
