package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

type RegisterInput struct {
	Name, Email, Password string
}

type UpdateUserInput struct {
	Name, Email string
	// Password is changed only when non-empty.
	Password string
}

// Accounts manages users, their client and employee profiles, and login.
type Accounts struct {
	users     UserRepo
	clients   ClientRepo
	employees EmployeeRepo
	cost      int
	now       func() time.Time
}

func NewAccounts(users UserRepo, clients ClientRepo, employees EmployeeRepo) *Accounts {
	return &Accounts{
		users:     users,
		clients:   clients,
		employees: employees,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
	}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// same validator gin binding uses for the "email" tag
var validate = validator.New(validator.WithRequiredStructEnabled())

func validEmail(s string) bool { return validate.Var(s, "required,email") == nil }

func (uc *Accounts) hash(password string) (string, error) {
	if len(password) < domain.MinPasswordLen {
		return "", ErrWeakPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), uc.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (uc *Accounts) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, invalidf("name, email and password are required")
	}
	if !validEmail(email) {
		return nil, invalidf("malformed email")
	}
	h, err := uc.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{Name: name, Email: email, PasswordHash: h, CreatedAt: uc.now().UTC()}
	if err := uc.users.Create(ctx, u); err != nil {
		return nil, err
	}
	u.Role = domain.RoleUser
	return u, nil
}

// CreateGuest creates the anonymous buyer behind a cookie session.
func (uc *Accounts) CreateGuest(ctx context.Context) (*domain.User, error) {
	u := &domain.User{Name: "guest", Guest: true, CreatedAt: uc.now().UTC()}
	if err := uc.users.Create(ctx, u); err != nil {
		return nil, err
	}
	u.Role = domain.RoleGuest
	return u, nil
}

// Authenticate checks the credentials and resolves the role the token will carry.
func (uc *Accounts) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := uc.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.Guest || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Role, err = uc.users.Role(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (uc *Accounts) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := uc.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role, err = uc.users.Role(ctx, id); err != nil {
		return nil, err
	}
	return u, nil
}

func (uc *Accounts) ListUsers(ctx context.Context) ([]domain.User, error) {
	return uc.users.List(ctx)
}

func (uc *Accounts) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*domain.User, error) {
	u, err := uc.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		u.Name = name
	}
	if in.Email != "" {
		email := normalizeEmail(in.Email)
		if !validEmail(email) {
			return nil, invalidf("malformed email")
		}
		u.Email = email
	}
	if err := uc.users.Update(ctx, u); err != nil {
		return nil, err
	}
	if in.Password != "" {
		h, err := uc.hash(in.Password)
		if err != nil {
			return nil, err
		}
		if err := uc.users.SetPassword(ctx, id, h); err != nil {
			return nil, err
		}
	}
	return uc.GetUser(ctx, id)
}

func (uc *Accounts) DeleteUser(ctx context.Context, id int64) error {
	return uc.users.Delete(ctx, id)
}

type ClientInput struct {
	UserID                   int64
	Phone, Address, District string
}

func (uc *Accounts) CreateClient(ctx context.Context, in ClientInput) (*domain.Client, error) {
	if in.UserID <= 0 {
		return nil, invalidf("user_id is required")
	}
	if _, err := uc.users.Get(ctx, in.UserID); err != nil {
		return nil, err
	}
	c := &domain.Client{
		UserID:   in.UserID,
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		District: strings.TrimSpace(in.District),
	}
	if err := uc.clients.Create(ctx, c); err != nil {
		return nil, err
	}
	return uc.clients.Get(ctx, c.ID)
}

func (uc *Accounts) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	return uc.clients.Get(ctx, id)
}

func (uc *Accounts) ClientOfUser(ctx context.Context, userID int64) (*domain.Client, error) {
	return uc.clients.GetByUser(ctx, userID)
}

func (uc *Accounts) ListClients(ctx context.Context) ([]domain.Client, error) {
	return uc.clients.List(ctx)
}

func (uc *Accounts) UpdateClient(ctx context.Context, id int64, in ClientInput) (*domain.Client, error) {
	c, err := uc.clients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = strings.TrimSpace(in.Address)
	c.District = strings.TrimSpace(in.District)
	if err := uc.clients.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (uc *Accounts) DeleteClient(ctx context.Context, id int64) error {
	return uc.clients.Delete(ctx, id)
}

type EmployeeInput struct {
	UserID   int64
	Position string
}

func (uc *Accounts) CreateEmployee(ctx context.Context, in EmployeeInput) (*domain.Employee, error) {
	if in.UserID <= 0 || strings.TrimSpace(in.Position) == "" {
		return nil, invalidf("user_id and position are required")
	}
	if _, err := uc.users.Get(ctx, in.UserID); err != nil {
		return nil, err
	}
	e := &domain.Employee{UserID: in.UserID, Position: strings.TrimSpace(in.Position)}
	if err := uc.employees.Create(ctx, e); err != nil {
		return nil, err
	}
	return uc.employees.Get(ctx, e.ID)
}

func (uc *Accounts) GetEmployee(ctx context.Context, id int64) (*domain.Employee, error) {
	return uc.employees.Get(ctx, id)
}

func (uc *Accounts) EmployeeOfUser(ctx context.Context, userID int64) (*domain.Employee, error) {
	return uc.employees.GetByUser(ctx, userID)
}

func (uc *Accounts) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return uc.employees.List(ctx)
}

func (uc *Accounts) UpdateEmployee(ctx context.Context, id int64, in EmployeeInput) (*domain.Employee, error) {
	e, err := uc.employees.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Position) == "" {
		return nil, invalidf("position is required")
	}
	e.Position = strings.TrimSpace(in.Position)
	if err := uc.employees.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (uc *Accounts) DeleteEmployee(ctx context.Context, id int64) error {
	return uc.employees.Delete(ctx, id)
}
