package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type userRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	Email        sql.NullString `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Guest        bool           `db:"guest"`
	Role         string         `db:"role"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r userRow) user() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email.String,
		PasswordHash: r.PasswordHash,
		Guest:        r.Guest,
		Role:         domain.Role(r.Role),
		CreatedAt:    r.CreatedAt,
	}
}

// roleExpr ranks employee over client over plain user.
const roleExpr = `CASE
    WHEN u.guest = 1 THEN 'guest'
    WHEN EXISTS (SELECT 1 FROM employees e WHERE e.user_id = u.id) THEN 'employee'
    WHEN EXISTS (SELECT 1 FROM clients c WHERE c.user_id = u.id) THEN 'client'
    ELSE 'user' END`

const userSelect = `SELECT u.id, u.name, u.email, u.password_hash, u.guest, ` + roleExpr + ` AS role, u.created_at FROM users u`

type MySQLUserRepo struct{ db *sqlx.DB }

func NewMySQLUserRepo(db *sqlx.DB) *MySQLUserRepo { return &MySQLUserRepo{db: db} }

func (r *MySQLUserRepo) Create(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (name, email, password_hash, guest, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Name, nullString(u.Email), u.PasswordHash, u.Guest, u.CreatedAt)
	if isDuplicate(err) {
		return usecase.ErrEmailTaken
	}
	if err != nil {
		return storageErr("create user", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return storageErr("create user", err)
	}
	return nil
}

func (r *MySQLUserRepo) getOne(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, userSelect+` WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return row.user(), nil
}

func (r *MySQLUserRepo) Get(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, "get user", `u.id = ?`, id)
}

func (r *MySQLUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "get user by email", `u.email = ?`, email)
}

func (r *MySQLUserRepo) List(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, userSelect+` WHERE u.guest = 0 ORDER BY u.id`); err != nil {
		return nil, storageErr("list users", err)
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.user())
	}
	return out, nil
}

func (r *MySQLUserRepo) Update(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET name = ?, email = ? WHERE id = ?`,
		u.Name, nullString(u.Email), u.ID)
	if isDuplicate(err) {
		return usecase.ErrEmailTaken
	}
	if err != nil {
		return storageErr("update user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *MySQLUserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if isReferenced(err) {
		return errors.Wrap(usecase.ErrInvalidInput, "user has orders")
	}
	if err != nil {
		return storageErr("delete user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return usecase.ErrUserNotFound
	}
	return nil
}

func (r *MySQLUserRepo) SetPassword(ctx context.Context, id int64, hash string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id); err != nil {
		return storageErr("set password", err)
	}
	return nil
}

func (r *MySQLUserRepo) Role(ctx context.Context, id int64) (domain.Role, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

type clientRow struct {
	ID       int64          `db:"id"`
	UserID   int64          `db:"user_id"`
	Name     string         `db:"name"`
	Email    sql.NullString `db:"email"`
	Phone    string         `db:"phone"`
	Address  string         `db:"address"`
	District string         `db:"district"`
}

func (r clientRow) client() *domain.Client {
	return &domain.Client{
		ID: r.ID, UserID: r.UserID, Name: r.Name, Email: r.Email.String,
		Phone: r.Phone, Address: r.Address, District: r.District,
	}
}

const clientSelect = `
SELECT c.id, c.user_id, u.name, u.email, c.phone, c.address, c.district
FROM clients c JOIN users u ON u.id = c.user_id`

type MySQLClientRepo struct{ db *sqlx.DB }

func NewMySQLClientRepo(db *sqlx.DB) *MySQLClientRepo { return &MySQLClientRepo{db: db} }

func (r *MySQLClientRepo) Create(ctx context.Context, c *domain.Client) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO clients (user_id, phone, address, district) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Phone, c.Address, c.District)
	if isDuplicate(err) {
		return usecase.ErrAlreadyClient
	}
	if isMissingParent(err) {
		return usecase.ErrUserNotFound
	}
	if err != nil {
		return storageErr("create client", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return storageErr("create client", err)
	}
	return nil
}

func (r *MySQLClientRepo) getOne(ctx context.Context, where string, arg any) (*domain.Client, error) {
	var row clientRow
	err := r.db.GetContext(ctx, &row, clientSelect+` WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrClientNotFound
	}
	if err != nil {
		return nil, storageErr("get client", err)
	}
	return row.client(), nil
}

func (r *MySQLClientRepo) Get(ctx context.Context, id int64) (*domain.Client, error) {
	return r.getOne(ctx, `c.id = ?`, id)
}

func (r *MySQLClientRepo) GetByUser(ctx context.Context, userID int64) (*domain.Client, error) {
	return r.getOne(ctx, `c.user_id = ?`, userID)
}

func (r *MySQLClientRepo) List(ctx context.Context) ([]domain.Client, error) {
	var rows []clientRow
	if err := r.db.SelectContext(ctx, &rows, clientSelect+` ORDER BY c.id`); err != nil {
		return nil, storageErr("list clients", err)
	}
	out := make([]domain.Client, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.client())
	}
	return out, nil
}

func (r *MySQLClientRepo) Update(ctx context.Context, c *domain.Client) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE clients SET phone = ?, address = ?, district = ? WHERE id = ?`,
		c.Phone, c.Address, c.District, c.ID); err != nil {
		return storageErr("update client", err)
	}
	return nil
}

func (r *MySQLClientRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete client", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return usecase.ErrClientNotFound
	}
	return nil
}

type employeeRow struct {
	ID       int64          `db:"id"`
	UserID   int64          `db:"user_id"`
	Name     string         `db:"name"`
	Email    sql.NullString `db:"email"`
	Position string         `db:"position"`
}

const employeeSelect = `
SELECT e.id, e.user_id, u.name, u.email, e.position
FROM employees e JOIN users u ON u.id = e.user_id`

type MySQLEmployeeRepo struct{ db *sqlx.DB }

func NewMySQLEmployeeRepo(db *sqlx.DB) *MySQLEmployeeRepo { return &MySQLEmployeeRepo{db: db} }

func (r *MySQLEmployeeRepo) Create(ctx context.Context, e *domain.Employee) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO employees (user_id, position) VALUES (?, ?)`, e.UserID, e.Position)
	if isDuplicate(err) {
		return usecase.ErrAlreadyEmployee
	}
	if isMissingParent(err) {
		return usecase.ErrUserNotFound
	}
	if err != nil {
		return storageErr("create employee", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return storageErr("create employee", err)
	}
	return nil
}

func (r *MySQLEmployeeRepo) getOne(ctx context.Context, where string, arg any) (*domain.Employee, error) {
	var row employeeRow
	err := r.db.GetContext(ctx, &row, employeeSelect+` WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, storageErr("get employee", err)
	}
	return &domain.Employee{ID: row.ID, UserID: row.UserID, Name: row.Name, Email: row.Email.String, Position: row.Position}, nil
}

func (r *MySQLEmployeeRepo) Get(ctx context.Context, id int64) (*domain.Employee, error) {
	return r.getOne(ctx, `e.id = ?`, id)
}

func (r *MySQLEmployeeRepo) GetByUser(ctx context.Context, userID int64) (*domain.Employee, error) {
	return r.getOne(ctx, `e.user_id = ?`, userID)
}

func (r *MySQLEmployeeRepo) List(ctx context.Context) ([]domain.Employee, error) {
	var rows []employeeRow
	if err := r.db.SelectContext(ctx, &rows, employeeSelect+` ORDER BY e.id`); err != nil {
		return nil, storageErr("list employees", err)
	}
	out := make([]domain.Employee, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Employee{ID: row.ID, UserID: row.UserID, Name: row.Name, Email: row.Email.String, Position: row.Position})
	}
	return out, nil
}

func (r *MySQLEmployeeRepo) Update(ctx context.Context, e *domain.Employee) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE employees SET position = ? WHERE id = ?`, e.Position, e.ID); err != nil {
		return storageErr("update employee", err)
	}
	return nil
}

func (r *MySQLEmployeeRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete employee", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return usecase.ErrEmployeeNotFound
	}
	return nil
}

var (
	_ usecase.UserRepo     = (*MySQLUserRepo)(nil)
	_ usecase.ClientRepo   = (*MySQLClientRepo)(nil)
	_ usecase.EmployeeRepo = (*MySQLEmployeeRepo)(nil)
)
