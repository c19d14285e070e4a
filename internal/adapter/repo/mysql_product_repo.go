package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type productRow struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Description sql.NullString  `db:"description"`
	Price       decimal.Decimal `db:"price"`
	ImageURL    string          `db:"image_url"`
}

const productCols = `id, name, description, price, image_url`

func (r productRow) product() *domain.Product {
	return &domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
	}
}

type MySQLProductRepo struct{ db *sqlx.DB }

func NewMySQLProductRepo(db *sqlx.DB) *MySQLProductRepo { return &MySQLProductRepo{db: db} }

func (r *MySQLProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+productCols+` FROM products ORDER BY id`); err != nil {
		return nil, storageErr("list products", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.product())
	}
	return out, nil
}

func (r *MySQLProductRepo) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, `SELECT `+productCols+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrProductNotFound
	}
	if err != nil {
		return nil, storageErr("get product", err)
	}
	return row.product(), nil
}

func (r *MySQLProductRepo) Create(ctx context.Context, p *domain.Product) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO products (name, description, price, image_url) VALUES (?, ?, ?, ?)`,
		p.Name, nullString(p.Description), p.Price.Round(2), p.ImageURL)
	if err != nil {
		return storageErr("create product", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return storageErr("create product", err)
	}
	return nil
}

func (r *MySQLProductRepo) Update(ctx context.Context, p *domain.Product) error {
	if _, err := r.Get(ctx, p.ID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE products SET name = ?, description = ?, price = ?, image_url = ? WHERE id = ?`,
		p.Name, nullString(p.Description), p.Price.Round(2), p.ImageURL, p.ID)
	if err != nil {
		return storageErr("update product", err)
	}
	return nil
}

func (r *MySQLProductRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if isReferenced(err) {
		return usecase.ErrProductInUse
	}
	if err != nil {
		return storageErr("delete product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return usecase.ErrProductNotFound
	}
	return nil
}

var _ usecase.ProductRepo = (*MySQLProductRepo)(nil)
