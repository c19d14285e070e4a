package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type ratingRow struct {
	ID        int64          `db:"id"`
	ProductID int64          `db:"product_id"`
	UserID    int64          `db:"user_id"`
	UserName  string         `db:"user_name"`
	Score     int            `db:"score"`
	Comment   sql.NullString `db:"comment"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r ratingRow) rating() *domain.Rating {
	return &domain.Rating{
		ID: r.ID, ProductID: r.ProductID, UserID: r.UserID, UserName: r.UserName,
		Score: r.Score, Comment: r.Comment.String, CreatedAt: r.CreatedAt,
	}
}

const ratingSelect = `
SELECT r.id, r.product_id, r.user_id, u.name AS user_name, r.score, r.comment, r.created_at
FROM ratings r JOIN users u ON u.id = r.user_id`

type MySQLRatingRepo struct{ db *sqlx.DB }

func NewMySQLRatingRepo(db *sqlx.DB) *MySQLRatingRepo { return &MySQLRatingRepo{db: db} }

func (r *MySQLRatingRepo) Create(ctx context.Context, x *domain.Rating) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO ratings (product_id, user_id, score, comment, created_at) VALUES (?, ?, ?, ?, ?)`,
		x.ProductID, x.UserID, x.Score, nullString(x.Comment), x.CreatedAt)
	if isDuplicate(err) {
		return usecase.ErrAlreadyRated
	}
	if isMissingParent(err) {
		return usecase.ErrProductNotFound
	}
	if err != nil {
		return storageErr("create rating", err)
	}
	if x.ID, err = res.LastInsertId(); err != nil {
		return storageErr("create rating", err)
	}
	return nil
}

func (r *MySQLRatingRepo) Get(ctx context.Context, id int64) (*domain.Rating, error) {
	var row ratingRow
	err := r.db.GetContext(ctx, &row, ratingSelect+` WHERE r.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrRatingNotFound
	}
	if err != nil {
		return nil, storageErr("get rating", err)
	}
	return row.rating(), nil
}

func (r *MySQLRatingRepo) Update(ctx context.Context, x *domain.Rating) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE ratings SET score = ?, comment = ? WHERE id = ?`,
		x.Score, nullString(x.Comment), x.ID); err != nil {
		return storageErr("update rating", err)
	}
	return nil
}

func (r *MySQLRatingRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ratings WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete rating", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return usecase.ErrRatingNotFound
	}
	return nil
}

func (r *MySQLRatingRepo) list(ctx context.Context, where string, arg any) ([]domain.Rating, error) {
	var rows []ratingRow
	if err := r.db.SelectContext(ctx, &rows, ratingSelect+` WHERE `+where+` ORDER BY r.created_at DESC, r.id DESC`, arg); err != nil {
		return nil, storageErr("list ratings", err)
	}
	out := make([]domain.Rating, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.rating())
	}
	return out, nil
}

func (r *MySQLRatingRepo) ListByProduct(ctx context.Context, productID int64) ([]domain.Rating, error) {
	return r.list(ctx, `r.product_id = ?`, productID)
}

func (r *MySQLRatingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Rating, error) {
	return r.list(ctx, `r.user_id = ?`, userID)
}

func (r *MySQLRatingRepo) HasConsumed(ctx context.Context, userID, productID int64) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `
SELECT EXISTS (
    SELECT 1 FROM orders o JOIN order_lines l ON l.order_id = o.id
    WHERE o.buyer_id = ? AND o.status = ? AND l.product_id = ?
)`, userID, domain.StatusApproved, productID)
	if err != nil {
		return false, storageErr("has consumed", err)
	}
	return ok, nil
}

func (r *MySQLRatingRepo) ConsumedNotRated(ctx context.Context, userID int64) ([]domain.Product, error) {
	var rows []productRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT DISTINCT p.id, p.name, p.description, p.price, p.image_url
FROM products p
JOIN order_lines l ON l.product_id = p.id
JOIN orders o ON o.id = l.order_id
WHERE o.buyer_id = ? AND o.status = ?
  AND NOT EXISTS (SELECT 1 FROM ratings r WHERE r.user_id = o.buyer_id AND r.product_id = p.id)
ORDER BY p.id`, userID, domain.StatusApproved)
	if err != nil {
		return nil, storageErr("consumed not rated", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.product())
	}
	return out, nil
}

type scoreRow struct {
	productRow
	Average decimal.Decimal `db:"average"`
	Count   int             `db:"ratings"`
}

func (r *MySQLRatingRepo) Scores(ctx context.Context) ([]domain.ProductScore, error) {
	var rows []scoreRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT p.id, p.name, p.description, p.price, p.image_url,
       AVG(r.score) AS average, COUNT(r.id) AS ratings
FROM products p JOIN ratings r ON r.product_id = p.id
GROUP BY p.id, p.name, p.description, p.price, p.image_url
ORDER BY p.id`)
	if err != nil {
		return nil, storageErr("rating scores", err)
	}
	out := make([]domain.ProductScore, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ProductScore{Product: *row.product(), Average: row.Average, Count: row.Count})
	}
	return out, nil
}

var _ usecase.RatingRepo = (*MySQLRatingRepo)(nil)
