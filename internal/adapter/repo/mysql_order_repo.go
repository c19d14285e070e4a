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

// MySQLUnitOfWork opens one READ COMMITTED transaction per Do. Row locks
// (SELECT ... FOR UPDATE) on the buyer and the order serialize cart mutations.
type MySQLUnitOfWork struct{ db *sqlx.DB }

func NewMySQLUnitOfWork(db *sqlx.DB) *MySQLUnitOfWork { return &MySQLUnitOfWork{db: db} }

func (u *MySQLUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s usecase.OrderStore) error) error {
	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &mysqlOrderStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

type mysqlOrderStore struct{ tx *sqlx.Tx }

type orderRow struct {
	ID            int64           `db:"id"`
	BuyerID       int64           `db:"buyer_id"`
	Status        string          `db:"status"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	DeliveryFee   decimal.Decimal `db:"delivery_fee"`
	PaymentMethod sql.NullString  `db:"payment_method"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	FinalizedAt   sql.NullTime    `db:"finalized_at"`
}

const orderCols = `id, buyer_id, status, total_amount, delivery_fee, payment_method, created_at, updated_at, finalized_at`

func (r orderRow) order() *domain.Order {
	o := &domain.Order{
		ID:            r.ID,
		BuyerID:       r.BuyerID,
		Status:        domain.Status(r.Status),
		TotalAmount:   r.TotalAmount,
		DeliveryFee:   r.DeliveryFee,
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod.String),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.FinalizedAt.Valid {
		t := r.FinalizedAt.Time
		o.FinalizedAt = &t
	}
	return o
}

func (s *mysqlOrderStore) LockBuyer(ctx context.Context, buyerID int64) error {
	var id int64
	err := s.tx.GetContext(ctx, &id, `SELECT id FROM users WHERE id = ? FOR UPDATE`, buyerID)
	if errors.Is(err, sql.ErrNoRows) {
		return usecase.ErrBuyerNotFound
	}
	if err != nil {
		return storageErr("lock buyer", err)
	}
	return nil
}

func (s *mysqlOrderStore) FindPendingOrder(ctx context.Context, buyerID int64) (*domain.Order, error) {
	var row orderRow
	err := s.tx.GetContext(ctx, &row,
		`SELECT `+orderCols+` FROM orders WHERE pending_buyer_id = ? FOR UPDATE`, buyerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrOrderNotFound
	}
	if err != nil {
		return nil, storageErr("find pending order", err)
	}
	return row.order(), nil
}

func (s *mysqlOrderStore) CreatePendingOrder(ctx context.Context, buyerID int64) (*domain.Order, error) {
	now := time.Now().UTC()
	res, err := s.tx.ExecContext(ctx, `
INSERT INTO orders (buyer_id, status, total_amount, delivery_fee, created_at, updated_at)
VALUES (?, ?, 0, 0, ?, ?)`, buyerID, domain.StatusPending, now, now)
	if isDuplicate(err) {
		return nil, usecase.ErrDuplicate
	}
	if isMissingParent(err) {
		return nil, usecase.ErrBuyerNotFound
	}
	if err != nil {
		return nil, storageErr("create order", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("create order", err)
	}
	return &domain.Order{
		ID:          id,
		BuyerID:     buyerID,
		Status:      domain.StatusPending,
		TotalAmount: decimal.Zero,
		DeliveryFee: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *mysqlOrderStore) LockOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var row orderRow
	err := s.tx.GetContext(ctx, &row, `SELECT `+orderCols+` FROM orders WHERE id = ? FOR UPDATE`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrOrderNotFound
	}
	if err != nil {
		return nil, storageErr("lock order", err)
	}
	return row.order(), nil
}

func (s *mysqlOrderStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	var finalized sql.NullTime
	if o.FinalizedAt != nil {
		finalized = sql.NullTime{Time: *o.FinalizedAt, Valid: true}
	}
	res, err := s.tx.ExecContext(ctx, `
UPDATE orders
SET status = ?, total_amount = ?, delivery_fee = ?, payment_method = ?, updated_at = ?, finalized_at = ?
WHERE id = ?`,
		o.Status, o.TotalAmount.Round(2), o.DeliveryFee.Round(2), nullString(string(o.PaymentMethod)),
		o.UpdatedAt, finalized, o.ID,
	)
	if isOutOfRange(err) {
		return usecase.ErrInvalidAmount
	}
	if err != nil {
		return storageErr("save order", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return storageErr("save order", err)
	}
	// rows == 0 also when nothing changed; confirm the row exists
	if rows == 0 {
		var n int
		if err := s.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM orders WHERE id = ?`, o.ID); err != nil {
			return storageErr("save order", err)
		}
		if n == 0 {
			return usecase.ErrOrderNotFound
		}
	}
	return nil
}

func (s *mysqlOrderStore) DeleteOrder(ctx context.Context, orderID int64) error {
	// lines, delivery and payment go with ON DELETE CASCADE
	res, err := s.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return storageErr("delete order", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return usecase.ErrOrderNotFound
	}
	return nil
}

func (s *mysqlOrderStore) selectOrders(ctx context.Context, op, query string, args ...any) ([]domain.Order, error) {
	var rows []orderRow
	if err := s.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr(op, err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.order())
	}
	return out, nil
}

func (s *mysqlOrderStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.selectOrders(ctx, "list orders", `SELECT `+orderCols+` FROM orders ORDER BY id DESC`)
}

func (s *mysqlOrderStore) ListBuyerOrders(ctx context.Context, buyerID int64) ([]domain.Order, error) {
	return s.selectOrders(ctx, "list buyer orders",
		`SELECT `+orderCols+` FROM orders WHERE buyer_id = ? ORDER BY id DESC`, buyerID)
}

func (s *mysqlOrderStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var row productRow
	err := s.tx.GetContext(ctx, &row, `SELECT `+productCols+` FROM products WHERE id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usecase.ErrProductNotFound
	}
	if err != nil {
		return nil, storageErr("get product", err)
	}
	return row.product(), nil
}

type lineRow struct {
	OrderID     int64           `db:"order_id"`
	ProductID   int64           `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
}

func (r lineRow) line() domain.OrderLine {
	return domain.OrderLine{
		OrderID:     r.OrderID,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
	}
}

const lineSelect = `
SELECT l.order_id, l.product_id, p.name AS product_name, l.quantity, l.unit_price
FROM order_lines l JOIN products p ON p.id = l.product_id`

func (s *mysqlOrderStore) ListLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	var rows []lineRow
	if err := s.tx.SelectContext(ctx, &rows, lineSelect+` WHERE l.order_id = ? ORDER BY l.added_at, l.product_id`, orderID); err != nil {
		return nil, storageErr("list lines", err)
	}
	out := make([]domain.OrderLine, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.line())
	}
	return out, nil
}

func (s *mysqlOrderStore) GetLine(ctx context.Context, orderID, productID int64) (domain.OrderLine, bool, error) {
	var row lineRow
	err := s.tx.GetContext(ctx, &row, lineSelect+` WHERE l.order_id = ? AND l.product_id = ?`, orderID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrderLine{}, false, nil
	}
	if err != nil {
		return domain.OrderLine{}, false, storageErr("get line", err)
	}
	return row.line(), true, nil
}

func (s *mysqlOrderStore) InsertLine(ctx context.Context, l domain.OrderLine) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO order_lines (order_id, product_id, quantity, unit_price, added_at)
VALUES (?, ?, ?, ?, ?)`, l.OrderID, l.ProductID, l.Quantity, l.UnitPrice.Round(2), time.Now().UTC())
	if isDuplicate(err) {
		return usecase.ErrDuplicate
	}
	if isMissingParent(err) {
		return usecase.ErrProductNotFound
	}
	if isOutOfRange(err) {
		return usecase.ErrInvalidQuantity
	}
	if err != nil {
		return storageErr("insert line", err)
	}
	return nil
}

func (s *mysqlOrderStore) UpdateLineQuantity(ctx context.Context, orderID, productID int64, qty int) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE order_lines SET quantity = ? WHERE order_id = ? AND product_id = ?`, qty, orderID, productID)
	if isOutOfRange(err) {
		return usecase.ErrInvalidQuantity
	}
	if err != nil {
		return storageErr("update line", err)
	}
	return nil
}

func (s *mysqlOrderStore) DeleteLine(ctx context.Context, orderID, productID int64) error {
	if _, err := s.tx.ExecContext(ctx,
		`DELETE FROM order_lines WHERE order_id = ? AND product_id = ?`, orderID, productID); err != nil {
		return storageErr("delete line", err)
	}
	return nil
}

func (s *mysqlOrderStore) DeleteLines(ctx context.Context, orderID int64) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, orderID); err != nil {
		return storageErr("delete lines", err)
	}
	return nil
}

type deliveryRow struct {
	RecipientName string          `db:"recipient_name"`
	Phone         string          `db:"phone"`
	Address       string          `db:"address"`
	District      string          `db:"district"`
	Fee           decimal.Decimal `db:"fee"`
}

func (s *mysqlOrderStore) SaveDelivery(ctx context.Context, orderID int64, d domain.DeliveryInfo) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO order_deliveries (order_id, recipient_name, phone, address, district, fee)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE recipient_name = VALUES(recipient_name), phone = VALUES(phone),
    address = VALUES(address), district = VALUES(district), fee = VALUES(fee)`,
		orderID, d.RecipientName, d.Phone, d.Address, d.District, d.Fee.Round(2))
	if err != nil {
		return storageErr("save delivery", err)
	}
	return nil
}

func (s *mysqlOrderStore) GetDelivery(ctx context.Context, orderID int64) (*domain.DeliveryInfo, error) {
	var row deliveryRow
	err := s.tx.GetContext(ctx, &row, `
SELECT recipient_name, phone, address, district, fee FROM order_deliveries WHERE order_id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get delivery", err)
	}
	return &domain.DeliveryInfo{
		RecipientName: row.RecipientName,
		Phone:         row.Phone,
		Address:       row.Address,
		District:      row.District,
		Fee:           row.Fee,
	}, nil
}

type paymentRow struct {
	Method     string              `db:"method"`
	Amount     decimal.Decimal     `db:"amount"`
	Tendered   decimal.NullDecimal `db:"tendered"`
	Change     decimal.NullDecimal `db:"change_due"`
	CardLast4  sql.NullString      `db:"card_last4"`
	CardHolder sql.NullString      `db:"card_holder"`
	PaidAt     time.Time           `db:"paid_at"`
}

func optDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d.Round(2), Valid: true}
}

func (s *mysqlOrderStore) SavePayment(ctx context.Context, orderID int64, p domain.PaymentInfo) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO order_payments (order_id, method, amount, tendered, change_due, card_last4, card_holder, paid_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, p.Method, p.Amount.Round(2), optDecimal(p.Tendered), optDecimal(p.Change),
		nullString(p.CardLast4), nullString(p.CardHolder), p.PaidAt)
	if isDuplicate(err) {
		return usecase.ErrOrderNotMutable
	}
	if err != nil {
		return storageErr("save payment", err)
	}
	return nil
}

func (s *mysqlOrderStore) GetPayment(ctx context.Context, orderID int64) (*domain.PaymentInfo, error) {
	var row paymentRow
	err := s.tx.GetContext(ctx, &row, `
SELECT method, amount, tendered, change_due, card_last4, card_holder, paid_at
FROM order_payments WHERE order_id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get payment", err)
	}
	p := &domain.PaymentInfo{
		Method:     domain.PaymentMethod(row.Method),
		Amount:     row.Amount,
		CardLast4:  row.CardLast4.String,
		CardHolder: row.CardHolder.String,
		PaidAt:     row.PaidAt,
	}
	if row.Tendered.Valid {
		p.Tendered = &row.Tendered.Decimal
	}
	if row.Change.Valid {
		p.Change = &row.Change.Decimal
	}
	return p, nil
}

var (
	_ usecase.UnitOfWork = (*MySQLUnitOfWork)(nil)
	_ usecase.OrderStore = (*mysqlOrderStore)(nil)
)
