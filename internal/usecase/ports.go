package usecase

import (
	"context"
	"time"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

// OrderStore is the transactional view of orders, their lines and the catalog
// lookup. Every method runs inside the transaction opened by UnitOfWork.Do.
type OrderStore interface {
	// LockBuyer locks the buyer row until the transaction ends; ErrBuyerNotFound if absent.
	LockBuyer(ctx context.Context, buyerID int64) error
	// FindPendingOrder returns ErrOrderNotFound when the buyer has no pending order.
	FindPendingOrder(ctx context.Context, buyerID int64) (*domain.Order, error)
	// CreatePendingOrder returns ErrDuplicate if a pending order appeared concurrently.
	CreatePendingOrder(ctx context.Context, buyerID int64) (*domain.Order, error)
	// LockOrder reads the order for update; ErrOrderNotFound if absent.
	LockOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	SaveOrder(ctx context.Context, o *domain.Order) error
	DeleteOrder(ctx context.Context, orderID int64) error
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID int64) ([]domain.Order, error)

	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)

	ListLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error)
	GetLine(ctx context.Context, orderID, productID int64) (domain.OrderLine, bool, error)
	InsertLine(ctx context.Context, l domain.OrderLine) error
	UpdateLineQuantity(ctx context.Context, orderID, productID int64, qty int) error
	DeleteLine(ctx context.Context, orderID, productID int64) error
	DeleteLines(ctx context.Context, orderID int64) error

	SaveDelivery(ctx context.Context, orderID int64, d domain.DeliveryInfo) error
	GetDelivery(ctx context.Context, orderID int64) (*domain.DeliveryInfo, error)
	SavePayment(ctx context.Context, orderID int64, p domain.PaymentInfo) error
	GetPayment(ctx context.Context, orderID int64) (*domain.PaymentInfo, error)

	AppendOutbox(ctx context.Context, ev OutboxEvent) error
}

// UnitOfWork runs fn in one transaction: committed when fn returns nil, rolled back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s OrderStore) error) error
}

type ProductRepo interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
}

type UserRepo interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id int64) error
	SetPassword(ctx context.Context, id int64, hash string) error
	// Role derives employee > client > user from the profile tables.
	Role(ctx context.Context, id int64) (domain.Role, error)
}

type ClientRepo interface {
	Create(ctx context.Context, c *domain.Client) error
	Get(ctx context.Context, id int64) (*domain.Client, error)
	GetByUser(ctx context.Context, userID int64) (*domain.Client, error)
	List(ctx context.Context) ([]domain.Client, error)
	Update(ctx context.Context, c *domain.Client) error
	Delete(ctx context.Context, id int64) error
}

type EmployeeRepo interface {
	Create(ctx context.Context, e *domain.Employee) error
	Get(ctx context.Context, id int64) (*domain.Employee, error)
	GetByUser(ctx context.Context, userID int64) (*domain.Employee, error)
	List(ctx context.Context) ([]domain.Employee, error)
	Update(ctx context.Context, e *domain.Employee) error
	Delete(ctx context.Context, id int64) error
}

type RatingRepo interface {
	Create(ctx context.Context, r *domain.Rating) error
	Get(ctx context.Context, id int64) (*domain.Rating, error)
	Update(ctx context.Context, r *domain.Rating) error
	Delete(ctx context.Context, id int64) error
	ListByProduct(ctx context.Context, productID int64) ([]domain.Rating, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Rating, error)
	// HasConsumed reports whether the user has the product in an Approved order.
	HasConsumed(ctx context.Context, userID, productID int64) (bool, error)
	ConsumedNotRated(ctx context.Context, userID int64) ([]domain.Product, error)
	Scores(ctx context.Context) ([]domain.ProductScore, error)
}

type RecoveryCode struct {
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

type RecoveryCodeStore interface {
	Save(ctx context.Context, email string, rc RecoveryCode) error
	Get(ctx context.Context, email string) (*RecoveryCode, error)
	IncrAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
	Release(ctx context.Context, scope, key string) error
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
