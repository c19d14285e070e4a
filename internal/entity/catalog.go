package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidProduct = errors.New("invalid product")

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" || !p.Price.IsPositive() {
		return ErrInvalidProduct
	}
	return nil
}

type Rating struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	MinScore = 1
	MaxScore = 5
)

func ValidScore(n int) bool { return n >= MinScore && n <= MaxScore }

// ProductScore aggregates the ratings of one product.
type ProductScore struct {
	Product Product         `json:"product"`
	Average decimal.Decimal `json:"average"`
	Count   int             `json:"count"`
}
