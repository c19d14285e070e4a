package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusCancelled Status = "Cancelled"
	StatusRefunded  Status = "Refunded"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCardNumber = errors.New("invalid card number")
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusCancelled, StatusRefunded:
		return st, true
	}
	return "", false
}

// Mutable reports whether lines, totals and payment may still change.
func (s Status) Mutable() bool { return s == StatusPending }

// CanOverride reports whether an administrator may move an order from s to next.
// Pending orders are carts and are only left through checkout.
func (s Status) CanOverride(next Status) bool {
	switch s {
	case StatusApproved:
		return next == StatusCancelled || next == StatusRefunded
	case StatusCancelled:
		return next == StatusRefunded
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentPix       PaymentMethod = "pix"
	PaymentDebitCard PaymentMethod = "debit-card"
)

func (m PaymentMethod) Known() bool {
	switch m {
	case PaymentCash, PaymentPix, PaymentDebitCard:
		return true
	}
	return false
}

type Order struct {
	ID            int64           `json:"id"`
	BuyerID       int64           `json:"buyer_id"`
	Status        Status          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	FinalizedAt   *time.Time      `json:"finalized_at,omitempty"`
}

type OrderLine struct {
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Bounds of the orders schema: quantity is an INT column and totals are DECIMAL(10,2).
const MaxLineQuantity = 9999

var MaxOrderTotal = decimal.RequireFromString("99999999.99")

// ComputeTotal is the sum of line subtotals plus the delivery fee, in currency precision.
func ComputeTotal(lines []OrderLine, fee decimal.Decimal) decimal.Decimal {
	total := fee
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

type DeliveryInfo struct {
	RecipientName string          `json:"recipient_name"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	District      string          `json:"district"`
	Fee           decimal.Decimal `json:"fee"`
}

type PaymentInfo struct {
	Method     PaymentMethod    `json:"method"`
	Amount     decimal.Decimal  `json:"amount"`
	Tendered   *decimal.Decimal `json:"tendered,omitempty"`
	Change     *decimal.Decimal `json:"change,omitempty"`
	CardLast4  string           `json:"card_last4,omitempty"`
	CardHolder string           `json:"card_holder,omitempty"`
	PaidAt     time.Time        `json:"paid_at"`
}

// CardLast4 strips separators from a card number and returns its last four digits.
func CardLast4(number string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidCardNumber
		}
	}
	// ASCII only from here, so byte length is the digit count.
	if len(digits) < 12 || len(digits) > 19 {
		return "", ErrInvalidCardNumber
	}
	return digits[len(digits)-4:], nil
}
