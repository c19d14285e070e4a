package usecase

import (
	"encoding/json"
	"strconv"
	"time"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

const (
	EventOrderFinalized     = "order.finalized"
	EventOrderStatusChanged = "order.status_changed"
)

// OutboxEvent is written in the same transaction as the state change it describes.
// Traceparent is filled by the store from the context.
type OutboxEvent struct {
	ID          int64
	EventID     string
	AggregateID string
	Type        string
	Payload     []byte
	Traceparent string
}

type OrderFinalizedEvent struct {
	OrderID     int64                `json:"order_id"`
	BuyerID     int64                `json:"buyer_id"`
	Total       string               `json:"total"`
	Method      domain.PaymentMethod `json:"payment_method"`
	Lines       int                  `json:"lines"`
	Delivery    bool                 `json:"delivery"`
	FinalizedAt time.Time            `json:"finalized_at"`
}

type OrderStatusChangedEvent struct {
	OrderID int64         `json:"order_id"`
	From    domain.Status `json:"from"`
	To      domain.Status `json:"to"`
	Reason  string        `json:"reason,omitempty"`
	At      time.Time     `json:"at"`
}

// Sent by the back office on Kafka
type OrderStatusCommandMsg struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"` // Cancelled | Refunded
	Reason  string `json:"reason"`
}

const (
	NotifyPasswordReset = "password_reset"
	NotifyOrderReceipt  = "order_receipt"
)

// Notification is the command consumed by the e-mail worker.
type Notification struct {
	Kind  string            `json:"kind"`
	To    string            `json:"to"`
	Name  string            `json:"name"`
	Data  map[string]string `json:"data"`
	Issue time.Time         `json:"issued_at"`
}

func newOutboxEvent(eventID, typ string, orderID int64, payload any) (OutboxEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		EventID:     eventID,
		AggregateID: strconv.FormatInt(orderID, 10),
		Type:        typ,
		Payload:     b,
	}, nil
}
