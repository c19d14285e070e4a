package kafka

import (
	"context"
	"errors"
	"log/slog"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID int64, to domain.Status, reason string) (*domain.Order, error)
}

// StatusCommandHandler applies back-office status commands (cancel, refund).
// Commands that can never apply are logged and skipped; only storage
// failures are returned for retry.
type StatusCommandHandler struct {
	orders StatusUpdater
	log    *slog.Logger
}

func NewStatusCommandHandler(orders StatusUpdater, log *slog.Logger) *StatusCommandHandler {
	return &StatusCommandHandler{orders: orders, log: log}
}

func (h *StatusCommandHandler) Handle(ctx context.Context, msg usecase.OrderStatusCommandMsg) error {
	to, ok := domain.ParseStatus(msg.Status)
	if !ok {
		h.log.Warn("status command skipped", "order_id", msg.OrderID, "status", msg.Status, "err", "unknown status")
		return nil
	}
	o, err := h.orders.UpdateStatus(ctx, msg.OrderID, to, msg.Reason)
	switch {
	case err == nil:
		h.log.Info("status command applied", "order_id", o.ID, "status", o.Status)
		return nil
	case usecase.IsStorage(err):
		return err
	case errors.Is(err, usecase.ErrNotFound), errors.Is(err, usecase.ErrOrderNotMutable):
		h.log.Warn("status command skipped", "order_id", msg.OrderID, "status", msg.Status, "err", err)
		return nil
	default:
		return err
	}
}
