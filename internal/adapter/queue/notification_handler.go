package queue

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

// EmailSender delivers one rendered message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// NotificationHandler renders notification commands and hands them to an EmailSender.
type NotificationHandler struct {
	sender EmailSender
	log    *slog.Logger
}

func NewNotificationHandler(sender EmailSender, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{sender: sender, log: log}
}

// HandleNotification is intended to be used with the JSON adapter (queue.JSONHandler[usecase.Notification]).
func (h *NotificationHandler) HandleNotification(ctx context.Context, n usecase.Notification) error {
	if n.To == "" {
		return fmt.Errorf("%w: notification without recipient", ErrPoison)
	}
	subject, text, html, err := Render(n)
	if err != nil {
		return err
	}
	if err := h.sender.Send(ctx, n.To, subject, text, html); err != nil {
		return err
	}
	h.log.Info("notification sent", "kind", n.Kind, "to", n.To)
	return nil
}

// Render builds the subject and bodies for a notification kind.
func Render(n usecase.Notification) (subject, text, htmlBody string, err error) {
	esc := html.EscapeString
	switch n.Kind {
	case usecase.NotifyPasswordReset:
		subject = "Your password recovery code"
		text = fmt.Sprintf("Hello %s,\n\nYour recovery code is %s. It expires at %s.\n\nIf you did not ask for it, ignore this message.",
			n.Name, n.Data["code"], n.Data["expires_at"])
		htmlBody = fmt.Sprintf("<p>Hello %s,</p><p>Your recovery code is <strong>%s</strong>. It expires at %s.</p>",
			esc(n.Name), esc(n.Data["code"]), esc(n.Data["expires_at"]))
	case usecase.NotifyOrderReceipt:
		subject = fmt.Sprintf("Order #%s confirmed", n.Data["order_id"])
		text = fmt.Sprintf("Hello %s,\n\nYour order #%s was confirmed.\nItems: %s\nTotal: %s\nPayment: %s\n",
			n.Name, n.Data["order_id"], n.Data["lines"], n.Data["total"], n.Data["method"])
		htmlBody = fmt.Sprintf("<p>Hello %s,</p><p>Your order #%s was confirmed.</p><ul><li>Items: %s</li><li>Total: %s</li><li>Payment: %s</li></ul>",
			esc(n.Name), esc(n.Data["order_id"]), esc(n.Data["lines"]), esc(n.Data["total"]), esc(n.Data["method"]))
	default:
		err = fmt.Errorf("%w: unknown notification kind %q", ErrPoison, n.Kind)
	}
	return subject, text, htmlBody, err
}
