package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hsmazur/Taberna3/internal/adapter/outbox"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

const maxOutboxRetries = 5

// AppendOutbox writes the event in the caller's transaction, stamped with the
// traceparent of ctx so the relay can continue the trace.
func (s *mysqlOrderStore) AppendOutbox(ctx context.Context, ev usecase.OutboxEvent) error {
	if ev.Traceparent == "" {
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		ev.Traceparent = carrier.Get("traceparent")
	}
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO outbox (event_id, aggregate_id, type, payload, traceparent, status, created_at)
VALUES (?, ?, ?, ?, ?, 'pending', ?)`,
		ev.EventID, ev.AggregateID, ev.Type, ev.Payload, ev.Traceparent, time.Now().UTC())
	if err != nil {
		return storageErr("append outbox", err)
	}
	return nil
}

// MySQLOutboxRepo is the relay side of the outbox table.
type MySQLOutboxRepo struct{ db *sqlx.DB }

func NewMySQLOutboxRepo(db *sqlx.DB) *MySQLOutboxRepo { return &MySQLOutboxRepo{db: db} }

type outboxRow struct {
	ID          int64     `db:"id"`
	EventID     string    `db:"event_id"`
	AggregateID string    `db:"aggregate_id"`
	Type        string    `db:"type"`
	Payload     []byte    `db:"payload"`
	Traceparent string    `db:"traceparent"`
	RetryCount  int       `db:"retry_count"`
	CreatedAt   time.Time `db:"created_at"`
}

// LockBatch claims up to limit pending events (or events whose lease expired)
// for this relay. Concurrent relays skip each other's rows.
func (r *MySQLOutboxRepo) LockBatch(ctx context.Context, limit int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("outbox begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var rows []outboxRow
	err = tx.SelectContext(ctx, &rows, `
SELECT id, event_id, aggregate_id, type, payload, traceparent, retry_count, created_at
FROM outbox
WHERE status = 'pending' OR (status = 'in_progress' AND locked_until < ?)
ORDER BY id
LIMIT ?
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, storageErr("outbox lock batch", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	q, args, err := sqlx.In(`UPDATE outbox SET status = 'in_progress', locked_until = ? WHERE id IN (?)`, now.Add(lease), ids)
	if err != nil {
		return nil, storageErr("outbox lock batch", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return nil, storageErr("outbox lock batch", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("outbox commit", err)
	}

	out := make([]outbox.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, outbox.Event{
			ID:          row.ID,
			EventID:     row.EventID,
			AggregateID: row.AggregateID,
			Type:        row.Type,
			Payload:     row.Payload,
			Traceparent: row.Traceparent,
			RetryCount:  row.RetryCount,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}

func (r *MySQLOutboxRepo) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE outbox SET status = 'sent', sent_at = ?, locked_until = NULL WHERE id IN (?)`, time.Now().UTC(), ids)
	if err != nil {
		return storageErr("outbox mark sent", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...); err != nil {
		return storageErr("outbox mark sent", err)
	}
	return nil
}

func (r *MySQLOutboxRepo) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE outbox SET status = 'pending', locked_until = NULL WHERE id IN (?) AND status = 'in_progress'`, ids)
	if err != nil {
		return storageErr("outbox release", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...); err != nil {
		return storageErr("outbox release", err)
	}
	return nil
}

// MarkFailed returns the event to pending for another attempt, or parks it as
// failed once it has been retried maxOutboxRetries times.
func (r *MySQLOutboxRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE outbox
SET retry_count = retry_count + 1,
    status = IF(retry_count >= ?, 'failed', 'pending'),
    last_error = ?,
    locked_until = NULL
WHERE id = ?`, maxOutboxRetries, errMsg, id)
	if err != nil {
		return storageErr("outbox mark failed", err)
	}
	return nil
}

var _ outbox.Store = (*MySQLOutboxRepo)(nil)
