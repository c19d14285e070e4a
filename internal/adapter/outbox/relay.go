package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		batchSize: batchSize,
		interval:  interval,
		lease:     30 * time.Second,
	}
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping")
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.Error("relay flush error", "err", err)
			}
		}
	}
}

// Flush publishes one batch and returns how many events were sent.
// Once an event of an order fails, the order's later events in the batch are
// handed back unsent so the next flush retries them after it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(events))
	var held []int64
	blocked := map[string]bool{}
	for _, e := range events {
		if blocked[e.AggregateID] {
			held = append(held, e.ID)
			continue
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			blocked[e.AggregateID] = true
			if mErr := r.store.MarkFailed(ctx, e.ID, err.Error()); mErr != nil {
				r.log.Error("relay mark failed error", "event_id", e.EventID, "err", mErr)
			}
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(held) > 0 {
		r.log.Warn("relay holding events behind a failed one", "count", len(held))
		if err := r.store.Release(ctx, held); err != nil {
			// the lease expires on its own
			r.log.Error("relay release error", "err", err)
		}
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
