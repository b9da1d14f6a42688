// Package relay moves committed outbox events to the publisher.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"entrypass/internal/events"
	eventmetrics "entrypass/internal/events/metrics"
	"entrypass/pkg/platform/tx"
)

type Store interface {
	Pending(ctx context.Context, limit int) ([]events.Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, batch []events.Event) error
}

// Relay polls the outbox. Delivery is at-least-once: a crash between publish
// and mark republishes the batch, and consumers dedupe on event_id.
type Relay struct {
	store     Store
	publisher Publisher
	tx        tx.Runner
	interval  time.Duration
	batch     int
	logger    *slog.Logger
	metrics   *eventmetrics.Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *eventmetrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func New(store Store, publisher Publisher, runner tx.Runner, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		tx:        runner,
		interval:  2 * time.Second,
		batch:     100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and reports how many events were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	batchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var published int
	err := r.tx.RunInTx(batchCtx, func(txCtx context.Context) error {
		pending, err := r.store.Pending(txCtx, r.batch)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		if err := r.publisher.Publish(txCtx, pending); err != nil {
			if r.metrics != nil {
				r.metrics.IncPublishFailures()
			}
			return err
		}
		ids := make([]uuid.UUID, len(pending))
		for i, e := range pending {
			ids[i] = e.ID
		}
		if err := r.store.MarkPublished(txCtx, ids, time.Now()); err != nil {
			return err
		}
		published = len(pending)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if r.metrics != nil && published > 0 {
		r.metrics.AddPublished(published)
	}
	return published, nil
}
