package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}
type memKey struct{}

var txKey = ctxKey{}

// Runner opens a transactional boundary. Stores pick the transaction up from the
// context passed to fn, so calls made with that context join it.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// InMemoryRunner serializes transactions behind one lock. Nested calls on the
// same context join the outer transaction instead of deadlocking. There is no
// rollback: in-memory stores must validate before they mutate.
type InMemoryRunner struct {
	mu sync.Mutex
}

func NewInMemoryRunner() *InMemoryRunner {
	return &InMemoryRunner{}
}

func (r *InMemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if held, _ := ctx.Value(memKey{}).(*InMemoryRunner); held == r {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, memKey{}, r))
}
