// Package middleware throttles API callers by identity and the payment
// webhook by client IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"entrypass/internal/ratelimit/metrics"
	"entrypass/internal/ratelimit/models"
	"entrypass/pkg/platform/httputil"
	"entrypass/pkg/requestcontext"
)

type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

type Middleware struct {
	store   Store
	limits  map[models.Class]models.Limit
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

func WithLimit(class models.Class, limit models.Limit) Option {
	return func(mw *Middleware) {
		mw.limits[class] = limit
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limits: make(map[models.Class]models.Limit),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerActor limits authenticated callers by user ID. It must run after the
// auth middleware.
func (m *Middleware) PerActor(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(r *http.Request) string {
		return "user:" + requestcontext.Actor(r.Context()).UserID.String()
	})
}

// PerClientIP limits unauthenticated callers by client address.
func (m *Middleware) PerClientIP(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(r *http.Request) string {
		return "ip:" + requestcontext.ClientIP(r.Context())
	})
}

func (m *Middleware) limit(class models.Class, keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	limit := m.limits[class]
	return func(next http.Handler) http.Handler {
		if !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result, err := m.store.Allow(ctx, string(class)+":"+keyOf(r), limit)
			if err != nil {
				// fail open: a store outage must not close the gate
				m.logger.WarnContext(ctx, "rate limit check failed",
					"error", err,
					"class", string(class),
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.metrics != nil {
					m.metrics.IncStoreError()
				}
				next.ServeHTTP(w, r)
				return
			}
			if m.metrics != nil {
				m.metrics.IncDecision(string(class), result.Allowed)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", string(class),
					"request_id", requestcontext.RequestID(ctx),
				)
				retry := result.RetryAfter(time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":             "rate_limit_exceeded",
					"error_description": "too many requests, try again later",
					"retry_after":       retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
