// Package requestcontext carries request-scoped values from middleware to
// services without importing net/http. Tests inject the same values:
//
//	ctx = requestcontext.WithTime(ctx, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
//	ctx = requestcontext.WithActor(ctx, domain.Actor{UserID: id, Role: domain.RoleStaff})
package requestcontext

import (
	"context"
	"time"

	"entrypass/pkg/domain"
)

type key int

const (
	actorKey key = iota
	clientIPKey
	userAgentKey
	deviceKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// Actor is the authenticated caller; anonymous requests yield the zero Actor.
func Actor(ctx context.Context) domain.Actor {
	return value[domain.Actor](ctx, actorKey)
}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ClientIP(ctx context.Context) string {
	return value[string](ctx, clientIPKey)
}

func UserAgent(ctx context.Context) string {
	return value[string](ctx, userAgentKey)
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// Device is the scanner label recorded on check-ins, e.g. "Chrome on Android".
func Device(ctx context.Context) string {
	return value[string](ctx, deviceKey)
}

func WithDevice(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, deviceKey, label)
}

func RequestID(ctx context.Context) string {
	return value[string](ctx, requestIDKey)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the request's pinned clock reading, or the wall clock outside a
// request (outbox relay, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
