// Package credential renders a registration's visit code as a QR image and
// keeps it in the blob store. A registration gets exactly one credential.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/sentinel"
	"entrypass/pkg/requestcontext"
)

const (
	payloadPrefix  = "entrypass:v1:"
	imageSize      = 256
	defaultTimeout = 5 * time.Second
	ContentType    = "image/png"
)

// Blobs is the image store.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// RefStore records the credential reference on the registration once.
type RefStore interface {
	SetCredentialRefIfEmpty(ctx context.Context, id domain.RegistrationID, ref string) (string, error)
}

type Issuer struct {
	blobs   Blobs
	refs    RefStore
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Issuer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithTimeout(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.timeout = d
		}
	}
}

func NewIssuer(blobs Blobs, refs RefStore, opts ...Option) *Issuer {
	i := &Issuer{blobs: blobs, refs: refs, timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Payload is the deterministic content encoded in the QR.
func Payload(code string) string {
	return payloadPrefix + code
}

// Key is the blob key, and the credential reference, for a code.
func Key(code string) string {
	return "credentials/" + code + ".png"
}

// Render draws the QR for a code as a PNG.
func Render(code string) ([]byte, error) {
	png, err := qrcode.Encode(Payload(code), qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// Issue renders and stores the credential and records its reference. A
// registration that already has a reference gets it back unchanged.
func (i *Issuer) Issue(ctx context.Context, reg *models.Registration) (string, error) {
	if reg.CredentialRef != "" {
		return reg.CredentialRef, nil
	}
	if _, err := i.store(ctx, reg.Code); err != nil {
		return "", err
	}
	ref, err := i.refs.SetCredentialRefIfEmpty(ctx, reg.ID, Key(reg.Code))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to record credential")
	}
	reg.CredentialRef = ref
	i.logger.InfoContext(ctx, "credential issued",
		"code", reg.Code,
		"ref", ref,
		"request_id", requestcontext.RequestID(ctx),
	)
	return ref, nil
}

// Open returns the PNG. Registrations whose issuance failed are issued now;
// a lost blob is re-rendered from the same payload.
func (i *Issuer) Open(ctx context.Context, reg *models.Registration) ([]byte, error) {
	if reg.CredentialRef == "" {
		if _, err := i.Issue(ctx, reg); err != nil {
			return nil, err
		}
	}

	data, err := i.withRetry(ctx, func(ctx context.Context) ([]byte, error) {
		return i.blobs.Get(ctx, reg.CredentialRef)
	})
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "credential store unavailable")
	}
	i.logger.WarnContext(ctx, "credential blob missing, re-rendering",
		"code", reg.Code,
		"request_id", requestcontext.RequestID(ctx),
	)
	return i.store(ctx, reg.Code)
}

func (i *Issuer) store(ctx context.Context, code string) ([]byte, error) {
	png, err := Render(code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render credential")
	}
	if _, err := i.withRetry(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, i.blobs.Put(ctx, Key(code), png)
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "credential store unavailable")
	}
	return png, nil
}

// withRetry bounds each blob call and retries once. Not-found is an answer,
// not a failure, and is never retried.
func (i *Issuer) withRetry(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, i.timeout)
		data, err := fn(callCtx)
		cancel()
		if err == nil || errors.Is(err, sentinel.ErrNotFound) {
			return data, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
