package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	paymodels "entrypass/internal/payment/models"
	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/platform/circuit"
	"entrypass/pkg/requestcontext"
)

const (
	defaultBaseURL = "https://api.paymongo.com"
	defaultTimeout = 10 * time.Second
	maxAttempts    = 2
	maxRespBytes   = 1 << 20
)

// PayMongo talks to the Links API with the secret key as basic-auth user.
type PayMongo struct {
	baseURL   string
	secretKey string
	client    *http.Client
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

type Option func(*PayMongo)

func WithHTTPClient(c *http.Client) Option {
	return func(p *PayMongo) {
		p.client = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *PayMongo) {
		p.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *PayMongo) {
		p.breaker = b
	}
}

func NewPayMongo(baseURL, secretKey string, timeout time.Duration, opts ...Option) *PayMongo {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	p := &PayMongo{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		breaker:   circuit.New("paymongo", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type linkAttributes struct {
	Amount          int64  `json:"amount"`
	Description     string `json:"description,omitempty"`
	Remarks         string `json:"remarks,omitempty"`
	CheckoutURL     string `json:"checkout_url,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Status          string `json:"status,omitempty"`
}

type linkResource struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes linkAttributes `json:"attributes"`
}

type linkEnvelope struct {
	Data linkResource `json:"data"`
}

type createLinkRequest struct {
	Data struct {
		Attributes linkAttributes `json:"attributes"`
	} `json:"data"`
}

func (p *PayMongo) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	var body createLinkRequest
	body.Data.Attributes = linkAttributes{
		Amount:      int64(req.Amount),
		Description: req.Description,
		Remarks:     req.Code,
	}
	var out linkEnvelope
	if err := p.do(ctx, http.MethodPost, "/v1/links", body, &out); err != nil {
		return nil, upstream(err, "failed to open checkout")
	}
	if out.Data.ID == "" || out.Data.Attributes.CheckoutURL == "" {
		return nil, upstream(&Error{Category: CategoryMalformed, Err: errors.New("link response missing id or checkout_url")}, "failed to open checkout")
	}
	return &Checkout{
		Ref:    out.Data.ID,
		URL:    out.Data.Attributes.CheckoutURL,
		Status: normalizeStatus(out.Data.Attributes.Status),
	}, nil
}

func (p *PayMongo) QueryStatus(ctx context.Context, checkoutRef string) (*Status, error) {
	if checkoutRef == "" {
		return nil, upstream(&Error{Category: CategoryRejected, Err: errors.New("checkout reference is empty")}, "failed to query payment status")
	}
	var out linkEnvelope
	if err := p.do(ctx, http.MethodGet, "/v1/links/"+url.PathEscape(checkoutRef), nil, &out); err != nil {
		return nil, upstream(err, "failed to query payment status")
	}
	return &Status{
		Ref:    out.Data.ID,
		Code:   out.Data.Attributes.Remarks,
		Status: normalizeStatus(out.Data.Attributes.Status),
		Amount: regmodels.Amount(out.Data.Attributes.Amount),
	}, nil
}

func normalizeStatus(s string) paymodels.ProviderStatus {
	switch strings.ToLower(s) {
	case "paid", "succeeded":
		return paymodels.ProviderPaid
	case "failed":
		return paymodels.ProviderFailed
	case "expired", "archived":
		return paymodels.ProviderExpired
	default:
		return paymodels.ProviderUnpaid
	}
}

// do performs one call with at most one retry on retryable failures.
func (p *PayMongo) do(ctx context.Context, method, path string, in, out any) *Error {
	if !p.breaker.Allow() {
		return &Error{Category: CategoryCircuitOpen, Err: errors.New("payment gateway circuit open")}
	}

	var lastErr *Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = p.once(ctx, method, path, in, out)
		if lastErr == nil {
			p.breaker.RecordSuccess()
			return nil
		}
		if !lastErr.Retryable || ctx.Err() != nil {
			break
		}
		p.logger.WarnContext(ctx, "paymongo call failed, retrying",
			"method", method,
			"path", path,
			"category", lastErr.Category,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if lastErr.Retryable {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.ErrorContext(ctx, "paymongo circuit opened", "breaker", p.breaker.Name())
		}
	}
	return lastErr
}

func (p *PayMongo) once(ctx context.Context, method, path string, in, out any) *Error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &Error{Category: CategoryMalformed, Err: err}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return &Error{Category: CategoryMalformed, Err: err}
	}
	req.SetBasicAuth(p.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRespBytes))
	if err != nil {
		return &Error{Category: CategoryUnavailable, Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Category: CategoryAuth, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{Category: CategoryUnavailable, StatusCode: resp.StatusCode, Retryable: true, Err: errors.New(snippet(raw))}
	case resp.StatusCode >= 400:
		return &Error{Category: CategoryRejected, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Category: CategoryMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func classifyTransport(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Category: CategoryTimeout, Retryable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Category: CategoryTimeout, Err: err}
	}
	return &Error{Category: CategoryUnavailable, Retryable: true, Err: err}
}

func snippet(raw []byte) string {
	const limit = 256
	if len(raw) > limit {
		return string(raw[:limit])
	}
	return string(raw)
}
