package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"entrypass/internal/payment/gateway"
	paymodels "entrypass/internal/payment/models"
	"entrypass/internal/payment/service"
	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/httputil"
	"entrypass/pkg/requestcontext"
)

const maxWebhookBytes = 64 << 10

// Service is the reconciliation surface the handler drives.
type Service interface {
	OpenCheckout(ctx context.Context, actor domain.Actor, code string) (*paymodels.Record, error)
	Payments(ctx context.Context, actor domain.Actor, code string) ([]*paymodels.Record, error)
	Poll(ctx context.Context, actor domain.Actor, code string) (*service.Result, error)
	MarkCashPaid(ctx context.Context, actor domain.Actor, code string) (*regmodels.Registration, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*service.Result, error)
}

type Handler struct {
	payments Service
	logger   *slog.Logger
}

func New(payments Service, logger *slog.Logger) *Handler {
	return &Handler{payments: payments, logger: logger}
}

// Register mounts the authenticated payment routes. Staff-only routes are
// enforced by the service.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations/{code}/checkout", h.handleOpenCheckout)
	r.Get("/registrations/{code}/payments", h.handleListPayments)
	r.Post("/registrations/{code}/payment-status", h.handlePoll)
	r.Post("/registrations/{code}/mark-paid", h.handleMarkPaid)
}

// RegisterWebhook mounts the provider callback, which authenticates by
// signature rather than bearer token.
func (h *Handler) RegisterWebhook(r chi.Router) {
	r.Post("/webhooks/paymongo", h.handleWebhook)
}

type checkoutResponse struct {
	Code        string `json:"code"`
	CheckoutRef string `json:"checkout_ref"`
	CheckoutURL string `json:"checkout_url"`
}

type paymentResponse struct {
	CheckoutRef    string           `json:"checkout_ref"`
	CheckoutURL    string           `json:"checkout_url,omitempty"`
	ProviderStatus string           `json:"provider_status"`
	Amount         regmodels.Amount `json:"amount"`
	LastSource     string           `json:"last_source"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type reconcileResponse struct {
	Code           string `json:"code"`
	Outcome        string `json:"outcome"`
	PaymentStatus  string `json:"payment_status"`
	ProviderStatus string `json:"provider_status,omitempty"`
}

type markPaidResponse struct {
	Code          string     `json:"code"`
	PaymentStatus string     `json:"payment_status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func (h *Handler) handleOpenCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.payments.OpenCheckout(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "open checkout failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, checkoutResponse{
		Code:        rec.Code,
		CheckoutRef: rec.CheckoutRef,
		CheckoutURL: rec.CheckoutURL,
	})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.payments.Payments(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "list payments failed", err)
		return
	}
	out := make([]paymentResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, paymentResponse{
			CheckoutRef:    rec.CheckoutRef,
			CheckoutURL:    rec.CheckoutURL,
			ProviderStatus: string(rec.ProviderStatus),
			Amount:         rec.Amount,
			LastSource:     string(rec.LastSource),
			CreatedAt:      rec.CreatedAt,
			UpdatedAt:      rec.UpdatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.payments.Poll(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "payment poll failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReconcileResponse(result))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reg, err := h.payments.MarkCashPaid(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "mark paid failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, markPaidResponse{
		Code:          reg.Code,
		PaymentStatus: string(reg.PaymentStatus),
		PaidAt:        reg.PaidAt,
	})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read webhook body"))
		return
	}

	result, err := h.payments.HandleWebhook(ctx, body, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupportedEvent) {
			httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
			return
		}
		h.writeError(ctx, w, "webhook rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReconcileResponse(result))
}

func toReconcileResponse(result *service.Result) reconcileResponse {
	return reconcileResponse{
		Code:           result.Code,
		Outcome:        string(result.Outcome),
		PaymentStatus:  string(result.PaymentStatus),
		ProviderStatus: string(result.ProviderStatus),
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
