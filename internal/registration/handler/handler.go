package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"entrypass/internal/credential"
	"entrypass/internal/registration/fee"
	"entrypass/internal/registration/models"
	"entrypass/internal/registration/service"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/httputil"
	"entrypass/pkg/requestcontext"
)

// Service is the registration surface the handler drives.
type Service interface {
	Register(ctx context.Context, actor domain.Actor, req service.RegisterRequest) (*service.Result, error)
	Get(ctx context.Context, actor domain.Actor, code string) (*service.Details, error)
	ListMine(ctx context.Context, actor domain.Actor) ([]*models.Registration, error)
	Credential(ctx context.Context, actor domain.Actor, code string) ([]byte, error)
	ActiveFee(ctx context.Context) (fee.Active, error)
	SetFee(ctx context.Context, actor domain.Actor, amount models.Amount, enabled bool) (fee.Active, error)
}

type Handler struct {
	registrations Service
	logger        *slog.Logger
}

func New(registrations Service, logger *slog.Logger) *Handler {
	return &Handler{registrations: registrations, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations", h.handleRegister)
	r.Get("/registrations", h.handleListMine)
	r.Get("/registrations/{code}", h.handleGet)
	r.Get("/registrations/{code}/credential", h.handleCredential)
}

// RegisterAdmin mounts fee configuration. Callers guard it with the admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/fee", h.handleGetFee)
	r.Put("/admin/fee", h.handleSetFee)
}

type registrationResponse struct {
	Code          string          `json:"code"`
	GroupSize     int             `json:"group_size"`
	PerPersonFee  models.Amount   `json:"per_person_fee"`
	TotalFee      models.Amount   `json:"total_fee"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	CredentialRef string          `json:"credential_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Members       []models.Member `json:"members,omitempty"`
}

type registerResponse struct {
	registrationResponse
	CheckoutURL string   `json:"checkout_url,omitempty"`
	Warnings    []string `json:"warnings"`
}

type setFeeRequest struct {
	AmountPerPerson models.Amount `json:"amount_per_person"`
	Enabled         bool          `json:"enabled"`
}

func toResponse(reg *models.Registration, members []models.Member) registrationResponse {
	return registrationResponse{
		Code:          reg.Code,
		GroupSize:     reg.GroupSize,
		PerPersonFee:  reg.PerPersonFee,
		TotalFee:      reg.TotalFee,
		PaymentMethod: string(reg.PaymentMethod),
		PaymentStatus: string(reg.PaymentStatus),
		CredentialRef: reg.CredentialRef,
		CreatedAt:     reg.CreatedAt,
		PaidAt:        reg.PaidAt,
		Members:       members,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid registration request", err)
		return
	}

	result, err := h.registrations.Register(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		h.writeError(ctx, w, "registration failed", err)
		return
	}

	resp := registerResponse{
		registrationResponse: toResponse(result.Registration, result.Members),
		CheckoutURL:          result.CheckoutURL,
		Warnings:             []string{},
	}
	if result.CheckoutError != "" {
		resp.Warnings = append(resp.Warnings, "checkout unavailable: "+result.CheckoutError)
	}
	if result.CredentialError != "" {
		resp.Warnings = append(resp.Warnings, "credential pending: "+result.CredentialError)
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regs, err := h.registrations.ListMine(ctx, requestcontext.Actor(ctx))
	if err != nil {
		h.writeError(ctx, w, "list registrations failed", err)
		return
	}
	out := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toResponse(reg, nil))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registrations": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	details, err := h.registrations.Get(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "get registration failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(details.Registration, details.Members))
}

func (h *Handler) handleCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	png, err := h.registrations.Credential(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "credential fetch failed", err)
		return
	}
	w.Header().Set("Content-Type", credential.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) handleGetFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	active, err := h.registrations.ActiveFee(ctx)
	if err != nil {
		h.writeError(ctx, w, "get fee failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, active)
}

func (h *Handler) handleSetFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setFeeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid fee request", err)
		return
	}
	active, err := h.registrations.SetFee(ctx, requestcontext.Actor(ctx), req.AmountPerPerson, req.Enabled)
	if err != nil {
		h.writeError(ctx, w, "set fee failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, active)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
