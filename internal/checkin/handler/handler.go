package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"entrypass/internal/checkin/models"
	"entrypass/internal/checkin/service"
	regmodels "entrypass/internal/registration/models"
	regservice "entrypass/internal/registration/service"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/httputil"
	"entrypass/pkg/requestcontext"
)

type Service interface {
	CheckIn(ctx context.Context, actor domain.Actor, code, device string) (*service.Result, error)
	WalkIn(ctx context.Context, actor domain.Actor, req regservice.RegisterRequest, device string) (*service.WalkInResult, error)
	History(ctx context.Context, actor domain.Actor, code string) ([]*models.Entry, error)
}

type Handler struct {
	gate   Service
	logger *slog.Logger
}

func New(gate Service, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

// Register mounts the gate routes. The scanner device label comes from the
// device middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations/{code}/checkins", h.handleCheckIn)
	r.Get("/registrations/{code}/checkins", h.handleHistory)
	r.Post("/walk-ins", h.handleWalkIn)
}

type entryResponse struct {
	VisitDate string    `json:"visit_date"`
	StaffID   string    `json:"staff_id"`
	Device    string    `json:"device,omitempty"`
	CreatedAt time.Time `json:"checked_in_at"`
}

type checkInResponse struct {
	Code          string           `json:"code"`
	GroupSize     int              `json:"group_size"`
	PaymentStatus string           `json:"payment_status"`
	TotalFee      regmodels.Amount `json:"total_fee"`
	Entry         entryResponse    `json:"entry"`
}

type walkInResponse struct {
	checkInResponse
	PaymentMethod string             `json:"payment_method"`
	CredentialRef string             `json:"credential_ref,omitempty"`
	Members       []regmodels.Member `json:"members"`
	Warnings      []string           `json:"warnings"`
}

func toEntry(e *models.Entry) entryResponse {
	return entryResponse{
		VisitDate: e.VisitDate,
		StaffID:   e.StaffID.String(),
		Device:    e.Device,
		CreatedAt: e.CreatedAt,
	}
}

func toCheckIn(reg *regmodels.Registration, e *models.Entry) checkInResponse {
	return checkInResponse{
		Code:          reg.Code,
		GroupSize:     reg.GroupSize,
		PaymentStatus: string(reg.PaymentStatus),
		TotalFee:      reg.TotalFee,
		Entry:         toEntry(e),
	}
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.gate.CheckIn(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"), requestcontext.Device(ctx))
	if err != nil {
		h.writeError(ctx, w, "check-in failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCheckIn(result.Registration, result.Entry))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.gate.History(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, "check-in history failed", err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntry(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"checkins": out})
}

func (h *Handler) handleWalkIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req regservice.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid walk-in request", err)
		return
	}
	result, err := h.gate.WalkIn(ctx, requestcontext.Actor(ctx), req, requestcontext.Device(ctx))
	if err != nil {
		h.writeError(ctx, w, "walk-in failed", err)
		return
	}

	resp := walkInResponse{
		checkInResponse: toCheckIn(result.Registration, result.Entry),
		PaymentMethod:   string(result.Registration.PaymentMethod),
		CredentialRef:   result.Registration.CredentialRef,
		Members:         result.Members,
		Warnings:        []string{},
	}
	if result.CredentialError != "" {
		resp.Warnings = append(resp.Warnings, "credential pending: "+result.CredentialError)
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
