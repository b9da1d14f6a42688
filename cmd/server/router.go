package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	checkinhandler "entrypass/internal/checkin/handler"
	payhandler "entrypass/internal/payment/handler"
	"entrypass/internal/platform/config"
	ratemodels "entrypass/internal/ratelimit/models"
	reghandler "entrypass/internal/registration/handler"
	"entrypass/pkg/domain"
	"entrypass/pkg/platform/httputil"
	"entrypass/pkg/platform/middleware/auth"
	"entrypass/pkg/platform/middleware/device"
	"entrypass/pkg/platform/middleware/metadata"
	"entrypass/pkg/platform/middleware/request"
	"entrypass/pkg/platform/middleware/requesttime"
)

// Router mounts the public probes, the provider webhook and the
// authenticated /v1 API.
func (a *app) Router(cfg *config.Config) http.Handler {
	payments := payhandler.New(a.payments, a.logger)
	registrations := reghandler.New(a.registrations, a.logger)
	gate := checkinhandler.New(a.gate, a.logger)

	r := chi.NewRouter()
	r.Use(request.Recovery(a.logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(a.logger))
	r.Use(request.Timeout(cfg.Server.RequestTimeout))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(a.httpMetrics.Middleware)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(a.limiter.PerClientIP(ratemodels.ClassWebhook))
		payments.RegisterWebhook(r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(a.validator, a.logger))
		r.Use(a.limiter.PerActor(ratemodels.ClassAPI))
		r.Use(request.ContentTypeJSON)
		registrations.Register(r)
		payments.Register(r)
		gate.Register(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(a.logger, domain.RoleAdmin))
			registrations.RegisterAdmin(r)
		})
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Health(r.Context()); err != nil {
		a.logger.WarnContext(r.Context(), "health check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
