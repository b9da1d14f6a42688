package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"entrypass/internal/payment/gateway"
	"entrypass/internal/payment/handler/mocks"
	paymodels "entrypass/internal/payment/models"
	"entrypass/internal/payment/service"
	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

var staff = domain.Actor{UserID: domain.UserID(uuid.New()), Role: domain.RoleStaff}

func newRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterWebhook(r)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(requestcontext.WithActor(req.Context(), staff)))
			})
		})
		h.Register(r)
	})
	return r
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		result     *service.Result
		err        error
		wantStatus int
	}{
		{
			name:       "applied",
			result:     &service.Result{Code: "A1B2C3", Outcome: paymodels.OutcomeMarkedPaid, PaymentStatus: regmodels.StatusPaid},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unsupported event acknowledged",
			err:        fmt.Errorf("source.chargeable: %w", gateway.ErrUnsupportedEvent),
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "bad signature",
			err:        gateway.ErrInvalidSignature,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "lock held asks sender to retry",
			err:        dErrors.New(dErrors.CodeConflict, "reconciliation in progress"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown code",
			err:        dErrors.New(dErrors.CodeNotFound, "registration not found"),
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockService(ctrl)
			body := []byte(`{"data":{}}`)
			svc.EXPECT().HandleWebhook(gomock.Any(), body, "t=1,te=abc,li=").Return(tt.result, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/paymongo", bytes.NewReader(body))
			req.Header.Set(gateway.SignatureHeader, "t=1,te=abc,li=")
			rec := httptest.NewRecorder()
			newRouter(t, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestWebhookResponseBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().HandleWebhook(gomock.Any(), gomock.Any(), gomock.Any()).Return(&service.Result{
		Code: "A1B2C3", Outcome: paymodels.OutcomeAlreadyPaid, PaymentStatus: regmodels.StatusPaid, ProviderStatus: paymodels.ProviderPaid,
	}, nil)

	rec := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/paymongo", bytes.NewReader([]byte(`{}`))))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "already_paid", body["outcome"])
	assert.Equal(t, "PAID", body["payment_status"])
}

func TestPollPassesActorAndCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Poll(gomock.Any(), staff, "A1B2C3").Return(nil, dErrors.New(dErrors.CodeUpstream, "failed to query payment status"))

	rec := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/registrations/A1B2C3/payment-status", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestOpenCheckout(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().OpenCheckout(gomock.Any(), staff, "A1B2C3").Return(&paymodels.Record{
		Code: "A1B2C3", CheckoutRef: "link_1", CheckoutURL: "https://pm.link/link_1",
	}, nil)

	rec := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/registrations/A1B2C3/checkout", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body checkoutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "https://pm.link/link_1", body.CheckoutURL)
}

func TestMarkPaid(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().MarkCashPaid(gomock.Any(), staff, "D4E5F6").Return(&regmodels.Registration{
		Code: "D4E5F6", PaymentStatus: regmodels.StatusPaid,
	}, nil)
	svc.EXPECT().MarkCashPaid(gomock.Any(), staff, "A1B2C3").
		Return(nil, dErrors.New(dErrors.CodeValidation, "online registrations are settled through reconciliation"))

	router := newRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/registrations/D4E5F6/mark-paid", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/registrations/A1B2C3/mark-paid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPayments(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Payments(gomock.Any(), staff, "A1B2C3").Return([]*paymodels.Record{
		{CheckoutRef: "link_2", ProviderStatus: paymodels.ProviderPaid, Amount: regmodels.Pesos(300)},
		{CheckoutRef: "link_1", ProviderStatus: paymodels.ProviderExpired, Amount: regmodels.Pesos(300)},
	}, nil)

	rec := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/registrations/A1B2C3/payments", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Payments []paymentResponse `json:"payments"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Payments, 2)
	assert.Equal(t, regmodels.Pesos(300), body.Payments[0].Amount)
}
