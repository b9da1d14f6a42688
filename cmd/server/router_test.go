package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "entrypass/internal/jwt_token"
	"entrypass/internal/platform/config"
	"entrypass/pkg/domain"
	"entrypass/pkg/testutil"
)

const testSigningKey = "router-test-signing-key"

var (
	routerOnce sync.Once
	router     http.Handler
	routerErr  error
)

// testRouter builds the in-memory app once; metric collectors register
// globally and cannot be registered twice.
func testRouter(t *testing.T) http.Handler {
	t.Helper()
	routerOnce.Do(func() {
		cfg := &config.Config{
			Server:   config.Server{RequestTimeout: 30 * time.Second},
			Kafka:    config.KafkaConfig{RelayInterval: time.Second, RelayBatch: 10},
			PayMongo: config.PayMongoConfig{BaseURL: "http://127.0.0.1:0", Timeout: time.Second},
			Fee:      config.FeeConfig{MinOnlineAmount: 10000, MaxGroupSize: 50},
			Auth:     config.AuthConfig{JWTSigningKey: testSigningKey, Audience: "entrypass"},
			Venue:    config.VenueConfig{TimeZone: "Asia/Manila", DomesticCountry: "Philippines"},
		}
		var a *app
		a, routerErr = newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if routerErr == nil {
			router = a.Router(cfg)
		}
	})
	require.NoError(t, routerErr)
	return router
}

func token(t *testing.T, role domain.Role) string {
	t.Helper()
	tok, err := jwttoken.NewJWTService(testSigningKey, "", "entrypass").GenerateAccessToken(uuid.New(), role, time.Hour)
	require.NoError(t, err)
	return tok
}

func call(t *testing.T, h http.Handler, method, path, tok string, body any) *http.Response {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	if tok != "" {
		testutil.WithBearer(req, tok)
	}
	return testutil.DoRequest(h, req).Result()
}

func TestHealthAndMetrics(t *testing.T) {
	h := testRouter(t)

	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONField(t, rr, "status", "ok")

	rr = testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "entrypass_")
}

func TestRegistrationToGateFlow(t *testing.T) {
	h := testRouter(t)
	admin := token(t, domain.RoleAdmin)
	staff := token(t, domain.RoleStaff)
	visitor := token(t, domain.RoleVisitor)

	testutil.Given(t, "an unauthenticated caller", func(t *testing.T) {
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/v1/registrations"))
		testutil.AssertErrorCode(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	testutil.When(t, "a visitor tries to change the fee", func(t *testing.T) {
		resp := call(t, h, http.MethodPut, "/v1/admin/fee", visitor, map[string]any{"amount_per_person": "50.00", "enabled": true})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	testutil.When(t, "an admin enables a 50.00 fee", func(t *testing.T) {
		resp := call(t, h, http.MethodPut, "/v1/admin/fee", admin, map[string]any{"amount_per_person": "50.00", "enabled": true})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	var code string
	testutil.When(t, "a visitor registers a group of three paying cash", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/registrations", map[string]any{
			"payment_method": "CASH",
			"members": []map[string]any{
				{"name": "Ana", "age": 31, "sex": "female", "municipality": "Coron", "province": "Palawan"},
				{"name": "Ben", "age": 33, "sex": "male", "municipality": "Coron", "province": "Palawan"},
				{"name": "Kenji", "age": 40, "sex": "male", "is_foreign": true, "country": "Japan"},
			},
		})
		rr := testutil.DoRequest(h, testutil.WithBearer(req, visitor))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		got := testutil.DecodeJSON[struct {
			Code          string `json:"code"`
			TotalFee      string `json:"total_fee"`
			PaymentStatus string `json:"payment_status"`
		}](t, rr)
		assert.Equal(t, "150.00", got.TotalFee)
		assert.Equal(t, "UNPAID", got.PaymentStatus)
		assert.Len(t, got.Code, 6)
		code = got.Code
	})
	require.NotEmpty(t, code)

	testutil.Then(t, "the gate refuses entry until the cash is collected", func(t *testing.T) {
		resp := call(t, h, http.MethodPost, "/v1/registrations/"+code+"/checkins", staff, nil)
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

		resp = call(t, h, http.MethodPost, "/v1/registrations/"+code+"/mark-paid", visitor, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = call(t, h, http.MethodPost, "/v1/registrations/"+code+"/mark-paid", staff, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	testutil.Then(t, "the group is admitted once per day", func(t *testing.T) {
		resp := call(t, h, http.MethodPost, "/v1/registrations/"+code+"/checkins", staff, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = call(t, h, http.MethodPost, "/v1/registrations/"+code+"/checkins", staff, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		req := testutil.NewRequest(t, http.MethodGet, "/v1/registrations/"+code+"/checkins")
		rr := testutil.DoRequest(h, testutil.WithBearer(req, visitor))
		testutil.AssertStatus(t, rr, http.StatusOK)
		history := testutil.DecodeJSON[struct {
			CheckIns []map[string]any `json:"checkins"`
		}](t, rr)
		assert.Len(t, history.CheckIns, 1)
	})

	testutil.Then(t, "the owner can fetch the QR credential", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/registrations/"+code+"/credential")
		rr := testutil.DoRequest(h, testutil.WithBearer(req, visitor))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.Equal(t, "\x89PNG", rr.Body.String()[:4])
	})

	testutil.Then(t, "another visitor cannot see it", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/registrations/"+code)
		rr := testutil.DoRequest(h, testutil.WithBearer(req, token(t, domain.RoleVisitor)))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}
