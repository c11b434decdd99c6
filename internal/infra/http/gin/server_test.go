package ginserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/app/commands"
	"roomstay/internal/app/dto"
	bookingapp "roomstay/internal/app/handlers/booking"
	paymentsapp "roomstay/internal/app/handlers/payments"
	"roomstay/internal/app/services/auth"
	domainbooking "roomstay/internal/domain/booking"
	"roomstay/internal/domain/identity"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/infra/config"
	"roomstay/internal/infra/obs"
	"roomstay/internal/infra/redisstore"
	"roomstay/internal/infra/security"
)

type stubBus struct {
	last   commands.Command
	result any
	err    error
}

func (b *stubBus) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	b.last = cmd
	return b.result, b.err
}

var testVerifier = security.JWTVerifier{Secret: []byte("test-secret"), Issuer: "roomstay-test"}

func newTestRouter(bus *stubBus, limiter gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := &auth.Service{Tokens: testVerifier}
	return NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Booking:        BookingHandler{Commands: bus},
		Payment:        PaymentHandler{Commands: bus},
		AuthMiddleware: AuthMiddleware{Service: svc}.Handle,
		WebhookLimiter: limiter,
	})
}

func bearer(t *testing.T, p identity.Principal) string {
	t.Helper()
	token, err := testVerifier.Sign(p, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

const createBody = `{"listing_id":"lst-1","check_in":"2030-01-31","duration_unit":"monthly","duration_count":3,"guest_name":"Sari","guest_email":"sari@example.com"}`

func TestCreateBookingPassesPrincipalAndKey(t *testing.T) {
	bus := &stubBus{result: &dto.Booking{ID: "BK-ABC", Status: "pending"}}
	router := newTestRouter(bus, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, identity.Principal{ID: "guest-1", Roles: []identity.Role{identity.RoleRequester}}))
	req.Header.Set("Idempotency-Key", " key-1 ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	cmd, ok := bus.last.(bookingapp.CreateBookingCommand)
	if !ok {
		t.Fatalf("unexpected command %T", bus.last)
	}
	if cmd.Principal.ID != "guest-1" || !cmd.Principal.HasRole(identity.RoleRequester) {
		t.Fatalf("principal not propagated: %+v", cmd.Principal)
	}
	if cmd.IdempotencyKeyV != "key-1" {
		t.Fatalf("expected trimmed idempotency key, got %q", cmd.IdempotencyKeyV)
	}
	want := time.Date(2030, 1, 31, 0, 0, 0, 0, time.UTC)
	if !cmd.CheckIn.Equal(want) || cmd.DurationCount != 3 {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestCreateBookingRejectsBadCheckIn(t *testing.T) {
	bus := &stubBus{}
	router := newTestRouter(bus, nil)

	body := strings.Replace(createBody, "2030-01-31", "31/01/2030", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "invalid_check_in" {
		t.Fatalf("unexpected error %+v", got)
	}
	if bus.last != nil {
		t.Fatalf("bus must not be called")
	}
}

func TestAuthentication(t *testing.T) {
	t.Run("invalid token stops at middleware", func(t *testing.T) {
		bus := &stubBus{}
		router := newTestRouter(bus, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/PAY-1", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if got := decodeError(t, rec); got.Code != "invalid_token" {
			t.Fatalf("unexpected error %+v", got)
		}
		if bus.last != nil {
			t.Fatalf("bus must not be called")
		}
	})

	t.Run("anonymous caller reaches the bus", func(t *testing.T) {
		bus := &stubBus{err: identity.ErrUnauthenticated}
		router := newTestRouter(bus, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/BK-1/payments", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		cmd, ok := bus.last.(paymentsapp.InitiatePaymentCommand)
		if !ok || cmd.Principal.Authenticated() || cmd.BookingID != "BK-1" {
			t.Fatalf("unexpected command %+v", bus.last)
		}
	})
}

func TestInitiateReusedPaymentReturns200(t *testing.T) {
	bus := &stubBus{result: &dto.Payment{OrderID: "PAY-1", Status: "pending", Reused: true}}
	router := newTestRouter(bus, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/BK-1/payments", nil)
	req.Header.Set("Authorization", bearer(t, identity.Principal{ID: "guest-1"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTransitionErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "conflict", err: domainbooking.ErrAlreadyCancelled, status: http.StatusConflict, code: "already_cancelled"},
		{name: "not found", err: domainbooking.ErrBookingNotFound, status: http.StatusNotFound, code: "booking_not_found"},
		{name: "forbidden", err: identity.ErrForbidden, status: http.StatusForbidden, code: "forbidden"},
		{name: "validation", err: bookingapp.ErrUnknownAction, status: http.StatusBadRequest, code: "unknown_action"},
		{name: "upstream", err: paymentsapp.ErrGatewayUnavailable, status: http.StatusBadGateway, code: "gateway_unavailable"},
		{name: "unrouted", err: commands.ErrHandlerNotFound, status: http.StatusNotImplemented, code: "internal"},
		{name: "internal", err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := &stubBus{err: tc.err}
			router := newTestRouter(bus, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/BK-1/cancel", strings.NewReader(`{"reason":"plans changed"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			got := decodeError(t, rec)
			if got.Code != tc.code {
				t.Fatalf("expected code %q, got %+v", tc.code, got)
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "disk on fire") {
				t.Fatalf("internal error leaked: %s", rec.Body.String())
			}
			cmd, _ := bus.last.(bookingapp.TransitionBookingCommand)
			if cmd.Action != "cancel" || cmd.Reason != "plans changed" {
				t.Fatalf("unexpected command %+v", bus.last)
			}
		})
	}
}

func TestNotificationBody(t *testing.T) {
	t.Run("raw body forwarded without auth", func(t *testing.T) {
		bus := &stubBus{result: &dto.NotificationAck{OrderID: "PAY-1", Status: "success", Changed: true}}
		router := newTestRouter(bus, nil)
		payload := `{"order_id":"PAY-1",  "gross_amount":"100.00"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/notifications", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		cmd := bus.last.(paymentsapp.ApplyNotificationCommand)
		if string(cmd.Payload) != payload {
			t.Fatalf("payload was altered: %q", cmd.Payload)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		bus := &stubBus{}
		router := newTestRouter(bus, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/notifications", strings.NewReader(strings.Repeat("x", maxNotificationBytes+1)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", rec.Code)
		}
		if bus.last != nil {
			t.Fatalf("bus must not be called")
		}
	})

	t.Run("invalid notification maps to 400", func(t *testing.T) {
		bus := &stubBus{err: errs.InvalidNotification("bad_signature", "payment: notification signature mismatch")}
		router := newTestRouter(bus, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/notifications", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

type stubLimiter struct {
	decision redisstore.Decision
	err      error
	keys     []string
}

func (l *stubLimiter) Allow(ctx context.Context, key string) (redisstore.Decision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

func (l *stubLimiter) Limit() int { return 5 }

func TestWebhookRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		limiter := &stubLimiter{decision: redisstore.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
		bus := &stubBus{}
		router := newTestRouter(bus, RateLimit(limiter, "webhook", nil))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/notifications", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "2" || rec.Header().Get("X-RateLimit-Limit") != "5" {
			t.Fatalf("unexpected headers %v", rec.Header())
		}
		if len(limiter.keys) != 1 || limiter.keys[0] != "webhook:203.0.113.7" {
			t.Fatalf("unexpected limiter keys %v", limiter.keys)
		}
		if bus.last != nil {
			t.Fatalf("bus must not be called")
		}
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("redis down")}
		bus := &stubBus{result: &dto.NotificationAck{}}
		router := newTestRouter(bus, RateLimit(limiter, "webhook", nil))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/notifications", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}
