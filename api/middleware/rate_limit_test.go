package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/ratelimit"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test", Output: io.Discard})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitThrottlesPerActor(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	logg := newTestLogger()
	handler := RequireActor(logg)(RateLimit(limiter, logg)(okHandler()))

	actor := uuid.NewString()
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payouts", nil)
		req.Header.Set("X-Admin-Id", actor)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/payouts", nil)
	req.Header.Set("X-Admin-Id", actor)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	// a different admin has their own window
	req = httptest.NewRequest(http.MethodPost, "/payouts", nil)
	req.Header.Set("X-Admin-Id", uuid.NewString())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for other admin", rec.Code)
	}
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	handler := RateLimit(nil, newTestLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/payouts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireActorRejectsMalformedHeader(t *testing.T) {
	handler := RequireActor(newTestLogger())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/payouts", nil)
	req.Header.Set("X-Admin-Id", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
