package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/api/responses"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/ratelimit"
)

// RateLimit throttles admin money routes. The key is the acting admin when
// RequireActor ran earlier in the chain, the client address otherwise. A
// limiter failure lets the request through; throttling is a guard, not a
// dependency.
func RateLimit(limiter ratelimit.Limiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := rateLimitKey(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				if logg != nil {
					logg.Warn(r.Context(), fmt.Sprintf("rate limiter unavailable: %v", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeRateLimit, "too many admin requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if actorID := ActorID(r.Context()); actorID != uuid.Nil {
		return "rl:admin:" + actorID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "rl:ip:" + host
}
