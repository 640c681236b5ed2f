package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/api/responses"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
)

const actorIDHeader = "X-Admin-Id"

type actorContextKey struct{}

// RequireActor extracts the acting admin's id from the request header and
// rejects admin calls that omit it. Money operations are attributed to a
// person, never to "the system".
func RequireActor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(actorIDHeader)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "missing admin identity header"))
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed admin identity header"))
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey{}, actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorID returns the admin id stashed by RequireActor, or uuid.Nil.
func ActorID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(actorContextKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
