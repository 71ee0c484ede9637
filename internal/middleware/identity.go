package middleware

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"storefront/internal/order"
)

// Auth is handled upstream: the gateway verifies the token and forwards
// the caller's claims in these headers. This middleware only parses them.
const (
	HeaderUserID = "X-User-Id"
	HeaderAdmin  = "X-User-Admin"
)

type contextKey struct{}

var identityKey contextKey

// Identity rejects requests without a valid user claim and stores the
// caller's identity on the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get(HeaderUserID)
		if rawID == "" {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		userID, err := uuid.FromString(rawID)
		if err != nil {
			log.Warn().Str("user_id", rawID).Msg("middleware: malformed identity header")
			http.Error(w, "invalid identity", http.StatusUnauthorized)
			return
		}

		ident := order.Identity{
			UserID:  userID,
			IsAdmin: r.Header.Get(HeaderAdmin) == "true",
		}

		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the caller's identity placed by Identity.
func IdentityFromContext(ctx context.Context) (order.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(order.Identity)
	return ident, ok
}
