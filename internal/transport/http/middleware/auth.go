package httpmw

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/identity"
	"github.com/cwrk-planet/roulette-service/pkg/httputil"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// Identity resolves the caller from a bearer session token or the X-User-ID
// header family. Anonymous requests pass; a malformed identity is rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identity.Resolve(r.Header.Get("Authorization"), r.Header)
		switch {
		case err == nil:
			r = r.WithContext(WithIdentity(r.Context(), id))
		case errors.Is(err, identity.ErrMissing):
		default:
			httputil.Error(r.Context(), w, http.StatusUnauthorized, "invalid_identity", err.Error(), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects anonymous requests with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromCtx(r.Context()); !ok {
			httputil.Error(r.Context(), w, http.StatusUnauthorized, "missing_identity", "bearer token or X-User-ID required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id, ok && id.ID > 0
}
