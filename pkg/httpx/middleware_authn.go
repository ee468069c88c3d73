package httpx

import (
	"context"
	"net/http"

	"github.com/hyperfoil/horreum-auth/pkg/slogx"
)

// TokenHeader carries the opaque API key on inbound requests.
const TokenHeader = "X-Horreum-Authentication-Token"

// IdentityResolver validates a raw header value and produces the principal
// it authenticates. Implementations must collapse every failure mode
// (malformed, unknown, expired, revoked) into a single not-found error so the
// response never discloses which one occurred.
type IdentityResolver interface {
	ResolveToken(ctx context.Context, raw string) (Identity, error)
}

// Authenticator is a fallback authentication mechanism consulted when the
// token header is absent (e.g. an OIDC session handled elsewhere). ok=false
// with a nil error means "not mine, keep going".
type Authenticator interface {
	Authenticate(r *http.Request) (id Identity, ok bool, err error)
}

// TokenAuthn authenticates requests carrying the token header. A present but
// invalid value is rejected with 401 outright; an absent header falls
// through to the given fallback mechanisms and, failing those, lets the
// request continue anonymously (handlers gate access with RequireIdentity).
func TokenAuthn(resolver IdentityResolver, fallbacks ...Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if raw := r.Header.Get(TokenHeader); raw != "" {
				id, err := resolver.ResolveToken(ctx, raw)
				if err != nil {
					slogx.FromContext(ctx).Info("api key rejected")
					writeUnauthenticated(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
				return
			}

			for _, fb := range fallbacks {
				id, ok, err := fb.Authenticate(r)
				if err != nil {
					writeUnauthenticated(w)
					return
				}
				if ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity rejects unauthenticated requests with 401.
func RequireIdentity() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				writeUnauthenticated(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects authenticated callers lacking every listed role.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeUnauthenticated(w)
				return
			}
			for _, role := range roles {
				if id.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// One uniform challenge for every authentication failure: the body never
// distinguishes malformed, wrong, expired or revoked credentials.
func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", TokenHeader)
	WriteError(w, http.StatusUnauthorized, "unauthenticated")
}
