package httpx

import "context"

// Identity is the authenticated principal attached to a request context:
// the owning username plus the effective role set computed at authentication
// time.
type Identity struct {
	Username string
	Roles    []string
}

// HasRole reports whether the identity carries the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// WithIdentity attaches the authenticated identity to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
