package service

import (
	"context"
	"log/slog"

	"github.com/hyperfoil/horreum-auth/pkg/httpx"
	"github.com/hyperfoil/horreum-auth/pkg/slogx"
)

// IdentityResolver turns a presented API key into an authenticated identity
// with its full augmented role set. It satisfies httpx.IdentityResolver.
type IdentityResolver struct {
	Keys      *ApiKeyService
	Augmentor *RolesAugmentor
}

// ResolveToken validates raw and, on success, returns the owner's identity
// carrying the augmented roles. Any failure is returned as-is; the HTTP layer
// collapses all of them into one uniform rejection.
func (r *IdentityResolver) ResolveToken(ctx context.Context, raw string) (httpx.Identity, error) {
	k, err := r.Keys.FindValid(ctx, raw)
	if err != nil {
		return httpx.Identity{}, err
	}

	roles, err := r.Augmentor.Augment(ctx, k.Username)
	if err != nil {
		return httpx.Identity{}, err
	}

	slogx.FromContext(ctx).Debug("api key authenticated",
		slog.Int64("key_id", k.ID),
		slog.String("username", k.Username),
	)
	return httpx.Identity{Username: k.Username, Roles: roles}, nil
}
