package service

import (
	"context"
	"sort"
	"strings"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/pkg/rolescope"
)

// RolesAugmentor expands a principal's effective roles from the user
// directory: explicit role grants plus the roles derived from team
// memberships. Directory reads require elevated scope, so the augmentor
// pushes the system role onto a derived context for the duration of the
// lookups; the caller's own context is never widened.
type RolesAugmentor struct {
	Directory store.Directory

	// Naming derives role names from team memberships. Defaults to
	// domain.DefaultNaming.
	Naming domain.TeamRoleNaming
}

// Augment returns the full, lowercased, deduplicated role set for username,
// sorted for deterministic output.
func (a *RolesAugmentor) Augment(ctx context.Context, username string) ([]string, error) {
	naming := a.Naming
	if naming == nil {
		naming = domain.DefaultNaming
	}

	// Elevated scope lives only on this derived context.
	sys := rolescope.Push(ctx, domain.RoleSystem)

	explicit, err := a.Directory.GetUserRoles(sys, username)
	if err != nil {
		return nil, err
	}
	memberships, err := a.Directory.GetTeamMemberships(sys, username)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, r := range explicit {
		set[strings.ToLower(r)] = struct{}{}
	}
	for _, m := range memberships {
		set[strings.ToLower(naming.TeamRole(m))] = struct{}{}
		set[strings.ToLower(naming.TeamTag(m))] = struct{}{}
		set[strings.ToLower(naming.UIRole(m))] = struct{}{}
	}

	roles := make([]string, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles, nil
}
