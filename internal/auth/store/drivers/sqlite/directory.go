package sqlite

import (
	"context"
	"strings"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/pkg/rolescope"
)

// directoryRepo serves user/team rows under role-scope access control: the
// current scope must carry the system role, or (for reads) name the user
// whose rows are requested. Role augmentation pushes the system role just
// long enough to read membership data here.
type directoryRepo struct {
	q querier
}

func readAccess(ctx context.Context, username string) error {
	if rolescope.Has(ctx, domain.RoleSystem) || rolescope.Has(ctx, username) {
		return nil
	}
	return store.ErrForbidden
}

func writeAccess(ctx context.Context) error {
	if rolescope.Has(ctx, domain.RoleSystem) {
		return nil
	}
	return store.ErrForbidden
}

func (r *directoryRepo) GetUserRoles(ctx context.Context, username string) ([]string, error) {
	if err := readAccess(ctx, username); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT role FROM userinfo_roles WHERE username = ? ORDER BY role`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *directoryRepo) GetTeamMemberships(ctx context.Context, username string) ([]domain.TeamMembership, error) {
	if err := readAccess(ctx, username); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT team, role FROM team_membership WHERE username = ? ORDER BY team, role`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []domain.TeamMembership
	for rows.Next() {
		var m domain.TeamMembership
		if err := rows.Scan(&m.Team, &m.Role); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *directoryRepo) CreateUser(ctx context.Context, username string) error {
	if err := writeAccess(ctx); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO userinfo (username) VALUES (?)`, username)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *directoryRepo) GrantRole(ctx context.Context, username, role string) error {
	if err := writeAccess(ctx); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO userinfo_roles (username, role) VALUES (?, ?)`,
		username, role)
	return err
}

func (r *directoryRepo) AddTeamMembership(ctx context.Context, username string, m domain.TeamMembership) error {
	if err := writeAccess(ctx); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO team_membership (username, team, role) VALUES (?, ?, ?)`,
		username, m.Team, m.Role)
	return err
}
