package domain

import "strings"

// Well-known roles. RoleSystem is the elevated role the service itself uses
// for directory reads; it shares the reserved name prefix so no user-created
// key label can shadow it.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleTester   = "tester"
	RoleViewer   = "viewer"
	RoleUploader = "uploader"
	RoleSystem   = "horreum.system"
)

// ReservedNamePrefix marks key names reserved for internal use.
const ReservedNamePrefix = "horreum."

// Principal is an authenticated caller: the credential owner's username and,
// once augmented, the effective role set.
type Principal struct {
	Username string
	Roles    []string
}

// TeamMembership is one (team, role) pair from the user directory.
type TeamMembership struct {
	Team string
	Role string
}

// TeamRoleNaming derives the three role strings a membership contributes to
// the effective role set. The exact naming convention belongs to the
// directory backend, so it is pluggable.
type TeamRoleNaming interface {
	// TeamRole is the fully qualified per-team role, e.g. "perf-tester".
	TeamRole(m TeamMembership) string
	// TeamTag is the team itself as a role, e.g. "perf-team".
	TeamTag(m TeamMembership) string
	// UIRole is the bare role shown to users, e.g. "tester".
	UIRole(m TeamMembership) string
}

// SuffixNaming is the default convention: team names end with Suffix, and
// the qualified role replaces that suffix with the membership role.
// With Suffix "-team": ("perf-team", "tester") -> "perf-tester",
// "perf-team", "tester".
type SuffixNaming struct {
	Suffix string
}

// DefaultNaming matches the directory convention of "-team" suffixed teams.
var DefaultNaming TeamRoleNaming = SuffixNaming{Suffix: "-team"}

func (n SuffixNaming) TeamRole(m TeamMembership) string {
	return strings.TrimSuffix(m.Team, n.Suffix) + "-" + m.Role
}

func (n SuffixNaming) TeamTag(m TeamMembership) string { return m.Team }

func (n SuffixNaming) UIRole(m TeamMembership) string { return m.Role }
