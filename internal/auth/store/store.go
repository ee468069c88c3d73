package store

import (
	"context"
	"errors"
	"time"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrForbidden is returned by directory reads when the caller's role
	// scope does not grant access to the requested rows.
	ErrForbidden = errors.New("store: forbidden")
)

// Store is the root data access interface. Concrete drivers implement it;
// sub-repositories keep concerns separated and individually mockable.
type Store interface {
	ApiKeys() ApiKeys
	Directory() Directory

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit or Rollback the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing on nil and rolling
	// back on error. Preferred over Tx for multi-step mutations.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// ApiKeys persists credential records. The store is the single source of
// truth for key state; validity is always recomputed against "now" by the
// caller, never cached.
type ApiKeys interface {
	// CreateApiKey inserts k and returns the assigned numeric id.
	CreateApiKey(ctx context.Context, k domain.ApiKey) (int64, error)

	// GetApiKeyByID fetches a single record regardless of state.
	GetApiKeyByID(ctx context.Context, id int64) (domain.ApiKey, error)

	// GetApiKeyByHash fetches the record whose digest equals hash exactly.
	GetApiKeyByHash(ctx context.Context, hash string) (domain.ApiKey, error)

	// ListUserApiKeys returns every key owned by username, archived ones
	// included, ordered by creation date then name.
	ListUserApiKeys(ctx context.Context, username string) ([]domain.ApiKey, error)

	// RenameApiKey updates the display name.
	RenameApiKey(ctx context.Context, id int64, name string) error

	// RevokeApiKey flips revoked on. Idempotent.
	RevokeApiKey(ctx context.Context, id int64) error

	// TouchApiKey stamps the last-access day. The update is conditional on
	// the key not being revoked, so a revoke racing a validation wins;
	// ErrNotFound is returned when the stamp was not applied.
	TouchApiKey(ctx context.Context, id int64, day time.Time) error

	// ListApiKeysExpiringOn returns unrevoked keys whose computed
	// expiration date equals day exactly.
	ListApiKeysExpiringOn(ctx context.Context, day time.Time) ([]domain.ApiKey, error)

	// ListApiKeysPastExpiration returns unrevoked keys whose computed
	// expiration date is strictly before day.
	ListApiKeysPastExpiration(ctx context.Context, day time.Time) ([]domain.ApiKey, error)
}

// Directory is the user/team directory consumed by role augmentation. Reads
// are access-controlled: drivers consult the caller's role scope and return
// ErrForbidden unless it grants directory access (the system role, or the
// user reading their own rows).
type Directory interface {
	// GetUserRoles returns the explicit roles granted to username.
	GetUserRoles(ctx context.Context, username string) ([]string, error)

	// GetTeamMemberships returns username's (team, role) pairs.
	GetTeamMemberships(ctx context.Context, username string) ([]domain.TeamMembership, error)

	// CreateUser registers a user. ErrAlreadyExists on duplicates.
	CreateUser(ctx context.Context, username string) error

	// GrantRole adds an explicit role to a user. Idempotent.
	GrantRole(ctx context.Context, username, role string) error

	// AddTeamMembership records a (team, role) pair for a user. Idempotent.
	AddTeamMembership(ctx context.Context, username string, m domain.TeamMembership) error
}
