package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/internal/auth/store/drivers/sqlite"
	"github.com/hyperfoil/horreum-auth/pkg/rolescope"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

// systemCtx returns a context scoped with the system role so directory
// mutations are permitted during test setup.
func systemCtx() context.Context {
	return rolescope.Push(context.Background(), domain.RoleSystem)
}

func seedUser(t *testing.T, s *sqlite.Store, username string) {
	t.Helper()
	require.NoError(t, s.Directory().CreateUser(systemCtx(), username))
}

func seedKey(t *testing.T, s *sqlite.Store, username string, creation time.Time, active int) (domain.ApiKey, int64) {
	t.Helper()

	k := domain.ApiKey{
		Username: username,
		Name:     "test key",
		Hash:     "hash-" + username + creation.Format("2006-01-02"),
		Type:     domain.KeyTypeUser,
		Creation: domain.Day(creation),
		Active:   active,
	}
	id, err := s.ApiKeys().CreateApiKey(context.Background(), k)
	require.NoError(t, err)
	k.ID = id
	return k, id
}

func TestApiKeysRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	k, id := seedKey(t, s, "alice", now, 30)

	got, err := s.ApiKeys().GetApiKeyByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, k.Hash, got.Hash)
	require.Equal(t, domain.Day(now), got.Creation)
	require.Nil(t, got.Access)
	require.Equal(t, 30, got.Active)
	require.False(t, got.Revoked)

	byHash, err := s.ApiKeys().GetApiKeyByHash(ctx, k.Hash)
	require.NoError(t, err)
	require.Equal(t, id, byHash.ID)

	_, err = s.ApiKeys().GetApiKeyByHash(ctx, "no-such-hash")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTouchApiKeyLosesToRevoke(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, id := seedKey(t, s, "alice", now, 30)

	require.NoError(t, s.ApiKeys().TouchApiKey(ctx, id, now.AddDate(0, 0, 5)))

	got, err := s.ApiKeys().GetApiKeyByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Access)
	require.Equal(t, domain.Day(now.AddDate(0, 0, 5)), *got.Access)

	// Once revoked, the access stamp must not land.
	require.NoError(t, s.ApiKeys().RevokeApiKey(ctx, id))
	err = s.ApiKeys().TouchApiKey(ctx, id, now.AddDate(0, 0, 6))
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.ApiKeys().GetApiKeyByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.Day(now.AddDate(0, 0, 5)), *got.Access)
}

func TestSweepQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, expiresToday := seedKey(t, s, "alice", base.AddDate(0, 0, -30), 30)
	_, longGone := seedKey(t, s, "alice", base.AddDate(0, 0, -60), 30)
	seedKey(t, s, "alice", base, 30)
	_, revoked := seedKey(t, s, "alice", base.AddDate(0, 0, -90), 30)
	require.NoError(t, s.ApiKeys().RevokeApiKey(ctx, revoked))

	on, err := s.ApiKeys().ListApiKeysExpiringOn(ctx, base)
	require.NoError(t, err)
	require.Len(t, on, 1)
	require.Equal(t, expiresToday, on[0].ID)

	past, err := s.ApiKeys().ListApiKeysPastExpiration(ctx, base)
	require.NoError(t, err)
	require.Len(t, past, 1)
	require.Equal(t, longGone, past[0].ID)

	// An access stamp slides the expiration window forward.
	require.NoError(t, s.ApiKeys().TouchApiKey(ctx, expiresToday, base))
	on, err = s.ApiKeys().ListApiKeysExpiringOn(ctx, base)
	require.NoError(t, err)
	require.Empty(t, on)
}

func TestListUserApiKeysOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, k := range []domain.ApiKey{
		{Username: "alice", Name: "beta", Hash: "h1", Type: domain.KeyTypeUser, Creation: domain.Day(base.AddDate(0, 0, 1)), Active: 30},
		{Username: "alice", Name: "alpha", Hash: "h2", Type: domain.KeyTypeUser, Creation: domain.Day(base.AddDate(0, 0, 1)), Active: 30},
		{Username: "alice", Name: "zulu", Hash: "h3", Type: domain.KeyTypeUser, Creation: domain.Day(base), Active: 30},
	} {
		_, err := s.ApiKeys().CreateApiKey(ctx, k)
		require.NoError(t, err)
	}

	keys, err := s.ApiKeys().ListUserApiKeys(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, "zulu", keys[0].Name)
	require.Equal(t, "alpha", keys[1].Name)
	require.Equal(t, "beta", keys[2].Name)
}

func TestDirectoryScopeGuard(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "alice")

	sys := systemCtx()
	require.NoError(t, s.Directory().GrantRole(sys, "alice", "tester"))
	require.NoError(t, s.Directory().GrantRole(sys, "alice", "tester")) // idempotent
	require.NoError(t, s.Directory().AddTeamMembership(sys, "alice", domain.TeamMembership{Team: "perf-team", Role: "tester"}))

	t.Run("unscoped read forbidden", func(t *testing.T) {
		_, err := s.Directory().GetUserRoles(context.Background(), "alice")
		require.ErrorIs(t, err, store.ErrForbidden)
	})

	t.Run("unscoped write forbidden", func(t *testing.T) {
		err := s.Directory().CreateUser(context.Background(), "mallory")
		require.ErrorIs(t, err, store.ErrForbidden)
	})

	t.Run("own scope may read own rows only", func(t *testing.T) {
		own := rolescope.Push(context.Background(), "alice")

		roles, err := s.Directory().GetUserRoles(own, "alice")
		require.NoError(t, err)
		require.Equal(t, []string{"tester"}, roles)

		_, err = s.Directory().GetUserRoles(own, "bob")
		require.ErrorIs(t, err, store.ErrForbidden)
	})

	t.Run("system scope reads everything", func(t *testing.T) {
		ms, err := s.Directory().GetTeamMemberships(sys, "alice")
		require.NoError(t, err)
		require.Equal(t, []domain.TeamMembership{{Team: "perf-team", Role: "tester"}}, ms)
	})

	t.Run("duplicate user", func(t *testing.T) {
		err := s.Directory().CreateUser(sys, "alice")
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	wantErr := store.ErrNotFound

	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.ApiKeys().CreateApiKey(ctx, domain.ApiKey{
			Username: "alice", Name: "doomed", Hash: "hx",
			Type: domain.KeyTypeUser, Creation: domain.Day(base), Active: 30,
		})
		require.NoError(t, err)
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	keys, err := s.ApiKeys().ListUserApiKeys(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, keys)
}
