package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/metrics"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/pkg/cryptox"
	"github.com/hyperfoil/horreum-auth/pkg/slogx"
)

// ApiKeyService implements the credential lifecycle: issuance, listing,
// rename, revocation and validation. Plaintext keys exist only for the
// duration of the Issue call; everything else operates on digests.
type ApiKeyService struct {
	Store   store.Store
	Metrics *metrics.Metrics

	// Hash produces the stored digest of a plaintext key. Defaults to
	// cryptox.FingerprintKey; injectable so tests can count invocations.
	Hash cryptox.Hasher

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time

	// ActiveDays is the validity window granted to new keys when the
	// request does not override it.
	ActiveDays int
}

// NewApiKeyService creates an ApiKeyService with defaults applied.
func NewApiKeyService(st store.Store, m *metrics.Metrics) *ApiKeyService {
	return &ApiKeyService{
		Store:      st,
		Metrics:    m,
		Hash:       cryptox.FingerprintKey,
		Now:        time.Now,
		ActiveDays: domain.DefaultActiveDays,
	}
}

// ApiKeySummary is the caller-facing view of a key. It never carries the
// plaintext or the digest.
type ApiKeySummary struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Type         domain.KeyType `json:"type"`
	Creation     time.Time      `json:"creation"`
	Access       *time.Time     `json:"access,omitempty"`
	IsExpired    bool           `json:"isExpired"`
	IsRevoked    bool           `json:"isRevoked"`
	ToExpiration int            `json:"toExpiration"`
}

func summarize(k domain.ApiKey, day time.Time) ApiKeySummary {
	return ApiKeySummary{
		ID:           k.ID,
		Name:         k.Name,
		Type:         k.Type,
		Creation:     k.Creation,
		Access:       k.Access,
		IsExpired:    k.IsExpired(day),
		IsRevoked:    k.Revoked,
		ToExpiration: k.ToExpiration(day),
	}
}

// Issue mints a new key for username. The returned string is the plaintext
// credential and is never persisted or logged; only its digest is stored.
// A positive expirationDays overrides the default validity window.
func (s *ApiKeyService) Issue(ctx context.Context, username, name string, keyType domain.KeyType, expirationDays int) (ApiKeySummary, string, error) {
	if strings.HasPrefix(name, domain.ReservedNamePrefix) {
		return ApiKeySummary{}, "", ErrBadRequest
	}

	active := s.ActiveDays
	if expirationDays > 0 {
		active = expirationDays
	}

	now := s.Now()
	k, plaintext := domain.NewApiKey(name, keyType, now, active, s.Hash)
	k.Username = username

	id, err := s.Store.ApiKeys().CreateApiKey(ctx, k)
	if err != nil {
		return ApiKeySummary{}, "", err
	}
	k.ID = id

	if s.Metrics != nil {
		s.Metrics.KeysIssuedTotal.Inc()
	}
	slogx.FromContext(ctx).Info("api key issued",
		slog.Int64("id", id),
		slog.String("username", username),
		slog.String("type", k.Type.String()),
		slog.Int("active_days", active),
	)

	return summarize(k, now), plaintext, nil
}

// List returns the caller's keys, oldest first, excluding keys that are past
// their archival grace period.
func (s *ApiKeyService) List(ctx context.Context, username string) ([]ApiKeySummary, error) {
	keys, err := s.Store.ApiKeys().ListUserApiKeys(ctx, username)
	if err != nil {
		return nil, err
	}

	day := domain.Day(s.Now())
	out := make([]ApiKeySummary, 0, len(keys))
	for _, k := range keys {
		if k.IsArchived(day) {
			continue
		}
		out = append(out, summarize(k, day))
	}
	return out, nil
}

// Rename changes a key's display name. Revoked keys keep their name for the
// audit trail and cannot be renamed.
func (s *ApiKeyService) Rename(ctx context.Context, username string, id int64, name string) error {
	if strings.HasPrefix(name, domain.ReservedNamePrefix) {
		return ErrBadRequest
	}

	k, err := s.getOwned(ctx, username, id)
	if err != nil {
		return err
	}
	if k.Revoked {
		return ErrInvalidState
	}

	if err := s.Store.ApiKeys().RenameApiKey(ctx, id, name); err != nil {
		return mapStoreErr(err)
	}
	slogx.FromContext(ctx).Info("api key renamed",
		slog.Int64("id", id), slog.String("username", username))
	return nil
}

// Revoke permanently disables a key. Revoking an already revoked key is a
// no-op, not an error.
func (s *ApiKeyService) Revoke(ctx context.Context, username string, id int64) error {
	k, err := s.getOwned(ctx, username, id)
	if err != nil {
		return err
	}
	if k.Revoked {
		return nil
	}

	if err := s.Store.ApiKeys().RevokeApiKey(ctx, id); err != nil {
		return mapStoreErr(err)
	}

	if s.Metrics != nil {
		s.Metrics.KeysRevokedTotal.WithLabelValues(metrics.RevokeByUser).Inc()
	}
	slogx.FromContext(ctx).Info("api key revoked",
		slog.Int64("id", id), slog.String("username", username))
	return nil
}

// FindValid resolves a presented plaintext key to its record, verifying it
// is currently valid, and stamps the access date. Strings that do not have
// the structure of a key are rejected before any digest is computed.
//
// The access stamp is conditional on the key still being unrevoked, so a
// concurrent revoke wins the race and the validation fails.
func (s *ApiKeyService) FindValid(ctx context.Context, raw string) (domain.ApiKey, error) {
	if !domain.LooksLikeApiKey(raw) {
		s.countValidation(metrics.ValidationRejected)
		return domain.ApiKey{}, ErrNotFound
	}

	k, err := s.Store.ApiKeys().GetApiKeyByHash(ctx, s.Hash(raw))
	if err != nil {
		s.countValidation(metrics.ValidationRejected)
		return domain.ApiKey{}, mapStoreErr(err)
	}

	day := domain.Day(s.Now())
	if !k.IsValid(day) {
		s.countValidation(metrics.ValidationRejected)
		return domain.ApiKey{}, ErrNotFound
	}

	if err := s.Store.ApiKeys().TouchApiKey(ctx, k.ID, day); err != nil {
		s.countValidation(metrics.ValidationRejected)
		return domain.ApiKey{}, mapStoreErr(err)
	}
	k.Access = &day

	s.countValidation(metrics.ValidationOK)
	return k, nil
}

// getOwned fetches a key and verifies ownership. A key owned by someone else
// is reported as missing, same as a key that does not exist.
func (s *ApiKeyService) getOwned(ctx context.Context, username string, id int64) (domain.ApiKey, error) {
	k, err := s.Store.ApiKeys().GetApiKeyByID(ctx, id)
	if err != nil {
		return domain.ApiKey{}, mapStoreErr(err)
	}
	if k.Username != username {
		return domain.ApiKey{}, ErrNotFound
	}
	return k, nil
}

func (s *ApiKeyService) countValidation(result string) {
	if s.Metrics != nil {
		s.Metrics.KeyValidationsTotal.WithLabelValues(result).Inc()
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
