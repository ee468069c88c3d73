package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
)

type apiKeysRepo struct {
	q querier
}

const apiKeyColumns = `id, username, name, hash, type, creation, access, active, revoked`

func (r *apiKeysRepo) CreateApiKey(ctx context.Context, k domain.ApiKey) (int64, error) {
	var access any
	if k.Access != nil {
		access = formatDay(*k.Access)
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO userinfo_apikey (username, name, hash, type, creation, access, active, revoked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.Username, k.Name, k.Hash, int(k.Type), formatDay(k.Creation), access, k.Active, k.Revoked,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *apiKeysRepo) GetApiKeyByID(ctx context.Context, id int64) (domain.ApiKey, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM userinfo_apikey WHERE id = ?`, id)
	return scanApiKeyRow(row)
}

func (r *apiKeysRepo) GetApiKeyByHash(ctx context.Context, hash string) (domain.ApiKey, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM userinfo_apikey WHERE hash = ?`, hash)
	return scanApiKeyRow(row)
}

func (r *apiKeysRepo) ListUserApiKeys(ctx context.Context, username string) ([]domain.ApiKey, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM userinfo_apikey WHERE username = ? ORDER BY creation, name`,
		username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApiKeys(rows)
}

func (r *apiKeysRepo) RenameApiKey(ctx context.Context, id int64, name string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE userinfo_apikey SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *apiKeysRepo) RevokeApiKey(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE userinfo_apikey SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// TouchApiKey stamps the last-access day, conditional on the key still being
// unrevoked. The condition makes a revoke that races a validation win: if
// the row was revoked in between, no row matches and ErrNotFound comes back.
func (r *apiKeysRepo) TouchApiKey(ctx context.Context, id int64, day time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE userinfo_apikey SET access = ? WHERE id = ? AND revoked = 0`,
		formatDay(day), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// The expiration date is computed in SQL so both sweep queries key on exact
// date arithmetic: date(COALESCE(access, creation), '+<active> days').
const expirationExpr = `date(COALESCE(access, creation), '+' || active || ' days')`

func (r *apiKeysRepo) ListApiKeysExpiringOn(ctx context.Context, day time.Time) ([]domain.ApiKey, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM userinfo_apikey
		 WHERE revoked = 0 AND `+expirationExpr+` = ?
		 ORDER BY id`,
		formatDay(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApiKeys(rows)
}

func (r *apiKeysRepo) ListApiKeysPastExpiration(ctx context.Context, day time.Time) ([]domain.ApiKey, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM userinfo_apikey
		 WHERE revoked = 0 AND `+expirationExpr+` < ?
		 ORDER BY id`,
		formatDay(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApiKeys(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApiKey(s rowScanner) (domain.ApiKey, error) {
	var (
		k        domain.ApiKey
		keyType  int
		creation string
		access   sql.NullString
	)
	if err := s.Scan(&k.ID, &k.Username, &k.Name, &k.Hash, &keyType, &creation, &access, &k.Active, &k.Revoked); err != nil {
		return domain.ApiKey{}, err
	}

	k.Type = domain.KeyType(keyType)

	day, err := parseDay(creation)
	if err != nil {
		return domain.ApiKey{}, err
	}
	k.Creation = day

	if access.Valid {
		day, err := parseDay(access.String)
		if err != nil {
			return domain.ApiKey{}, err
		}
		k.Access = &day
	}

	return k, nil
}

func scanApiKeyRow(row *sql.Row) (domain.ApiKey, error) {
	k, err := scanApiKey(row)
	if err != nil {
		return domain.ApiKey{}, mapNotFound(err)
	}
	return k, nil
}

func collectApiKeys(rows *sql.Rows) ([]domain.ApiKey, error) {
	var out []domain.ApiKey
	for rows.Next() {
		k, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
