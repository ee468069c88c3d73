package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ArchiveAfterDays is the grace period past expiration after which a key is
// hidden from listings. The record itself is kept forever so the same secret
// can never be accepted again. Overridable from configuration at startup.
var ArchiveAfterDays = 7

// DefaultActiveDays is the validity window granted to new keys when the
// issue request does not specify one.
const DefaultActiveDays = 30

// KeyType is the credential kind baked into the key string. Closed enum;
// only USER keys exist today.
type KeyType int

const (
	KeyTypeUser KeyType = iota
)

// tag returns the 3-letter kind tag embedded in the key string.
func (t KeyType) tag() string {
	switch t {
	case KeyTypeUser:
		return "USR"
	default:
		return "UNK"
	}
}

func (t KeyType) String() string {
	switch t {
	case KeyTypeUser:
		return "USER"
	default:
		return "UNKNOWN"
	}
}

// ParseKeyType maps the wire name of a key type back to its enum value.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "USER":
		return KeyTypeUser, nil
	default:
		return KeyTypeUser, fmt.Errorf("unknown key type %q", s)
	}
}

func (t KeyType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *KeyType) UnmarshalText(b []byte) error {
	parsed, err := ParseKeyType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ApiKey is the persisted credential record. The secret itself is never
// stored; only its digest is, so a lost plaintext can only be revoked and
// reissued, never recovered.
type ApiKey struct {
	ID       int64
	Username string // owner; set at creation, never changed
	Name     string // display label; only the reserved-prefix policy constrains it
	Hash     string // digest of the full key string
	Type     KeyType
	Creation time.Time  // day precision, UTC
	Access   *time.Time // day of last successful validation, nil until first use
	Active   int        // days of validity counted from Access (or Creation if never used)
	Revoked  bool
}

// Key string layout: constant prefix byte, 3-letter kind tag, then the
// uppercased random UUID with every dash replaced by the separator. The
// separator offsets are fixed, which makes malformed input cheap to reject
// before any digest work.
const (
	keyPrefix    = "H"
	keySeparator = '_'
	keyLength    = 41 // 1 prefix + 3 tag + 37 separator-delimited UUID chars
)

var keySeparatorOffsets = [...]int{4, 13, 18, 23, 28}

// NewApiKey mints a fresh credential: it draws a random 128-bit identifier,
// builds the key string, and records only the digest computed by hash.
// The returned plaintext is the single chance anyone has to see the secret.
func NewApiKey(name string, t KeyType, creation time.Time, activeDays int, hash func(string) string) (ApiKey, string) {
	plaintext := buildKeyString(t, uuid.New())
	return ApiKey{
		Name:     name,
		Hash:     hash(plaintext),
		Type:     t,
		Creation: Day(creation),
		Active:   activeDays,
	}, plaintext
}

func buildKeyString(t KeyType, r uuid.UUID) string {
	var b strings.Builder
	b.Grow(keyLength)
	b.WriteString(keyPrefix)
	b.WriteString(t.tag())
	b.WriteByte(keySeparator)
	b.WriteString(strings.ToUpper(strings.ReplaceAll(r.String(), "-", string(keySeparator))))
	return b.String()
}

// LooksLikeApiKey is the structural pre-validation gate: exact length,
// constant prefix, separators at the fixed offsets. Callers must not hash or
// look up candidates that fail it — rejecting on shape alone keeps garbage
// input off the digest path and keeps response timing uncorrelated with
// database contents.
func LooksLikeApiKey(s string) bool {
	if len(s) != keyLength || !strings.HasPrefix(s, keyPrefix) {
		return false
	}
	for _, i := range keySeparatorOffsets {
		if s[i] != keySeparator {
			return false
		}
	}
	return true
}

// referenceDate is the day the validity window is measured from: the last
// successful use, or creation if the key was never used.
func (k *ApiKey) referenceDate() time.Time {
	if k.Access != nil {
		return *k.Access
	}
	return k.Creation
}

// ExpirationDate is the last day the key is valid on.
func (k *ApiKey) ExpirationDate() time.Time {
	return k.referenceDate().AddDate(0, 0, k.Active)
}

// IsExpired reports whether the validity window has elapsed on the given day.
func (k *ApiKey) IsExpired(day time.Time) bool {
	return day.After(k.ExpirationDate())
}

// IsArchived reports whether the key has been expired for longer than the
// grace period. Archived keys disappear from listings but their hash record
// stays to block replay of the same secret.
func (k *ApiKey) IsArchived(day time.Time) bool {
	return day.After(k.ExpirationDate().AddDate(0, 0, ArchiveAfterDays))
}

// IsValid reports whether the key authenticates on the given day. Revocation
// overrides every date-based state.
func (k *ApiKey) IsValid(day time.Time) bool {
	return !k.Revoked && !k.IsExpired(day)
}

// ToExpiration returns the number of days left until expiration; negative
// once the key has expired.
func (k *ApiKey) ToExpiration(day time.Time) int {
	return k.Active - DaysBetween(k.referenceDate(), day)
}

// Day truncates t to midnight UTC. All credential dates are day-granular.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from one day-granular date to another.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)) / (24 * time.Hour))
}
