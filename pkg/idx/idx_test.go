package idx_test

import (
	"testing"
	"time"

	"github.com/hyperfoil/horreum-auth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidSortedIDs(t *testing.T) {
	t.Parallel()

	a := idx.New()
	b := idx.New()

	_, err := idx.Parse(a.String())
	require.NoError(t, err)
	_, err = idx.Parse(b.String())
	require.NoError(t, err)

	// Monotonic entropy guarantees ordering within the same millisecond.
	require.Less(t, a.String(), b.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "   ", "not-a-ulid", "0000"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)
	id := idx.NewAt(at)
	require.Equal(t, at, id.Time())
}
