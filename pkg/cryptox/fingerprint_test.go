package cryptox_test

import (
	"testing"

	"github.com/hyperfoil/horreum-auth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestFingerprintKey(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		a := cryptox.FingerprintKey("HUSR_0000AAAA_BBBB_CCCC_DDDD_000011112222")
		b := cryptox.FingerprintKey("HUSR_0000AAAA_BBBB_CCCC_DDDD_000011112222")
		require.Equal(t, a, b)
	})

	t.Run("distinct inputs produce distinct digests", func(t *testing.T) {
		a := cryptox.FingerprintKey("key-one")
		b := cryptox.FingerprintKey("key-two")
		require.NotEqual(t, a, b)
	})

	t.Run("standard base64 of a 32 byte digest", func(t *testing.T) {
		fp := cryptox.FingerprintKey("anything")
		require.Len(t, fp, 44)
		require.Equal(t, byte('='), fp[43])
	})
}
