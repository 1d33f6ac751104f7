package rowhandle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_InvalidLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestDecode_KnownVector(t *testing.T) {
	// block_number.bi_hi=0x0000, block_number.bi_lo=0x0001, index_number=0x0001
	// reversed fields concatenated: 00 00 00 01 00 01, read little-endian.
	raw := []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00}
	label, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<24|uint64(1)<<40, label)
}

// TestDecode_Deterministic is P1: for any 6-byte handle, decoding is
// deterministic and yields a value below 2^48.
func TestDecode_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 256; i++ {
		raw := make([]byte, 6)
		rng.Read(raw)

		v1, err := Decode(raw)
		require.NoError(t, err)
		v2, err := Decode(raw)
		require.NoError(t, err)

		require.Equal(t, v1, v2)
		require.Less(t, v1, uint64(1)<<48)
	}
}
