package largeobject

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnlink_ZeroOIDIsNoop(t *testing.T) {
	require.NoError(t, Unlink(context.Background(), nil, 0))
}

func TestUpload_MissingLocalFileReturnsTransportError(t *testing.T) {
	_, err := Upload(context.Background(), nil, "/nonexistent/path/to/file", "/srv/out.bin")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "open local file", te.Op)
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := context.DeadlineExceeded
	err := &TransportError{Op: "lowrite", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "lowrite")
}
