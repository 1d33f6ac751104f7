package jobcontroller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePayload_Valid(t *testing.T) {
	n, err := parsePayload("insert:42")
	require.NoError(t, err)
	require.Equal(t, Notification{Kind: NotifyInsert, JobID: 42}, n)

	n, err = parsePayload("update:7")
	require.NoError(t, err)
	require.Equal(t, Notification{Kind: NotifyUpdate, JobID: 7}, n)
}

func TestParsePayload_Malformed(t *testing.T) {
	cases := []string{
		"",
		"insert",
		"insert:abc",
		"delete:1",
		"insert:1:2",
	}
	for _, c := range cases {
		_, err := parsePayload(c)
		require.Error(t, err, "payload %q should be rejected", c)
	}
}
