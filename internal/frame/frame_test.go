package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripAllVariants(t *testing.T) {
	variants := []Frame{
		{Type: Request, Host: "req-host", BroadcastID: "bc-1", Body: []byte("test-request")},
		{Type: Ack, Host: "listener-1"},
		{Type: Data, Host: "listener-1", Body: []byte("test-response")},
		{Type: End, Host: "listener-1"},
	}

	for _, want := range variants {
		encoded, err := Encode(want)
		require.NoError(t, err)

		got, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestUnknownTypeDecodesWithoutError(t *testing.T) {
	got, err := Decode([]byte(`{"type":"ping","host":"h1"}`))
	require.NoError(t, err)
	require.Equal(t, Type("ping"), got.Type)
}

func TestBodyIsOpaqueArbitraryBytes(t *testing.T) {
	notJSON := []byte{0x00, 0xff, 0x10, '{', 'x'}
	encoded, err := Encode(Frame{Type: Data, Host: "h1", Body: notJSON})
	require.NoError(t, err)

	got, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, notJSON, got.Body)
}
