package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	codec, err := NewCodec([]byte("test-key"))
	require.NoError(t, err)

	cur := Cursor{Key: "photos/2024/cat.jpg", Seq: 42}
	token, err := codec.Encode(cur)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, cur, got)
}

func TestTokenStable(t *testing.T) {
	codec, err := NewCodec([]byte("test-key"))
	require.NoError(t, err)

	a, err := codec.Encode(Cursor{Key: "k"})
	require.NoError(t, err)
	b, err := codec.Encode(Cursor{Key: "k"})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestTokenTamperDetected(t *testing.T) {
	codec, err := NewCodec([]byte("test-key"))
	require.NoError(t, err)

	token, err := codec.Encode(Cursor{Key: "a"})
	require.NoError(t, err)

	_, err = codec.Decode(token + "x")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.Decode("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	// A token signed under a different key is rejected.
	other, err := NewCodec([]byte("other-key"))
	require.NoError(t, err)
	_, err = other.Decode(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRandomKeyCodec(t *testing.T) {
	codec, err := NewCodec(nil)
	require.NoError(t, err)

	token, err := codec.Encode(Cursor{Key: "a/b", Seq: 7})
	require.NoError(t, err)
	got, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "a/b", got.Key)
	require.Equal(t, int64(7), got.Seq)
}
