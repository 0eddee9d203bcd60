package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
)

func testMaster(t *testing.T) []byte {
	t.Helper()
	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)
	return master
}

func TestNewCodecRejectsBadKeyLength(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(make([]byte, 16))
	require.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(testMaster(t))
	require.NoError(t, err)

	target := store.ChannelKey("general")
	envelope, localID, err := codec.PrepareEnvelope("hello there", target)
	require.NoError(t, err)
	require.NotEmpty(t, envelope)
	require.NotEmpty(t, localID)

	plaintext, err := codec.Decrypt(envelope, target)
	require.NoError(t, err)
	require.Equal(t, "hello there", plaintext)
}

func TestCorrelationTokensAreUnique(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(testMaster(t))
	require.NoError(t, err)

	target := store.DirectKey("bob")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		_, localID, err := codec.PrepareEnvelope("x", target)
		require.NoError(t, err)
		require.False(t, seen[localID], "duplicate correlation token %q", localID)
		seen[localID] = true
	}
}

func TestDecryptWrongConversationFails(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(testMaster(t))
	require.NoError(t, err)

	envelope, _, err := codec.PrepareEnvelope("secret", store.ChannelKey("a"))
	require.NoError(t, err)

	_, err = codec.Decrypt(envelope, store.ChannelKey("b"))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptGarbageFails(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec(testMaster(t))
	require.NoError(t, err)

	_, err = codec.Decrypt("not base64 at all!!", store.ChannelKey("a"))
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = codec.Decrypt("AAAA", store.ChannelKey("a"))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()

	master := testMaster(t)
	a, err := DeriveKey(master, deriveUsage, []string{"channel:x"})
	require.NoError(t, err)
	b, err := DeriveKey(master, deriveUsage, []string{"channel:x"})
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := DeriveKey(master, deriveUsage, []string{"channel:y"})
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}
