package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func TestSealOpen_RoundTrips(t *testing.T) {
	b, err := NewBox(testKey, zap.NewNop())
	require.NoError(t, err)

	sealed, err := b.Seal("super-secret-value")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secret-value", sealed)

	assert.Equal(t, "super-secret-value", b.Open(sealed))
}

func TestNewBox_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewBox("dG9vLXNob3J0", zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_TreatsUndecryptableValueAsLegacyCleartext(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	b, err := NewBox(testKey, log)
	require.NoError(t, err)

	plain := "plaintext-token-from-before-encryption"
	assert.Equal(t, plain, b.Open(plain))
	require.Equal(t, 1, logs.Len())

	// A second undecryptable value only warns once.
	assert.Equal(t, "another-plaintext", b.Open("another-plaintext"))
	assert.Equal(t, 1, logs.Len())
}
