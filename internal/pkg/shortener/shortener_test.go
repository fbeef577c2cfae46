package shortener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, id := range []uint{0, 1, 61, 62, 4096, 123456789} {
		encoded := EncodeID(id)
		assert.NotEmpty(t, encoded)
		assert.Equal(t, id, DecodeID(encoded))
	}
}

func TestDecodeIgnoresInvalidCharacters(t *testing.T) {
	assert.Equal(t, DecodeID("1a"), DecodeID("1-a!"))
}

func TestGenerateSecureSlug(t *testing.T) {
	slug, err := GenerateSecureSlug(12)
	require.NoError(t, err)
	assert.Len(t, slug, 12)

	other, err := GenerateSecureSlug(12)
	require.NoError(t, err)
	assert.NotEqual(t, slug, other)

	_, err = GenerateSecureSlug(0)
	assert.Error(t, err)
}
