package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox("chave-mestra-de-teste")
	require.NoError(t, err)

	sealed, err := box.Seal("senha-do-certificado")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "senha-do-certificado")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "senha-do-certificado", opened)
}

func TestBox_NonceIsRandom(t *testing.T) {
	box, err := NewBox("k")
	require.NoError(t, err)

	a, err := box.Seal("mesma")
	require.NoError(t, err)
	b, err := box.Seal("mesma")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_Errors(t *testing.T) {
	_, err := NewBox("")
	assert.ErrorIs(t, err, ErrEmptyKey)

	box, err := NewBox("chave-a")
	require.NoError(t, err)
	other, err := NewBox("chave-b")
	require.NoError(t, err)

	sealed, err := box.Seal("segredo")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = box.Open("não é base64!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = box.Open("AAAA")
	assert.ErrorIs(t, err, ErrMalformed)
}
