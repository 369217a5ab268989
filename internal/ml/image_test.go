package ml

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfert/analyst/internal/errors"
)

var (
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	pngHeader  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
)

func TestValidateImage(t *testing.T) {
	mime, err := ValidateImage(jpegHeader, 0)
	require.NoError(t, err)
	assert.Equal(t, MIMEJPEG, mime)

	mime, err = ValidateImage(pngHeader, 0)
	require.NoError(t, err)
	assert.Equal(t, MIMEPNG, mime)

	_, err = ValidateImage(nil, 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = ValidateImage([]byte("GIF89a"), 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, "A imagem deve estar no formato JPEG ou PNG.", errors.UserMessage(err))
}

func TestValidateImageSizeCap(t *testing.T) {
	big := append(bytes.Clone(jpegHeader), make([]byte, MaxImageBytes)...)
	_, err := ValidateImage(big, MaxImageBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, "O tamanho da imagem deve ser inferior a 4MB.", errors.UserMessage(err))

	exact := append(bytes.Clone(jpegHeader), make([]byte, MaxImageBytes-len(jpegHeader))...)
	_, err = ValidateImage(exact, MaxImageBytes)
	assert.NoError(t, err)
}

func TestDecodeImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	data, hint, err := DecodeImage("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, MIMEPNG, hint)
	assert.Equal(t, pngHeader, data)

	data, hint, err = DecodeImage(encoded)
	require.NoError(t, err)
	assert.Empty(t, hint)
	assert.Equal(t, pngHeader, data)

	_, _, err = DecodeImage("not base64!!")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,/9j/", DataURL(MIMEJPEG, []byte{0xFF, 0xD8, 0xFF}))
}
