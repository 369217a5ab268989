package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchByCategory(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Validation("analysis.analyze", "imagem ausente"))

	assert.True(t, Is(err, ErrValidation))
	assert.False(t, Is(err, ErrConnection))
	assert.Equal(t, CategoryValidation, GetCategory(err))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", stderrors.New("boom"), "boom"},
		{"validation", Validation("op", "campo obrigatório"), "campo obrigatório"},
		{"response format", ResponseFormat("ml.parse", stderrors.New("bad json")), ResponseFormatMessage},
		{"connection without message", Connection("live.dial", stderrors.New("refused")), "refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestErrorString(t *testing.T) {
	err := DeviceUnavailable("audio.capture", stderrors.New("permission denied"))
	assert.Equal(t, "audio.capture: permission denied", err.Error())
	assert.True(t, stderrors.Is(err, ErrDeviceUnavailable))
	assert.Equal(t, "permission denied", Unwrap(err).Error())
}

func TestGenericCategory(t *testing.T) {
	assert.Equal(t, CategoryGeneric, GetCategory(stderrors.New("x")))
}
