package ml

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func geminiResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGeminiResult(t *testing.T) {
	t.Run("text parts are joined", func(t *testing.T) {
		resp := geminiResponse(
			genai.Text(`{"productRecommendation":"Master P",`),
			genai.Blob{MIMEType: "image/png", Data: []byte{1}},
			genai.Text(`"reasoning":"Fósforo baixo.","confidence":0.8}`),
		)
		result, err := geminiResult(resp, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, models.ProductMasterP, result.ProductRecommendation)
		assert.InDelta(t, 0.8, result.Confidence, 1e-9)
		assert.False(t, result.Corrected)
	})

	t.Run("unknown product is corrected", func(t *testing.T) {
		resp := geminiResponse(genai.Text(`{"productRecommendation":"Ureia","reasoning":"N baixo.","confidence":0.5}`))
		result, err := geminiResult(resp, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, models.DefaultProduct, result.ProductRecommendation)
		assert.True(t, result.Corrected)
	})

	for name, resp := range map[string]*genai.GenerateContentResponse{
		"nil response":  nil,
		"no candidates": {},
		"no content":    {Candidates: []*genai.Candidate{{}}},
		"no text":       geminiResponse(genai.Blob{MIMEType: "image/png", Data: []byte{1}}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := geminiResult(resp, discardLogger())
			require.Error(t, err)
			assert.Equal(t, errors.CategoryResponseFormat, errors.GetCategory(err))
			assert.Equal(t, errors.ResponseFormatMessage, errors.UserMessage(err))
		})
	}
}

func TestConnectionError(t *testing.T) {
	cause := context.DeadlineExceeded
	err := connectionError(cause)
	assert.Equal(t, errors.CategoryConnection, errors.GetCategory(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, connectionMessage, errors.UserMessage(err))
}
