package ml

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/models"
)

const connectionMessage = "Não foi possível contatar o serviço de IA. Por favor, tente novamente."

// connectionError wraps a failed model call.
func connectionError(err error) error {
	return errors.New(errors.CategoryConnection, "ml.recommend", connectionMessage, err)
}

// resultFromText parses the text of a model answer and logs corrections.
func resultFromText(text string, logger *slog.Logger) (*models.AnalysisResult, error) {
	result, corrected, err := ParseResult(text)
	if err != nil {
		logger.Error("failed to parse model response", slog.Any("error", err), slog.String("raw", text))
		return nil, err
	}
	if corrected {
		logger.Warn("model recommended an unknown product, falling back to default")
	}
	return result, nil
}

// StripCodeFences removes a markdown code fence around a JSON payload.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseResult decodes the model's JSON output into an AnalysisResult and
// applies the product normalization. The second return value reports whether
// the product had to be corrected.
func ParseResult(raw string) (*models.AnalysisResult, bool, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return nil, false, errors.ResponseFormat("ml.parse", fmt.Errorf("empty response"))
	}

	var output struct {
		Product    *string  `json:"productRecommendation"`
		Reasoning  *string  `json:"reasoning"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		return nil, false, errors.ResponseFormat("ml.parse", fmt.Errorf("failed to parse model response: %w", err))
	}

	switch {
	case output.Product == nil:
		return nil, false, errors.ResponseFormat("ml.parse", fmt.Errorf("missing required field '%s' in response", fieldProduct))
	case output.Reasoning == nil:
		return nil, false, errors.ResponseFormat("ml.parse", fmt.Errorf("missing required field '%s' in response", fieldReasoning))
	case output.Confidence == nil:
		return nil, false, errors.ResponseFormat("ml.parse", fmt.Errorf("missing required field '%s' in response", fieldConfidence))
	}
	if c := *output.Confidence; c < 0 || c > 1 {
		return nil, false, errors.ResponseFormat("ml.parse", fmt.Errorf("confidence %v outside [0,1]", c))
	}

	result := &models.AnalysisResult{
		ProductRecommendation: models.Product(strings.TrimSpace(*output.Product)),
		Reasoning:             *output.Reasoning,
		Confidence:            *output.Confidence,
	}
	corrected := result.Normalize()
	return result, corrected, nil
}
