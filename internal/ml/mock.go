package ml

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/onfert/analyst/internal/models"
)

// MockRecommender is an offline recommender driven by simple soil
// thresholds. It is used for demos and tests.
type MockRecommender struct {
	calls atomic.Int64
}

// MockFactory implements RecommenderFactory for the offline recommender
type MockFactory struct{}

// CreateRecommender creates a new mock recommender instance
func (f *MockFactory) CreateRecommender(ctx context.Context) (Recommender, error) {
	return NewMockRecommender(), nil
}

// NewMockRecommender creates a new mock recommender
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{}
}

// Calls returns how many times Recommend was invoked.
func (m *MockRecommender) Calls() int64 {
	return m.calls.Load()
}

// Recommend picks a product from pH and phosphorus.
func (m *MockRecommender) Recommend(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	soil := req.Soil
	result := &models.AnalysisResult{Confidence: 0.7}
	switch {
	case soil.PH < 5.5:
		result.ProductRecommendation = models.ProductOrganomineral
		result.Reasoning = fmt.Sprintf("O pH %.1f indica solo ácido; um organomineral melhora a estrutura e a disponibilidade de nutrientes.", soil.PH)
		result.Confidence = 0.8
	case soil.Phosphorus < 10:
		result.ProductRecommendation = models.ProductMasterP
		result.Reasoning = fmt.Sprintf("O fósforo de %.1f está baixo para %s; Master P corrige a deficiência.", soil.Phosphorus, soil.Crop)
		result.Confidence = 0.85
	default:
		result.ProductRecommendation = models.ProductMineral
		result.Reasoning = "Os níveis de nutrientes estão equilibrados; um fertilizante mineral mantém a produtividade."
	}
	result.Normalize()
	return result, nil
}
