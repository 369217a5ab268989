package ml

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/models"
)

// Request is one recommendation request: the form data plus one image.
type Request struct {
	Soil     models.SoilData
	Image    []byte
	MIMEType string // image/jpeg or image/png; sniffed when empty
}

// Recommender turns soil data and a crop/soil photo into a product
// recommendation. Implementations return results that already satisfy the
// product invariant.
type Recommender interface {
	Recommend(ctx context.Context, req Request) (*models.AnalysisResult, error)
}

// RecommenderFactory creates a recommender instance based on configuration
type RecommenderFactory interface {
	CreateRecommender(ctx context.Context) (Recommender, error)
}

// NewRecommender creates a recommender for the configured provider.
func NewRecommender(ctx context.Context, cfg config.MLConfig, logger *slog.Logger) (Recommender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "ml"), slog.String("provider", cfg.Provider))

	var factory RecommenderFactory
	switch cfg.Provider {
	case "gemini":
		factory = &GeminiFactory{config: cfg, logger: logger}
	case "vertex":
		factory = &VertexFactory{config: cfg, logger: logger}
	case "mock":
		factory = &MockFactory{}
	default:
		return nil, fmt.Errorf("unsupported recommender provider: %s", cfg.Provider)
	}
	return factory.CreateRecommender(ctx)
}
