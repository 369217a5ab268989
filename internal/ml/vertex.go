package ml

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/models"
)

// VertexRecommender implements Recommender on Google's Vertex AI
type VertexRecommender struct {
	config config.MLConfig
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

// VertexFactory implements RecommenderFactory for Vertex AI
type VertexFactory struct {
	config config.MLConfig
	logger *slog.Logger
}

// CreateRecommender initializes the Vertex AI client
func (f *VertexFactory) CreateRecommender(ctx context.Context) (Recommender, error) {
	opts := []option.ClientOption{}

	if f.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, f.config.ProjectID, f.config.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	model := client.GenerativeModel(f.config.Model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = vertexSchema()

	return &VertexRecommender{
		config: f.config,
		client: client,
		model:  model,
		logger: f.logger,
	}, nil
}

func vertexSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			fieldProduct: {
				Type:        genai.TypeString,
				Enum:        models.ProductNames(),
				Description: descProduct,
			},
			fieldReasoning: {
				Type:        genai.TypeString,
				Description: descReasoning,
			},
			fieldConfidence: {
				Type:        genai.TypeNumber,
				Description: descConfidence,
			},
		},
		Required: requiredFields,
	}
}

// Recommend processes the image and soil data using Vertex AI
func (m *VertexRecommender) Recommend(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	if m.model == nil {
		return nil, fmt.Errorf("model not loaded")
	}

	prompt, err := BuildPrompt(req.Soil)
	if err != nil {
		return nil, err
	}
	mime := req.MIMEType
	if mime == "" {
		mime = SniffImageMIME(req.Image)
	}

	m.logger.Debug("calling the model", slog.String("model", m.config.Model))
	resp, err := m.model.GenerateContent(ctx, genai.Text(prompt), genai.Blob{MIMEType: mime, Data: req.Image})
	if err != nil {
		return nil, connectionError(err)
	}
	return vertexResult(resp, m.logger)
}

func vertexResult(resp *genai.GenerateContentResponse, logger *slog.Logger) (*models.AnalysisResult, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.ResponseFormat("ml.recommend", fmt.Errorf("no response generated"))
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, errors.ResponseFormat("ml.recommend", fmt.Errorf("no content in response"))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return resultFromText(text.String(), logger)
}

// Close releases the underlying client.
func (m *VertexRecommender) Close() error {
	return m.client.Close()
}
