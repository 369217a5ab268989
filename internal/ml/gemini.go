package ml

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/models"
)

// GeminiRecommender calls the Gemini API with an API key.
type GeminiRecommender struct {
	config config.MLConfig
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

// GeminiFactory implements RecommenderFactory for the Gemini API
type GeminiFactory struct {
	config config.MLConfig
	logger *slog.Logger
}

// CreateRecommender creates the client and configures the structured output.
func (f *GeminiFactory) CreateRecommender(ctx context.Context) (Recommender, error) {
	if strings.TrimSpace(f.config.APIKey) == "" {
		return nil, config.ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(f.config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	model := client.GenerativeModel(f.config.Model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema()

	return &GeminiRecommender{
		config: f.config,
		client: client,
		model:  model,
		logger: f.logger,
	}, nil
}

func geminiSchema() *genai.Schema {
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

// Recommend sends the prompt and image and parses the structured answer.
func (g *GeminiRecommender) Recommend(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	prompt, err := BuildPrompt(req.Soil)
	if err != nil {
		return nil, err
	}
	mime := req.MIMEType
	if mime == "" {
		mime = SniffImageMIME(req.Image)
	}

	g.logger.Debug("calling the model", slog.String("model", g.config.Model), slog.Int("image_bytes", len(req.Image)))
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt), genai.Blob{MIMEType: mime, Data: req.Image})
	if err != nil {
		return nil, connectionError(err)
	}
	return geminiResult(resp, g.logger)
}

func geminiResult(resp *genai.GenerateContentResponse, logger *slog.Logger) (*models.AnalysisResult, error) {
	return resultFromText(geminiText(resp), logger)
}

// Close releases the underlying client.
func (g *GeminiRecommender) Close() error {
	return g.client.Close()
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
