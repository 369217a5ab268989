// Package analysis orchestrates recommendation requests and the in-memory
// company report.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/onfert/analyst/internal/database"
	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/metrics"
	"github.com/onfert/analyst/internal/ml"
	"github.com/onfert/analyst/internal/models"
	"github.com/onfert/analyst/internal/notify"
)

// DefaultPendingTTL is how long a completed analysis can still be saved.
const DefaultPendingTTL = 30 * time.Minute

// Options configures a Service.
type Options struct {
	MaxImageBytes int64
	PendingTTL    time.Duration
	Publisher     notify.Publisher
	Metrics       *metrics.AnalysisMetrics
	Logger        *slog.Logger
}

// Service runs analyses, keeps the latest results until the user saves them
// and serves the report of saved analyses.
type Service struct {
	recommender   ml.Recommender
	store         database.Store
	publisher     notify.Publisher
	pending       *cache.Cache
	maxImageBytes int64
	metrics       *metrics.AnalysisMetrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a service on top of a recommender and a store.
func NewService(recommender ml.Recommender, store database.Store, opts Options) *Service {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = ml.MaxImageBytes
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		recommender:   recommender,
		store:         store,
		publisher:     opts.Publisher,
		pending:       cache.New(opts.PendingTTL, opts.PendingTTL*2),
		maxImageBytes: opts.MaxImageBytes,
		metrics:       opts.Metrics,
		logger:        logger.With(slog.String("component", "analysis")),
		now:           time.Now,
	}
}

// Analyze validates the form and the image, asks the recommender and keeps
// the completed analysis pending. Nothing is sent to the recommender when
// validation fails.
func (s *Service) Analyze(ctx context.Context, soil models.SoilData, image []byte) (*models.SavedAnalysis, error) {
	start := s.now()

	if fieldErrs := soil.Validate(); len(fieldErrs) > 0 {
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = fe.Message
		}
		err := errors.Validation("analysis.analyze",
			"Por favor, corrija os dados do solo: "+strings.Join(msgs, "; ")+".")
		s.metrics.ObserveRequest(string(errors.CategoryValidation), 0)
		return nil, err
	}

	mime, err := ml.ValidateImage(image, s.maxImageBytes)
	if err != nil {
		s.metrics.ObserveRequest(string(errors.CategoryValidation), 0)
		return nil, err
	}
	s.metrics.ObserveImageSize(len(image))

	result, err := s.recommender.Recommend(ctx, ml.Request{Soil: soil, Image: image, MIMEType: mime})
	if err != nil {
		s.metrics.ObserveRequest(string(errors.GetCategory(err)), s.now().Sub(start))
		s.logger.Warn("recommendation failed", slog.Any("error", err))
		return nil, err
	}
	if result == nil {
		return nil, errors.ResponseFormat("analysis.analyze", fmt.Errorf("empty recommendation"))
	}
	res := *result
	// Providers normalize while parsing; Corrected carries that through.
	res.Normalize()
	if res.Corrected {
		s.metrics.IncrementCorrections()
	}

	a := &models.SavedAnalysis{
		ID:           uuid.NewString(),
		Timestamp:    s.now(),
		SoilData:     soil,
		ImagePreview: ml.DataURL(mime, image),
		Result:       res,
	}
	s.pending.Set(a.ID, a, cache.DefaultExpiration)
	s.metrics.ObserveRequest("success", s.now().Sub(start))
	s.logger.Info("analysis completed",
		slog.String("id", a.ID),
		slog.String("crop", soil.Crop),
		slog.String("product", string(res.ProductRecommendation)),
		slog.Float64("confidence", res.Confidence))
	return a, nil
}

// Pending returns a completed analysis that has not been saved yet.
func (s *Service) Pending(id string) (*models.SavedAnalysis, bool) {
	v, ok := s.pending.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*models.SavedAnalysis), true
}

// Save moves a pending analysis into the report. The save time becomes the
// analysis timestamp.
func (s *Service) Save(ctx context.Context, id string) (*models.SavedAnalysis, error) {
	pending, ok := s.Pending(id)
	if !ok {
		return nil, errors.New(errors.CategoryNotFound, "analysis.save",
			"Análise não encontrada ou expirada. Por favor, faça uma nova análise.", nil)
	}

	saved := *pending
	saved.Timestamp = s.now()
	if err := s.store.SaveAnalysis(ctx, &saved); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	s.pending.Delete(id)
	s.metrics.IncrementSaved()

	if err := s.publisher.Publish(ctx, &saved); err != nil {
		s.metrics.IncrementNotifyErrors()
		s.logger.Warn("failed to publish saved analysis", slog.String("id", id), slog.Any("error", err))
	}
	s.logger.Info("analysis saved", slog.String("id", id))
	return &saved, nil
}

// Report lists saved analyses, most recently saved first.
func (s *Service) Report(ctx context.Context) ([]*models.SavedAnalysis, error) {
	return s.store.ListAnalyses(ctx, 0)
}
