package analysis

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfert/analyst/internal/database"
	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/metrics"
	"github.com/onfert/analyst/internal/ml"
	"github.com/onfert/analyst/internal/models"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

type fakeRecommender struct {
	mu     sync.Mutex
	calls  int
	result models.AnalysisResult
	err    error
}

func (f *fakeRecommender) Recommend(ctx context.Context, req ml.Request) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := f.result
	return &r, nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, a *models.SavedAnalysis) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, a.ID)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(t *testing.T, rec *fakeRecommender, opts Options) *Service {
	t.Helper()
	store, err := database.NewSQLiteDB(database.MemoryDSN, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(rec, store, opts)
}

func validResult() models.AnalysisResult {
	return models.AnalysisResult{
		ProductRecommendation: models.ProductMasterP,
		Reasoning:             "Fósforo baixo.",
		Confidence:            0.9,
	}
}

func TestAnalyzeRejectsOversizedImageBeforeCallingRecommender(t *testing.T) {
	rec := &fakeRecommender{result: validResult()}
	svc := newTestService(t, rec, Options{MaxImageBytes: 1024})

	for _, size := range []int{1025, 4096, 1 << 20} {
		image := append(bytes.Clone(jpeg), make([]byte, size)...)
		_, err := svc.Analyze(context.Background(), models.DefaultSoilData(), image)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	}
	assert.Zero(t, rec.calls)
}

func TestAnalyzeValidation(t *testing.T) {
	rec := &fakeRecommender{result: validResult()}
	svc := newTestService(t, rec, Options{})

	_, err := svc.Analyze(context.Background(), models.DefaultSoilData(), nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	soil := models.DefaultSoilData()
	soil.Crop = ""
	soil.PH = 15
	_, err = svc.Analyze(context.Background(), soil, jpeg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, errors.UserMessage(err), "informe a cultura")
	assert.Zero(t, rec.calls)
}

func TestAnalyzeNormalizesUnknownProduct(t *testing.T) {
	rec := &fakeRecommender{result: models.AnalysisResult{
		ProductRecommendation: "Ureia Premium",
		Reasoning:             "Nitrogênio baixo.",
		Confidence:            0.6,
	}}
	svc := newTestService(t, rec, Options{})

	a, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProduct, a.Result.ProductRecommendation)
	assert.Contains(t, a.Result.Reasoning, models.CorrectionNotice)

	saved, err := svc.Save(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProduct, saved.Result.ProductRecommendation)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, models.DefaultProduct, report[0].Result.ProductRecommendation)
	assert.Contains(t, report[0].Result.Reasoning, models.CorrectionNotice)
}

func TestAnalyzeCountsCorrections(t *testing.T) {
	m, err := metrics.NewAnalysisMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	rec := &fakeRecommender{}
	svc := newTestService(t, rec, Options{Metrics: m})

	// Reasoning that happens to open with the notice is not a correction.
	rec.result = models.AnalysisResult{
		ProductRecommendation: models.ProductMasterP,
		Reasoning:             models.CorrectionNotice + " citado pelo modelo.",
	}
	_, err = svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Corrections), 0)

	// Already normalized by the provider.
	corrected := models.AnalysisResult{ProductRecommendation: "Ureia", Reasoning: "Nitrogênio baixo."}
	require.True(t, corrected.Normalize())
	rec.result = corrected
	_, err = svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Corrections), 0)

	// Normalized by the service.
	rec.result = models.AnalysisResult{ProductRecommendation: "Ureia", Reasoning: "Nitrogênio baixo."}
	_, err = svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Corrections), 0)
}

func TestAnalyzePropagatesRecommenderErrors(t *testing.T) {
	rec := &fakeRecommender{err: errors.ResponseFormat("ml.parse", stderrors.New("bad json"))}
	svc := newTestService(t, rec, Options{})

	_, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrResponseFormat))
	assert.Equal(t, errors.ResponseFormatMessage, errors.UserMessage(err))
	assert.Equal(t, 1, rec.calls, "no automatic retry")
}

func TestSaveTwoAnalysesNewestFirst(t *testing.T) {
	rec := &fakeRecommender{result: validResult()}
	pub := &recordingPublisher{}
	svc := newTestService(t, rec, Options{Publisher: pub})

	clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)

	_, err = svc.Save(context.Background(), first.ID)
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), second.ID)
	require.NoError(t, err)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, second.ID, report[0].ID)
	assert.Equal(t, first.ID, report[1].ID)
	assert.True(t, report[0].Timestamp.After(report[1].Timestamp))
	assert.Equal(t, []string{first.ID, second.ID}, pub.ids)
}

func TestSaveUnknownOrAlreadySaved(t *testing.T) {
	rec := &fakeRecommender{result: validResult()}
	svc := newTestService(t, rec, Options{})

	_, err := svc.Save(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	a, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	_, ok := svc.Pending(a.ID)
	assert.True(t, ok)

	_, err = svc.Save(context.Background(), a.ID)
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), a.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSaveSurvivesPublisherFailure(t *testing.T) {
	rec := &fakeRecommender{result: validResult()}
	svc := newTestService(t, rec, Options{Publisher: &recordingPublisher{err: stderrors.New("broker down")}})

	a, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), a.ID)
	require.NoError(t, err)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.Len(t, report, 1)
}

func TestAnalyzeImagePreview(t *testing.T) {
	rec := &fakeRecommender{result: validResult()}
	svc := newTestService(t, rec, Options{})

	a, err := svc.Analyze(context.Background(), models.DefaultSoilData(), jpeg)
	require.NoError(t, err)
	assert.Equal(t, ml.DataURL(ml.MIMEJPEG, jpeg), a.ImagePreview)
}
