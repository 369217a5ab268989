package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/models"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(MemoryDSN, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func analysis(id string, ts time.Time) *models.SavedAnalysis {
	return &models.SavedAnalysis{
		ID:           id,
		Timestamp:    ts,
		SoilData:     models.DefaultSoilData(),
		ImagePreview: "data:image/jpeg;base64,/9j/",
		Result: models.AnalysisResult{
			ProductRecommendation: models.ProductMasterP,
			Reasoning:             "Fósforo abaixo do ideal.",
			Confidence:            0.82,
		},
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	require.NoError(t, db.SaveAnalysis(ctx, analysis("a1", ts)))

	got, err := db.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, models.DefaultSoilData(), got.SoilData)
	assert.Equal(t, models.ProductMasterP, got.Result.ProductRecommendation)
	assert.InDelta(t, 0.82, got.Result.Confidence, 1e-9)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", got.ImagePreview)

	_, err = db.GetAnalysis(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	assert.Error(t, db.SaveAnalysis(ctx, analysis("a1", ts)), "duplicate IDs are rejected")
}

func TestListAnalysesNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Now()

	for i := range 3 {
		// Equal timestamps must not change the save order.
		require.NoError(t, db.SaveAnalysis(ctx, analysis(fmt.Sprintf("a%d", i), ts)))
	}

	all, err := db.ListAnalyses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a2", "a1", "a0"}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := db.ListAnalyses(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListAnalysesEmpty(t *testing.T) {
	db := newTestDB(t)
	all, err := db.ListAnalyses(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestSaveAnalysisSetsTimestamp(t *testing.T) {
	db := newTestDB(t)
	a := analysis("a1", time.Time{})
	require.NoError(t, db.SaveAnalysis(context.Background(), a))
	assert.False(t, a.Timestamp.IsZero())
}
