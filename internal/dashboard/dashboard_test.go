package dashboard

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carvision-mcp/internal/detection"
	"github.com/ironsheep/carvision-mcp/internal/history"
)

func seededStore(t *testing.T, n int) *history.Store {
	t.Helper()
	store, err := history.NewStore(history.DefaultLimit, history.DefaultSettings())
	require.NoError(t, err)

	names := []string{"Wheel", "Wheel", "Mirror", "Hood", "Door", "Bumper", "Grille"}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		parts := []detection.DetectedPart{
			{Name: names[i%len(names)]},
			{Name: "Wheel"},
		}
		r := detection.DetectionResult{
			ID:             fmt.Sprintf("detection_%d", i),
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Parts:          parts,
			TotalParts:     len(parts),
			TotalCoverage:  12.5,
			Accuracy:       85 + float64(i%3),
			ProcessingTime: int64(500 + 100*i),
		}
		if i == n-1 {
			r = r.WithImageData("data:image/png;base64,AAAA")
		}
		store.Add(r)
	}
	return store
}

func TestSummarize(t *testing.T) {
	store := seededStore(t, 7)

	s := Summarize(store)

	assert.Equal(t, 7, s.TotalAnalyses)
	assert.Equal(t, 7, s.Retained)
	// accuracies 85,86,87,85,86,87,85 -> 601/7 = 85.857...
	assert.Equal(t, 85.9, s.AverageAccuracy)
	// 500..1100 step 100 -> 800
	assert.Equal(t, 800.0, s.AverageProcessingTime)
	assert.False(t, s.Processing)

	require.Len(t, s.Recent, RecentCount)
	assert.Equal(t, "detection_6", s.Recent[0].ID)
	assert.True(t, s.Recent[0].HasImage)
	assert.False(t, s.Recent[1].HasImage)
	assert.Equal(t, 2, s.Recent[0].TotalParts)

	require.Len(t, s.Distribution, TopParts)
	assert.Equal(t, history.PartCount{Name: "Wheel", Count: 9}, s.Distribution[0])
	assert.Nil(t, s.Chart)
}

func TestSummarize_Empty(t *testing.T) {
	store, err := history.NewStore(history.DefaultLimit, history.DefaultSettings())
	require.NoError(t, err)

	s := Summarize(store)
	assert.Zero(t, s.TotalAnalyses)
	assert.Empty(t, s.Recent)
	assert.Empty(t, s.Distribution)
}

func TestRenderChart(t *testing.T) {
	store := seededStore(t, 4)
	dist := store.PartDistribution(TopParts)

	chart, err := RenderChart(dist, detection.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, "image/png", chart.MimeType)

	raw, err := base64.StdEncoding.DecodeString(chart.ImageBase64)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy(), "chart is landscape")
}

func TestRenderChart_UnknownPartAndEmpty(t *testing.T) {
	_, err := RenderChart(nil, detection.DefaultCatalog())
	assert.ErrorIs(t, err, ErrNoData)

	chart, err := RenderChart([]history.PartCount{{Name: "Spoiler", Count: 2}}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, chart.ImageBase64)
}
