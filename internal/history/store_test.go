package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carvision-mcp/internal/detection"
)

func newTestStore(t *testing.T, limit int) *Store {
	t.Helper()
	s, err := NewStore(limit, DefaultSettings())
	require.NoError(t, err)
	return s
}

func result(id string, accuracy float64, ms int64, names ...string) detection.DetectionResult {
	parts := make([]detection.DetectedPart, 0, len(names))
	for i, n := range names {
		parts = append(parts, detection.DetectedPart{ID: fmt.Sprintf("%s_part_%d", id, i), Name: n, Confidence: 0.9})
	}
	return detection.DetectionResult{
		ID:             id,
		Accuracy:       accuracy,
		ProcessingTime: ms,
		Parts:          parts,
		TotalParts:     len(parts),
	}
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(0, DefaultSettings())
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = NewStore(10, Settings{ConfidenceThreshold: 1.5})
	assert.ErrorIs(t, err, ErrInvalidSetting)

	s, err := NewStore(10, DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 10, s.Limit())
	assert.Zero(t, s.Len())
	assert.Equal(t, Stats{}, s.Stats())
}

func TestStore_AddNewestFirst(t *testing.T) {
	s := newTestStore(t, DefaultLimit)

	s.Add(result("a", 90, 1000))
	s.Add(result("b", 86, 600))

	recent := s.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "a", recent[1].ID)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalAnalyses)
	assert.InDelta(t, 88, stats.AverageAccuracy, 1e-9)
	assert.InDelta(t, 800, stats.AverageProcessingTime, 1e-9)
}

func TestStore_CapKeepsMostRecent(t *testing.T) {
	s := newTestStore(t, DefaultLimit)

	for i := 0; i < 51; i++ {
		s.Add(result(fmt.Sprintf("r%02d", i), 90, 500))
	}

	assert.Equal(t, 50, s.Len())
	recent := s.Recent(0)
	assert.Equal(t, "r50", recent[0].ID)
	assert.Equal(t, "r01", recent[49].ID)

	_, found := s.Get("r00")
	assert.False(t, found, "oldest result should have been evicted")

	// Averages still cover the evicted result.
	assert.Equal(t, 51, s.Stats().TotalAnalyses)
}

func TestStore_RunningAverageIncludesEvicted(t *testing.T) {
	s := newTestStore(t, 2)

	s.Add(result("a", 85, 500))
	s.Add(result("b", 90, 1000))
	s.Add(result("c", 95, 1500))

	assert.Equal(t, 2, s.Len())
	stats := s.Stats()
	assert.Equal(t, 3, stats.TotalAnalyses)
	assert.InDelta(t, 90, stats.AverageAccuracy, 1e-9)
	assert.InDelta(t, 1000, stats.AverageProcessingTime, 1e-9)
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t, DefaultLimit)
	_, err := s.UpdateSettings(SettingsPatch{AutoSave: ptr(true)})
	require.NoError(t, err)
	s.Add(result("a", 90, 1000))

	s.Clear()

	assert.Zero(t, s.Len())
	assert.Equal(t, Stats{}, s.Stats())
	assert.Empty(t, s.PartDistribution(5))
	assert.True(t, s.Settings().AutoSave, "Clear must not touch settings")
}

func TestStore_RecentReturnsCopy(t *testing.T) {
	s := newTestStore(t, DefaultLimit)
	s.Add(result("a", 90, 1000))
	s.Add(result("b", 90, 1000))
	s.Add(result("c", 90, 1000))

	got := s.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got[0].ID = "mutated"
	assert.Equal(t, "c", s.Recent(1)[0].ID)

	assert.Len(t, s.Recent(100), 3)
}

func TestStore_Get(t *testing.T) {
	s := newTestStore(t, DefaultLimit)
	s.Add(result("a", 91, 700, "Wheel"))

	r, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 91.0, r.Accuracy)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_PartDistribution(t *testing.T) {
	s := newTestStore(t, DefaultLimit)
	s.Add(result("a", 90, 1000, "Wheel", "Wheel", "Mirror", "Hood"))
	s.Add(result("b", 90, 1000, "Wheel", "Door", "Mirror", "Bumper", "Headlight"))
	s.Add(result("c", 90, 1000, "Grille"))

	got := s.PartDistribution(5)
	want := []PartCount{
		{Name: "Wheel", Count: 3},
		{Name: "Mirror", Count: 2},
		{Name: "Bumper", Count: 1},
		{Name: "Door", Count: 1},
		{Name: "Grille", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PartDistribution mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, s.PartDistribution(0), 7)
}

func TestStore_Processing(t *testing.T) {
	s := newTestStore(t, DefaultLimit)
	assert.False(t, s.Processing())

	// Two overlapping detections: the flag holds until both finish.
	s.BeginProcessing()
	s.BeginProcessing()
	assert.True(t, s.Processing())
	s.EndProcessing()
	assert.True(t, s.Processing())
	s.EndProcessing()
	assert.False(t, s.Processing())

	s.EndProcessing()
	assert.False(t, s.Processing(), "unpaired end never goes negative")
	s.BeginProcessing()
	assert.True(t, s.Processing())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore(t, 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(result(fmt.Sprintf("r%d", i), 90, 1000, "Wheel"))
			_ = s.Recent(5)
			_ = s.PartDistribution(5)
			_ = s.Stats()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
	assert.Equal(t, 20, s.Stats().TotalAnalyses)
	assert.InDelta(t, 90, s.Stats().AverageAccuracy, 1e-9)
}
