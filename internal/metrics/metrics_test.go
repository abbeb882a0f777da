package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordDetection(t *testing.T) {
	r := NewRecorder()

	r.RecordDetection("detect", StatusOK, 800*time.Millisecond, []string{"Wheel", "Wheel", "Hood"}, 2)
	r.RecordDetection("live", StatusCancelled, 0, nil, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.detectionsTotal.WithLabelValues("detect", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.detectionsTotal.WithLabelValues("live", StatusCancelled)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.partsDetected.WithLabelValues("Wheel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.partsDetected.WithLabelValues("Hood")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.candidatesDropped))
	assert.Equal(t, 1, testutil.CollectAndCount(r.detectionDuration))
}

func TestRecorder_Gauges(t *testing.T) {
	r := NewRecorder()

	r.LiveSessionStarted()
	r.LiveSessionStarted()
	r.LiveSessionStopped()
	r.SetHistorySize(12)
	r.SetFeedClients(3)
	r.RecordLiveFrame("stale")
	r.RecordRender(StatusOK, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.liveSessions))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.historySize))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.feedClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.liveFramesTotal.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rendersTotal.WithLabelValues(StatusOK)))
}

func TestRecorder_RegistryExposition(t *testing.T) {
	r := NewRecorder()
	r.SetHistorySize(4)

	expected := `
# HELP carvision_history_results Number of results currently retained in history
# TYPE carvision_history_results gauge
carvision_history_results 4
`
	err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "carvision_history_results")
	require.NoError(t, err)
}

func TestRecorder_SeparateRegistries(t *testing.T) {
	// Two recorders in one process must not collide on registration.
	a := NewRecorder()
	b := NewRecorder()
	a.SetFeedClients(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.feedClients))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordDetection("detect", StatusOK, time.Second, []string{"Wheel"}, 1)
		r.RecordRender(StatusError, time.Millisecond)
		r.RecordLiveFrame("delivered")
		r.LiveSessionStarted()
		r.LiveSessionStopped()
		r.SetHistorySize(1)
		r.SetFeedClients(1)
	})
	assert.Nil(t, r.Registry())
}
