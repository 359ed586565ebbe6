package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framesched/internal/clock"
	"framesched/internal/phase"
	"framesched/internal/scheduler"
)

var _ scheduler.Observer = (*Observer)(nil)

func TestObserverRecordsSchedulerActivity(t *testing.T) {
	o := New(false)
	s := scheduler.New(scheduler.Options{Observer: o})
	defer s.Shutdown()

	require.True(t, s.AddUpdate(&scheduler.UpdateFunc{ID: s.NewHandle(), Fn: func(clock.Frame) error {
		return errors.New("nope")
	}}))
	require.True(t, s.AddUpdate(&scheduler.UpdateFunc{ID: s.NewHandle(), Fn: func(clock.Frame) error {
		panic("bad")
	}}))
	require.NoError(t, s.Frame(16*time.Millisecond))
	require.NoError(t, s.Frame(16*time.Millisecond))

	assert.Equal(t, 2.0, testutil.ToFloat64(o.frames))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.faults.WithLabelValues("update", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.faults.WithLabelValues("update", "panic")))
	assert.Equal(t, 4.0, testutil.ToFloat64(o.phaseVisited.WithLabelValues("update")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.registrySize.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.timeScale))
}

func TestRegistryLabelGroupsBackground(t *testing.T) {
	o := New(false)
	o.RegistrySize(phase.SeparateThreadUpdate, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(o.registrySize.WithLabelValues("background")))
}

func TestPhaseSeriesExistBeforeFirstFrame(t *testing.T) {
	o := New(false)
	assert.Equal(t, len(phase.All), testutil.CollectAndCount(o.phaseVisited))
	// update, fixed_update, late_update, background
	assert.Equal(t, 4, testutil.CollectAndCount(o.registrySize))
	assert.Zero(t, testutil.ToFloat64(o.phaseVisited.WithLabelValues("separate_thread_complete")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	o := New(true)
	o.TimeScale(0.5)

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, "framesched_scheduler_time_scale 0.5"), body)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
