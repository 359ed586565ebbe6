package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"framesched/internal/clock"
	"framesched/internal/phase"
	"framesched/internal/worker"
)

const (
	namespace = "framesched"
	subsystem = "scheduler"
)

// Observer records scheduler measurements into its own registry.
type Observer struct {
	reg *prometheus.Registry

	phaseDuration *prometheus.HistogramVec
	phaseVisited  *prometheus.CounterVec
	faults        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cycleWait     prometheus.Histogram
	timeScale     prometheus.Gauge
	registrySize  *prometheus.GaugeVec
	frames        prometheus.Counter
	fixedSteps    prometheus.Counter
}

// New builds the observer. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Observer {
	o := &Observer{
		reg: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_duration_seconds",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"phase"}),
		phaseVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_invocations_total",
		}, []string{"phase"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "faults_total",
		}, []string{"phase", "kind"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycle_run_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		cycleWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycle_join_wait_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		timeScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "time_scale",
		}),
		registrySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registered",
		}, []string{"phase"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_total",
		}),
		fixedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fixed_steps_total",
		}),
	}
	o.reg.MustRegister(
		o.phaseDuration, o.phaseVisited, o.faults,
		o.cycleDuration, o.cycleWait,
		o.timeScale, o.registrySize, o.frames, o.fixedSteps,
	)
	if withRuntime {
		o.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	// Export every phase at zero before its first frame.
	for _, p := range phase.All {
		o.phaseVisited.WithLabelValues(p.String())
		o.registrySize.WithLabelValues(registryLabel(p))
	}
	o.timeScale.Set(1)
	return o
}

func (o *Observer) Registry() *prometheus.Registry { return o.reg }

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{Registry: o.reg})
}

func (o *Observer) PhaseDone(p phase.Phase, took time.Duration, visited, _ int) {
	o.phaseDuration.WithLabelValues(p.String()).Observe(took.Seconds())
	o.phaseVisited.WithLabelValues(p.String()).Add(float64(visited))
}

func (o *Observer) Fault(f *phase.Fault) {
	kind := "error"
	if f.Panic != nil {
		kind = "panic"
	}
	o.faults.WithLabelValues(f.Phase.String(), kind).Inc()
}

func (o *Observer) CycleJoined(r worker.Result) {
	o.cycleDuration.Observe(r.RunDuration.Seconds())
	o.cycleWait.Observe(r.Wait.Seconds())
}

func (o *Observer) FrameDone(_ clock.Frame, fixedSteps int) {
	o.frames.Inc()
	o.fixedSteps.Add(float64(fixedSteps))
}

func (o *Observer) TimeScale(v float64) { o.timeScale.Set(v) }

func (o *Observer) RegistrySize(p phase.Phase, n int) {
	o.registrySize.WithLabelValues(registryLabel(p)).Set(float64(n))
}

// registryLabel names the registry a phase belongs to; the three background
// phases share one.
func registryLabel(p phase.Phase) string {
	switch p {
	case phase.MainThreadUpdate, phase.SeparateThreadUpdate, phase.SeparateThreadComplete:
		return "background"
	default:
		return p.String()
	}
}
