package speech

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metrics holds the Prometheus collectors updated by stages and the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, eris.New("prometheus registerer is required")
	}

	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "speechwriter",
			Name:      "stage_duration_seconds",
			Help:      "Backend call latency per pipeline stage.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechwriter",
			Name:      "runs_total",
			Help:      "Pipeline invocations by final outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechwriter",
			Name:      "fallbacks_total",
			Help:      "Stage outputs replaced by their fallback value.",
		}, []string{"stage"}),
	}

	for _, collector := range []prometheus.Collector{m.stageDuration, m.runs, m.fallbacks} {
		if err := reg.Register(collector); err != nil {
			return nil, eris.Wrap(err, "registering speech metrics")
		}
	}

	return m, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return Kind(err)
}

func (m *Metrics) observeStage(stage StageName, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), outcome(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRun(result *Result, err error) {
	if m == nil {
		return
	}

	m.runs.WithLabelValues(outcome(err)).Inc()
	if result == nil {
		return
	}
	if result.TitleFallback {
		m.fallbacks.WithLabelValues(string(StageTitle)).Inc()
	}
	if result.SpeechFallback {
		m.fallbacks.WithLabelValues(string(StageSpeech)).Inc()
	}
}
