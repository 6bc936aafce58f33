package events

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the Builder registers, grouped
// so Recorder never touches the global DefaultRegisterer directly.
type Metrics struct {
	stageTransitions *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	attemptClass     *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	jobsCompleted    *prometheus.CounterVec
}

// NewMetrics constructs and registers the Builder's metric collectors
// against reg. Pass prometheus.NewRegistry() in tests to avoid colliding
// with the global registry across parallel test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "builder",
			Name:      "stage_transitions_total",
			Help:      "Count of BuildJob stage transitions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "builder",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each BuildJob stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		attemptClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "builder",
			Name:      "attempt_classifications_total",
			Help:      "Count of attempt outcomes by failure class.",
		}, []string{"class"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "builder",
			Name:      "provider_calls_total",
			Help:      "Count of LLM Gateway provider calls by provider, purpose, and outcome.",
		}, []string{"provider", "purpose", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "builder",
			Name:      "provider_latency_seconds",
			Help:      "Latency of LLM Gateway provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "purpose"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "builder",
			Name:      "jobs_completed_total",
			Help:      "Count of BuildJobs that reached a terminal outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.stageTransitions, m.stageDuration, m.attemptClass,
		m.providerCalls, m.providerLatency, m.jobsCompleted)
	return m
}
