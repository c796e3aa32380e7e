package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obserrors "github.com/swachh/portal-core/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Portal holds the Prometheus collectors for session and submission flows.
// A nil *Portal is valid and records nothing.
type Portal struct {
	authOutcomes       *prometheus.CounterVec
	submissionOutcomes *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	sessionTransitions *prometheus.CounterVec
	discardedResults   prometheus.Counter
	activeClients      prometheus.Gauge
}

// NewPortal creates the collectors and registers them with reg.
func NewPortal(reg prometheus.Registerer) *Portal {
	p := &Portal{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_outcomes_total",
			Help: "Auth gateway outcomes by operation.",
		}, []string{"operation", "outcome"}),
		submissionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_submission_outcomes_total",
			Help: "Submission outcomes by operation.",
		}, []string{"operation", "outcome", "error_class"}),
		submissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_submission_duration_seconds",
			Help:    "Latency of remote submission writes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_session_transitions_total",
			Help: "Committed session transitions by resulting state.",
		}, []string{"state"}),
		discardedResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_session_discarded_results_total",
			Help: "Session results discarded because a later-dispatched transition had already committed.",
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_active_clients",
			Help: "Portal clients currently held in memory.",
		}),
	}

	reg.MustRegister(
		p.authOutcomes,
		p.submissionOutcomes,
		p.submissionDuration,
		p.sessionTransitions,
		p.discardedResults,
		p.activeClients,
	)
	return p
}

// RecordAuth counts one auth gateway outcome.
func (p *Portal) RecordAuth(operation, outcome string) {
	if p == nil {
		return
	}
	p.authOutcomes.WithLabelValues(operation, outcome).Inc()
}

// SubmissionMetric captures one finished submission for metric emission.
type SubmissionMetric struct {
	Operation string
	Outcome   string
	Duration  time.Duration
	Err       error
}

// RecordSubmission counts a submission outcome and observes its latency.
func (p *Portal) RecordSubmission(in SubmissionMetric) {
	if p == nil {
		return
	}
	class := ""
	if in.Err != nil {
		class = obserrors.Classify(in.Err)
	}
	p.submissionOutcomes.WithLabelValues(in.Operation, in.Outcome, class).Inc()
	if in.Duration > 0 {
		p.submissionDuration.WithLabelValues(in.Operation).Observe(in.Duration.Seconds())
	}
}

// RecordTransition counts a committed session transition.
func (p *Portal) RecordTransition(authenticated bool) {
	if p == nil {
		return
	}
	state := "anonymous"
	if authenticated {
		state = "authenticated"
	}
	p.sessionTransitions.WithLabelValues(state).Inc()
}

// RecordDiscard counts a session result that lost to a later-dispatched one.
func (p *Portal) RecordDiscard() {
	if p == nil {
		return
	}
	p.discardedResults.Inc()
}

// SetActiveClients reports the number of live portal clients.
func (p *Portal) SetActiveClients(n int) {
	if p == nil {
		return
	}
	p.activeClients.Set(float64(n))
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
