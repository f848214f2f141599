// Package metrics exposes Prometheus counters for quiz sessions and backend calls.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithNamespace overrides the metric namespace.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithRegistry registers metrics on reg instead of the default registerer.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(r *Recorder) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// Recorder owns all service metrics. A nil *Recorder records nothing.
type Recorder struct {
	namespace string
	registry  prometheus.Registerer

	sessionsStarted    prometheus.Counter
	sessionsFinished   *prometheus.CounterVec
	submissionFailures prometheus.Counter
	visibilityWarnings prometheus.Counter
	backendRequests    *prometheus.CounterVec
	tokenRefreshes     *prometheus.CounterVec
}

func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "gig_geni",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.sessionsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "quiz",
		Name:      "sessions_started_total",
		Help:      "Quiz sessions moved from idle to active.",
	})
	r.sessionsFinished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "quiz",
		Name:      "sessions_finished_total",
		Help:      "Quiz sessions finished, by reason.",
	}, []string{"reason"})
	r.submissionFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "quiz",
		Name:      "submission_failures_total",
		Help:      "Quiz submissions the scoring backend rejected or never answered.",
	})
	r.visibilityWarnings = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "quiz",
		Name:      "visibility_warnings_total",
		Help:      "Tab-hidden events reported during active quizzes.",
	})
	r.backendRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Requests to the external backend by endpoint and status code.",
	}, []string{"endpoint", "status"})
	r.tokenRefreshes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "backend",
		Name:      "token_refreshes_total",
		Help:      "Token refresh attempts by result.",
	}, []string{"result"})
	return r
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.sessionsStarted.Inc()
}

func (r *Recorder) SessionFinished(reason string) {
	if r == nil {
		return
	}
	r.sessionsFinished.WithLabelValues(reason).Inc()
}

func (r *Recorder) SubmissionFailed() {
	if r == nil {
		return
	}
	r.submissionFailures.Inc()
}

func (r *Recorder) VisibilityWarning() {
	if r == nil {
		return
	}
	r.visibilityWarnings.Inc()
}

// BackendRequest counts one call; status 0 means the request never got a response.
func (r *Recorder) BackendRequest(endpoint string, status int) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.backendRequests.WithLabelValues(endpoint, label).Inc()
}

func (r *Recorder) TokenRefresh(ok bool) {
	if r == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	r.tokenRefreshes.WithLabelValues(result).Inc()
}
