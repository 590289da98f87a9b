package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tafawoq"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session lifecycle operations by kind, action and outcome",
	}, []string{"kind", "action", "outcome"})

	quotaDenials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exam_quota_denials_total",
		Help:      "Exam creations rejected by the weekly quota",
	})

	pauseConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pause_conflicts_total",
		Help:      "Pause requests rejected because another session of the kind is paused",
	}, []string{"kind"})

	expiredSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expired_sessions_abandoned_total",
		Help:      "Overdue exams abandoned by the expiry sweep",
	})

	rewardOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reward_outcomes_total",
		Help:      "Reward trigger results by content kind and outcome",
	}, []string{"kind", "outcome"})

	shareResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "share_credit_resets_total",
		Help:      "Ledgers whose monthly share credits were reset",
	}, []string{"tier"})

	completionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completion_events_total",
		Help:      "Queued completion events by processing result",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SessionTransition(kind, action, outcome string) {
	sessionTransitions.WithLabelValues(kind, action, outcome).Inc()
}

func QuotaDenied() { quotaDenials.Inc() }

func PauseConflict(kind string) { pauseConflicts.WithLabelValues(kind).Inc() }

func SessionExpired() { expiredSessions.Inc() }

func RewardOutcome(kind, outcome string) { rewardOutcomes.WithLabelValues(kind, outcome).Inc() }

func ShareCreditsReset(tier string, n int64) {
	shareResets.WithLabelValues(tier).Add(float64(n))
}

func CompletionEvent(result string) { completionEvents.WithLabelValues(result).Inc() }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps websocket upgrades working behind the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by the matched chi route pattern,
// so ids in the path do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}
