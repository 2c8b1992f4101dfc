// Package metrics is the Prometheus-backed implementation of
// api.MetricsRecorder. Grounded on the package-level vec-of-metrics
// style used elsewhere in the pack rather than the teacher's own
// hand-rolled JSON status endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nordhaven/rsmcore/api"
)

// Recorder registers its own metric set into whatever prometheus.Registerer
// it is given; NewRecorder registers into prometheus.DefaultRegisterer.
type Recorder struct {
	appliedSeqno       *prometheus.GaugeVec
	commandsTotal      *prometheus.CounterVec
	syncRevisionQueued *prometheus.GaugeVec
	readerRestarts     *prometheus.CounterVec
}

// NewRecorder builds a Recorder and registers it with
// prometheus.DefaultRegisterer.
func NewRecorder() *Recorder {
	return newRecorder(prometheus.DefaultRegisterer)
}

// NewRecorderFor is used by tests that don't want to pollute the
// default registry.
func NewRecorderFor(reg prometheus.Registerer) *Recorder {
	return newRecorder(reg)
}

func newRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		appliedSeqno: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rsmcore",
			Name:      "applied_seqno",
			Help:      "Last seqno applied to the FSM, per RSM.",
		}, []string{"rsm"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rsmcore",
			Name:      "commands_total",
			Help:      "Total commands handled by an RSM Host, by result.",
		}, []string{"rsm", "result"}),
		syncRevisionQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rsmcore",
			Name:      "sync_revision_pending",
			Help:      "Number of sync_revision callers currently parked, per RSM.",
		}, []string{"rsm"}),
		readerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rsmcore",
			Name:      "reader_restarts_total",
			Help:      "Total log-reader crashes observed, per RSM.",
		}, []string{"rsm"}),
	}
	reg.MustRegister(r.appliedSeqno, r.commandsTotal, r.syncRevisionQueued, r.readerRestarts)
	return r
}

func (r *Recorder) SetAppliedSeqno(rsm string, seqno api.Seqno) {
	r.appliedSeqno.WithLabelValues(rsm).Set(float64(seqno))
}

func (r *Recorder) IncCommand(rsm string, result string) {
	r.commandsTotal.WithLabelValues(rsm, result).Inc()
}

func (r *Recorder) SetSyncRevisionPending(rsm string, n int) {
	r.syncRevisionQueued.WithLabelValues(rsm).Set(float64(n))
}

func (r *Recorder) IncReaderRestart(rsm string) {
	r.readerRestarts.WithLabelValues(rsm).Inc()
}

// CoordinatorRecorder is the Prometheus-backed implementation of
// api.CoordinatorMetricsRecorder.
type CoordinatorRecorder struct {
	attemptsTotal *prometheus.CounterVec
	duration      prometheus.Histogram
	cancelTotal   *prometheus.CounterVec
}

func NewCoordinatorRecorder() *CoordinatorRecorder {
	return newCoordinatorRecorder(prometheus.DefaultRegisterer)
}

func NewCoordinatorRecorderFor(reg prometheus.Registerer) *CoordinatorRecorder {
	return newCoordinatorRecorder(reg)
}

func newCoordinatorRecorder(reg prometheus.Registerer) *CoordinatorRecorder {
	r := &CoordinatorRecorder{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rsmcore",
			Subsystem: "failover",
			Name:      "attempts_total",
			Help:      "Total failover attempts, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rsmcore",
			Subsystem: "failover",
			Name:      "duration_seconds",
			Help:      "Wall-clock time spent inside one failover attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
		cancelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rsmcore",
			Subsystem: "failover",
			Name:      "cancel_total",
			Help:      "Total try_cancel calls, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(r.attemptsTotal, r.duration, r.cancelTotal)
	return r
}

func (r *CoordinatorRecorder) IncFailoverAttempt(result string) {
	r.attemptsTotal.WithLabelValues(result).Inc()
}

func (r *CoordinatorRecorder) ObserveFailoverDuration(seconds float64) {
	r.duration.Observe(seconds)
}

func (r *CoordinatorRecorder) IncFailoverCancel(result string) {
	r.cancelTotal.WithLabelValues(result).Inc()
}

// Noop satisfies both api.MetricsRecorder and api.CoordinatorMetricsRecorder
// without touching Prometheus, for callers that build with
// MetricsCfg.Enabled == false.
type Noop struct{}

func (Noop) SetAppliedSeqno(string, api.Seqno)  {}
func (Noop) IncCommand(string, string)          {}
func (Noop) SetSyncRevisionPending(string, int) {}
func (Noop) IncReaderRestart(string)            {}

func (Noop) IncFailoverAttempt(string)          {}
func (Noop) ObserveFailoverDuration(float64)    {}
func (Noop) IncFailoverCancel(string)           {}
