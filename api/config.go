package api

import (
	"time"

	"github.com/nordhaven/rsmcore/pkg/logger"
)

// HostConfig configures one RSM Host instance.
type HostConfig struct {
	Log     LoggerCfg
	Timings HostTimings
	Metrics MetricsCfg
}

// LoggerCfg mirrors the teacher's own per-component logger config.
type LoggerCfg struct {
	Env logger.Enviroment
}

// MetricsCfg selects the recorder a Host or Coordinator builds for
// itself when none is supplied: a Prometheus-backed one when Enabled,
// metrics.Noop otherwise. A recorder passed explicitly (WithMetrics) is
// used as given, whatever Enabled says.
type MetricsCfg struct {
	Enabled bool
}

// HostTimings collects every duration the RSM Host uses on its own,
// independent of caller-supplied timeouts.
type HostTimings struct {
	// SyncRevisionDefaultTimeout is used by sync_revision callers that
	// pass a zero timeout.
	SyncRevisionDefaultTimeout time.Duration

	// ReaderRestartBackoff bounds how quickly a new log-reader task is
	// spawned after the previous one's delivery, avoiding a tight loop
	// when the agent's log keeps growing under sustained load.
	ReaderRestartBackoff time.Duration

	// ShutdownTimeout bounds how long Stop waits for the actor loop and
	// reader goroutine to drain.
	ShutdownTimeout time.Duration
}

// CoordinatorConfig configures the Failover Coordinator's fixed
// per-phase RPC timeouts (spec.md §4.2).
type CoordinatorConfig struct {
	Log     LoggerCfg
	Metrics MetricsCfg

	StoreBranchTimeout   time.Duration
	CleanupBranchTimeout time.Duration
	CancelBranchTimeout  time.Duration
}
