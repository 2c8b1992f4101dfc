package failover

import (
	"log/slog"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
	"github.com/nordhaven/rsmcore/pkg/metrics"
)

// NewDefault builds a Coordinator with DefaultConfig, a default logger
// and the recorder DefaultConfig's Metrics setting selects, mirroring
// the RSM Host builder's defaults without a fluent interface — Coordinator
// has no optional post-construction reconfiguration, so a builder
// object would only add ceremony.
func NewDefault(self api.PeerID, agent api.Agent) *Coordinator {
	cfg := DefaultConfig()
	log := logger.NewLogger(cfg.Log.Env, false).With(slog.String("component", "failover"))
	var rec api.CoordinatorMetricsRecorder = metrics.Noop{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewCoordinatorRecorder()
	}
	return New(self, agent, cfg, log, rec)
}
