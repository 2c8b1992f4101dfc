package failover

import (
	"time"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
)

// DefaultConfig mirrors the teacher's DefaultConfig for the RPC-timeout
// heavy pieces of the stack: fixed, generous per-phase timeouts rather
// than a single end-to-end one, since each phase of a failover attempt
// has very different latency characteristics. The three values are the
// protocol's own constants, not tunables.
func DefaultConfig() *api.CoordinatorConfig {
	return &api.CoordinatorConfig{
		Log: api.LoggerCfg{Env: logger.Dev},
		Metrics: api.MetricsCfg{
			Enabled: true,
		},
		StoreBranchTimeout:   15 * time.Second,
		CleanupBranchTimeout: 5 * time.Second,
		CancelBranchTimeout:  15 * time.Second,
	}
}

func TestsConfig() *api.CoordinatorConfig {
	return &api.CoordinatorConfig{
		Log: api.LoggerCfg{Env: logger.Dev},
		Metrics: api.MetricsCfg{
			Enabled: false,
		},
		StoreBranchTimeout:   100 * time.Millisecond,
		CleanupBranchTimeout: 100 * time.Millisecond,
		CancelBranchTimeout:  100 * time.Millisecond,
	}
}
