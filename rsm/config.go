package rsm

import (
	"time"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
)

// DefaultConfig mirrors the teacher's DefaultConfig: sane production
// timings for a Host, structured logging at Dev verbosity until told
// otherwise.
func DefaultConfig() *api.HostConfig {
	return &api.HostConfig{
		Log: api.LoggerCfg{
			Env: logger.Dev,
		},
		Timings: api.HostTimings{
			SyncRevisionDefaultTimeout: 2 * time.Second,
			ReaderRestartBackoff:       200 * time.Millisecond,
			ShutdownTimeout:            3 * time.Second,
		},
		Metrics: api.MetricsCfg{
			Enabled: true,
		},
	}
}

// TestsConfig trims every timing down for fast, deterministic tests.
func TestsConfig() *api.HostConfig {
	return &api.HostConfig{
		Log: api.LoggerCfg{
			Env: logger.Dev,
		},
		Timings: api.HostTimings{
			SyncRevisionDefaultTimeout: 200 * time.Millisecond,
			ReaderRestartBackoff:       5 * time.Millisecond,
			ShutdownTimeout:            500 * time.Millisecond,
		},
		Metrics: api.MetricsCfg{
			Enabled: false,
		},
	}
}
