package api

import "time"

// Duration is a re-exported alias of time.Duration used throughout the
// public API so callers of package api do not need a second import for
// the handful of signatures that take a caller-supplied timeout.
type Duration = time.Duration
