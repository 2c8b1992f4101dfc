package failover

import "errors"

// ErrBusy is returned by Failover and TryCancel when another failover
// attempt is already in flight; the coordinator only ever runs one
// attempt at a time (spec.md §4.2).
var ErrBusy = errors.New("rsmcore: failover already in progress")
