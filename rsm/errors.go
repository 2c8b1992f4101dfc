package rsm

import "errors"

// ErrStopped is returned by a Host's public methods when the call
// raced against Stop() and the actor loop exited before it could be
// serviced.
var ErrStopped = errors.New("rsmcore: host stopped")

// errStoppedByFSM is the fatal reason recorded when FSM.HandleInfo
// returns stop=true, distinguishing a self-requested shutdown from an
// external Stop() call in logs.
var errStoppedByFSM = errors.New("rsmcore: fsm requested stop")
