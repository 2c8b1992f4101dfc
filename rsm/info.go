package rsm

// run delivers msg to FSM.HandleInfo. A stop=true result terminates the
// host exactly like a fatal collaborator error, running the same
// drain-and-Terminate path so pending clients and sync_revision waiters
// get a consistent ErrStopped instead of hanging.
func (r *infoRequest) run(h *Host) {
	newData, stop := h.fsm.HandleInfo(r.msg, h.appliedRevision(), h.modState, h.modData)
	h.modData = newData
	if stop {
		h.fatal(errStoppedByFSM)
	}
}
