package rsm

import "github.com/nordhaven/rsmcore/api"

// applyEntry feeds one committed log entry to the FSM in strict seqno
// order. Both RSMCommand and ConfigEntry values are handled here; the
// reader has already filtered out entries for other RSMs.
func (h *Host) applyEntry(e api.LogEntry) {
	switch v := e.Value.(type) {
	case api.RSMCommand:
		h.applyCommand(e, v)
	case api.ConfigEntry:
		h.applyConfigEntry(e)
	default:
		h.logger.Error("applyEntry: unknown log entry value type", "rsm", h.name, "seqno", e.Seqno)
	}
}

func (h *Host) applyCommand(e api.LogEntry, v api.RSMCommand) {
	if v.RSMName != h.name {
		h.logger.Error("applyEntry: rsm name mismatch, dropping", "rsm", h.name, "entry_rsm", v.RSMName)
		return
	}
	if e.HistoryID != h.appliedHistoryID {
		h.logger.Error("applyEntry: history mismatch, dropping",
			"rsm", h.name, "applied_history", h.appliedHistoryID, "entry_history", e.HistoryID)
		return
	}

	entryRev := api.Revision{HistoryID: e.HistoryID, Seqno: e.Seqno}
	reply, newState, newData := h.fsm.ApplyCommand(v.Command, entryRev, h.appliedRevision(), h.modState, h.modData)
	h.modState, h.modData = newState, newData
	h.appliedSeqno = e.Seqno

	isCurrentTerm := h.leader.isLeader && h.leader.term == e.Term
	h.pending.deliverApplied(e.Seqno, isCurrentTerm, reply)

	h.metrics.SetAppliedSeqno(h.name, e.Seqno)
	h.metrics.IncCommand(h.name, "applied")
	h.releaseSyncRevisionUpTo()
}

func (h *Host) applyConfigEntry(e api.LogEntry) {
	if e.HistoryID == h.appliedHistoryID {
		// Already living in this history; a ConfigEntry that doesn't
		// move the boundary is a no-op for applied state.
		return
	}
	h.appliedHistoryID = e.HistoryID
	h.appliedSeqno = e.Seqno
	h.logger.Info("adopted new history", "rsm", h.name, "history_id", e.HistoryID, "seqno", e.Seqno)
	h.sweepSyncRevisionDivergedHistory()
}
