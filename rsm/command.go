package rsm

import "github.com/nordhaven/rsmcore/api"

func (r *commandRequest) run(h *Host) {
	if h.leader.isFollower() {
		h.metrics.IncCommand(h.name, "not_leader")
		r.reply <- commandResult{err: api.ErrNotLeader}
		return
	}

	outcome, newData := h.fsm.HandleCommand(r.cmd, h.appliedRevision(), h.modState, h.modData)
	h.modData = newData
	if !outcome.Apply {
		h.metrics.IncCommand(h.name, "rejected")
		r.reply <- commandResult{reply: outcome.Reply}
		return
	}

	ref := h.nextRefID()
	h.pending.registerCommand(ref, r.reply)
	h.metrics.IncCommand(h.name, "submitted")
	h.consensus.RsmCommand(ref, h.leader.historyID, h.leader.term, h.name, r.cmd)
}
