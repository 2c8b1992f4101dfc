package rsm

import "github.com/nordhaven/rsmcore/api"

// run implements sync(name, kind, timeout): confirm a linearizable
// point without returning a revision.
func (r *syncRequest) run(h *Host) {
	switch {
	case h.leader.isFollower():
		r.reply <- api.ErrNotLeader
	case h.leader.status == statusWaitForSeqno:
		h.postponed = append(h.postponed, r)
	case r.kind == api.ReadLeader:
		r.reply <- nil
	default:
		ref := h.nextRefID()
		h.pending.registerQuorum(ref, false, r.reply, nil)
		h.consensus.SyncQuorum(ref, h.leader.historyID, h.leader.term)
	}
}

// run implements get_applied_revision(name, kind, timeout): like sync,
// but the reply also carries the revision observed at confirmation.
func (r *appliedRevisionRequest) run(h *Host) {
	switch {
	case h.leader.isFollower():
		r.reply <- appliedRevisionResult{err: api.ErrNotLeader}
	case h.leader.status == statusWaitForSeqno:
		h.postponed = append(h.postponed, r)
	case r.kind == api.ReadLeader:
		r.reply <- appliedRevisionResult{rev: h.appliedRevision()}
	default:
		ref := h.nextRefID()
		h.pending.registerQuorum(ref, true, nil, r.reply)
		h.consensus.SyncQuorum(ref, h.leader.historyID, h.leader.term)
	}
}
