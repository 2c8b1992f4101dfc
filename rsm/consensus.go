package rsm

import (
	"fmt"

	"github.com/nordhaven/rsmcore/api"
)

// onConsensusEvent dispatches whatever the ConsensusServer collaborator
// delivered on its event channel: a term transition, or a tagged reply
// to an earlier RsmCommand/SyncQuorum call.
func (h *Host) onConsensusEvent(ev api.ConsensusEvent) {
	switch {
	case ev.TermEstablished:
		h.onTermEstablished(ev.HistoryID, ev.Term, ev.EstablishSeqno)
	case ev.TermFinished:
		h.onTermFinished(ev.HistoryID, ev.Term)
	default:
		h.onTaggedReply(ev)
	}
}

func (h *Host) onTaggedReply(ev api.ConsensusEvent) {
	pc, ok := h.pending.byRef[ev.Tag]
	if !ok {
		return
	}
	delete(h.pending.byRef, ev.Tag)

	switch pc.kind {
	case kindCommand:
		h.onCommandAck(pc, ev)
	case kindQuorumSync:
		h.onQuorumAck(pc, ev)
	}
}

// onCommandAck handles Accepted(seqno): by the time the consensus
// server reports acceptance the entry is already committed and durable,
// so the leader that submitted it doesn't need to wait for the
// metadata bus to learn its own entry is readable — that path exists
// for followers picking up entries some other replica produced. Bump
// availableSeqno here and kick the reader directly.
func (h *Host) onCommandAck(pc *pendingClient, ev api.ConsensusEvent) {
	if ev.Err != nil {
		pc.cmdReply <- commandResult{err: ev.Err}
		return
	}
	if !h.pending.accept(pc, ev.Seqno) {
		h.logger.Error("consensus server double-accepted a seqno",
			"seqno", ev.Seqno, "rsm", h.name)
		pc.cmdReply <- commandResult{err: fmt.Errorf("%w: duplicate accept at seqno %d", api.ErrLeaderError, ev.Seqno)}
		return
	}
	if ev.Seqno > h.availableSeqno {
		h.availableSeqno = ev.Seqno
	}
	h.maybeStartReader()
}

func (h *Host) onQuorumAck(pc *pendingClient, ev api.ConsensusEvent) {
	if ev.Err != nil {
		err := fmt.Errorf("%w: %v", api.ErrLeaderError, ev.Err)
		if pc.wantRevision {
			pc.revisionReply <- appliedRevisionResult{err: err}
		} else {
			pc.syncReply <- err
		}
		return
	}
	if pc.wantRevision {
		pc.revisionReply <- appliedRevisionResult{rev: h.appliedRevision()}
	} else {
		pc.syncReply <- nil
	}
}
