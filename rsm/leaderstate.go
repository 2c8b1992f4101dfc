package rsm

import "github.com/nordhaven/rsmcore/api"

// leaderStatus is the sub-state of leaderState.isLeader==true: a leader
// term is established once the host has locally applied up to the
// consensus server's establish_seqno; before that it is still catching
// up on entries from a term it did not itself begin.
type leaderStatus int

const (
	statusWaitForSeqno leaderStatus = iota
	statusEstablished
)

// leaderState is Follower | Leader{WaitForSeqno(S) | Established}.
type leaderState struct {
	isLeader  bool
	historyID api.HistoryID
	term      api.Term
	status    leaderStatus
	waitSeqno api.Seqno
}

func followerState() leaderState { return leaderState{} }

func (l leaderState) isFollower() bool  { return !l.isLeader }
func (l leaderState) established() bool { return l.isLeader && l.status == statusEstablished }

// onTermEstablished handles a ConsensusEvent with TermEstablished set.
func (h *Host) onTermEstablished(historyID api.HistoryID, term api.Term, establishSeqno api.Seqno) {
	st := leaderState{isLeader: true, historyID: historyID, term: term, waitSeqno: establishSeqno}
	if h.appliedSeqno >= establishSeqno {
		st.status = statusEstablished
	} else {
		st.status = statusWaitForSeqno
	}
	h.leader = st
	h.logger.Info("leader term established",
		"history_id", historyID, "term", term, "wait_seqno", establishSeqno, "status", st.status)

	if st.status == statusEstablished {
		h.releasePostponed()
	}
}

// onTermFinished handles a ConsensusEvent with TermFinished set.
func (h *Host) onTermFinished(historyID api.HistoryID, term api.Term) {
	if !h.leader.isLeader || h.leader.historyID != historyID || h.leader.term != term {
		h.logger.Warn("term_finished for a non-current term, ignoring",
			"history_id", historyID, "term", term)
		return
	}
	for _, pc := range h.pending.sweepTermFinished() {
		pc.cmdReply <- commandResult{err: api.ErrLeaderLost}
	}
	h.leader = followerState()
	h.logger.Info("leader term finished", "history_id", historyID, "term", term)
}

// checkWaitForSeqno is called after each reader delivery is applied; it flips
// WaitForSeqno -> Established once the host has caught up.
func (h *Host) checkWaitForSeqno() {
	if h.leader.isLeader && h.leader.status == statusWaitForSeqno && h.appliedSeqno >= h.leader.waitSeqno {
		h.leader.status = statusEstablished
		h.logger.Info("leader term established after catch-up",
			"history_id", h.leader.historyID, "term", h.leader.term)
		h.releasePostponed()
	}
}

// releasePostponed replays every quorum/applied-revision read that
// arrived while the leader was still in WaitForSeqno.
func (h *Host) releasePostponed() {
	postponed := h.postponed
	h.postponed = nil
	for _, req := range postponed {
		req.run(h)
	}
}
