package rsm

import "github.com/nordhaven/rsmcore/api"

type pendingKind int

const (
	kindCommand pendingKind = iota
	kindCommandAccepted
	kindQuorumSync
)

// pendingClient is one entry of the pending_clients map: a client parked
// waiting on either a consensus-server ack (kindCommand, kindQuorumSync)
// or the eventual local apply of an already-accepted seqno
// (kindCommandAccepted).
type pendingClient struct {
	kind pendingKind
	ref  api.Ref

	// kindCommand / kindCommandAccepted
	cmdReply chan commandResult

	// kindQuorumSync: exactly one of syncReply/revisionReply is set,
	// depending on whether the caller wanted the revision back.
	wantRevision  bool
	syncReply     chan error
	revisionReply chan appliedRevisionResult
}

// pendingClients is the actor-owned pending_clients map, plus the
// seqno-indexed view used once a command has been accepted.
type pendingClients struct {
	byRef   map[api.Ref]*pendingClient
	bySeqno map[api.Seqno]*pendingClient
}

func newPendingClients() *pendingClients {
	return &pendingClients{
		byRef:   make(map[api.Ref]*pendingClient),
		bySeqno: make(map[api.Seqno]*pendingClient),
	}
}

func (p *pendingClients) registerCommand(ref api.Ref, reply chan commandResult) {
	p.byRef[ref] = &pendingClient{kind: kindCommand, ref: ref, cmdReply: reply}
}

func (p *pendingClients) registerQuorum(ref api.Ref, wantRevision bool, syncReply chan error, revisionReply chan appliedRevisionResult) {
	p.byRef[ref] = &pendingClient{
		kind:          kindQuorumSync,
		ref:           ref,
		wantRevision:  wantRevision,
		syncReply:     syncReply,
		revisionReply: revisionReply,
	}
}

// accept moves pc into the seqno-indexed map once the consensus server
// has accepted it at seqno. Returns false if another client is already
// parked at that seqno, which the caller should treat as a
// consensus-server protocol violation and log rather than panic on.
func (p *pendingClients) accept(pc *pendingClient, seqno api.Seqno) bool {
	if _, exists := p.bySeqno[seqno]; exists {
		return false
	}
	if p.byRef[pc.ref] == pc {
		delete(p.byRef, pc.ref)
	}
	pc.kind = kindCommandAccepted
	p.bySeqno[seqno] = pc
	return true
}

// deliverApplied hands the ApplyCommand reply to whoever is parked at
// seqno, provided term still matches the current leader term. If the
// term has moved on, the entry is left in place for sweepTermFinished.
func (p *pendingClients) deliverApplied(seqno api.Seqno, isCurrentTerm bool, reply any) {
	pc, ok := p.bySeqno[seqno]
	if !ok {
		return
	}
	if !isCurrentTerm {
		return
	}
	delete(p.bySeqno, seqno)
	pc.cmdReply <- commandResult{reply: reply}
}

// sweepTermFinished detaches and returns every kindCommandAccepted
// client still parked in bySeqno; the caller replies leader_lost to
// each. Entries still in byRef (unaccepted commands, quorum syncs) are
// left for the consensus server to eventually resolve.
func (p *pendingClients) sweepTermFinished() []*pendingClient {
	swept := make([]*pendingClient, 0, len(p.bySeqno))
	for seqno, pc := range p.bySeqno {
		swept = append(swept, pc)
		delete(p.bySeqno, seqno)
	}
	return swept
}
