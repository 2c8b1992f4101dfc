package api

import (
	"context"
	"time"
)

// ConsensusServer is the interface the RSM Host consumes from the
// collaborator that runs leader election and quorum replication (§6).
//
// RsmCommand and SyncQuorum are fire-and-forget: they must return
// without blocking on the network, and deliver their eventual result by
// sending a ConsensusEvent on the channel supplied at construction time
// (the channel the RSM Host's builder is given). This mirrors the way a real actor never
// blocks its own mailbox waiting on an RPC — the reply arrives as just
// another message.
type ConsensusServer interface {
	// RegisterRSM registers name as being hosted by self and returns
	// the history/term the consensus server currently holds for it, or
	// RegisterResult.NoTerm true if no term has been established yet.
	RegisterRSM(ctx context.Context, name string, self PeerID) (RegisterResult, error)

	// RsmCommand asks the consensus server to replicate cmd for name
	// under the given historyID/term. The result is delivered
	// asynchronously as a ConsensusEvent carrying tag.
	RsmCommand(tag Ref, historyID HistoryID, term Term, name string, cmd []byte)

	// SyncQuorum asks the consensus server to confirm that historyID/term
	// still holds a quorum. The result is delivered asynchronously as a
	// ConsensusEvent carrying tag.
	SyncQuorum(tag Ref, historyID HistoryID, term Term)
}

// RegisterResult is returned by ConsensusServer.RegisterRSM.
type RegisterResult struct {
	HistoryID HistoryID
	Term      Term
	Seqno     Seqno
	NoTerm    bool
}

// ConsensusEvent is delivered by a ConsensusServer implementation onto
// the channel an RSM Host supplied at construction, in reply to a prior
// RsmCommand or SyncQuorum call correlated by Tag.
type ConsensusEvent struct {
	Tag Ref

	// Set when replying to RsmCommand and accepted.
	Accepted bool
	Seqno    Seqno

	// Set when replying to SyncQuorum and the quorum held.
	QuorumOK bool

	// Err is non-nil for either kind of request on failure.
	Err error

	// TermFinished/TermEstablished report a leadership transition that
	// the consensus server observed out-of-band (not correlated to a
	// Tag); exactly one of the boolean event kinds below is set per
	// delivered ConsensusEvent that isn't a Tag reply.
	TermFinished    bool
	TermEstablished bool
	HistoryID       HistoryID
	Term            Term
	// EstablishSeqno is the seqno the leader must have applied before a
	// TermEstablished event's term is usable for quorum reads
	// (spec.md §3, Leader{WaitForSeqno(S)}).
	EstablishSeqno Seqno
}

// Agent is the interface the RSM Host and Failover Coordinator consume
// from the collaborator that persists the log and metadata (§6).
type Agent interface {
	GetMetadata(ctx context.Context) (Metadata, error)
	GetLog(ctx context.Context) ([]LogEntry, error)

	// StoreBranch asks every peer in peers to durably install branch.
	// The returned ok set names peers that succeeded; errs maps every
	// other peer to the error it reported.
	StoreBranch(ctx context.Context, peers []PeerID, branch Branch, timeout time.Duration) (ok []PeerID, errs map[PeerID]error, err error)

	// LocalStoreBranch installs branch on the local node only.
	LocalStoreBranch(ctx context.Context, branch Branch, timeout time.Duration) error

	// UndoBranch asks every peer in peers to remove a previously
	// installed branch identified by historyID. It is idempotent:
	// ErrNoBranch and ErrBadBranch (wrapped, see errors.go) count as
	// success from the caller's perspective, but are still reported so
	// the caller can classify them.
	UndoBranch(ctx context.Context, peers []PeerID, historyID HistoryID, timeout time.Duration) (ok []PeerID, errs map[PeerID]error, err error)
}

// EventBus is the interface the RSM Host consumes to learn about new
// committed metadata (§6). Subscribe returns a channel of Metadata
// events and a function to cancel the subscription; the channel is
// closed after cancel is called.
type EventBus interface {
	Subscribe(ctx context.Context) (<-chan Metadata, func())
}
