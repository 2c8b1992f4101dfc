package api

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the RSM Host and the shared revision
// table (spec.md §7). Callers should compare with errors.Is, never by
// string.
var (
	// ErrNotLeader is returned when a leader-only operation is issued
	// against a host that currently believes it is a follower.
	ErrNotLeader = errors.New("rsmcore: not leader")

	// ErrLeaderLost is returned to a command's caller when the term
	// under which the command was accepted finished before the entry
	// was observed committed.
	ErrLeaderLost = errors.New("rsmcore: leader lost before command committed")

	// ErrLeaderError wraps a generic leader-side propagation failure
	// (e.g. the consensus server rejected a sync_quorum round).
	ErrLeaderError = errors.New("rsmcore: leader error")

	// ErrHistoryMismatch is returned when a supplied revision's history
	// differs from the RSM's currently applied history.
	ErrHistoryMismatch = errors.New("rsmcore: history mismatch")

	// ErrTimeout is returned when a request's caller-supplied timeout,
	// or a sync_revision request's internal timer, fires before the
	// request could be satisfied.
	ErrTimeout = errors.New("rsmcore: timeout")

	// ErrNotRunning is returned by the shared revision table when no
	// host currently has the requested name registered (it was never
	// registered, or its host has terminated and unregistered it).
	ErrNotRunning = errors.New("rsmcore: rsm not running")

	// ErrNoBranch and ErrBadBranch are the two UndoBranch outcomes an
	// Agent implementation must be able to report; the Failover
	// Coordinator treats both as success (idempotent undo).
	ErrNoBranch  = errors.New("rsmcore: no such branch")
	ErrBadBranch = errors.New("rsmcore: bad branch")
)

// ErrNotInPeers is returned by Failover when the local peer is not a
// member of the keep set it was asked to install a branch on.
type ErrNotInPeers struct {
	Self PeerID
	Keep []PeerID
}

func (e *ErrNotInPeers) Error() string {
	return fmt.Sprintf("rsmcore: self %q is not in keep-peers set %v", e.Self, e.Keep)
}

// ErrAborted is returned by Failover when installation of a branch was
// rejected by some peers, whether remote or local.
type ErrAborted struct {
	IncompatiblePeers []PeerID
	FailedPeers       []PeerID
}

func (e *ErrAborted) Error() string {
	return fmt.Sprintf(
		"rsmcore: failover aborted: incompatible_peers=%v failed_peers=%v",
		e.IncompatiblePeers, e.FailedPeers,
	)
}

// ErrFailedPeers is returned by TryCancel when undo_branch could not be
// confirmed on some peers.
type ErrFailedPeers struct {
	Peers []PeerID
}

func (e *ErrFailedPeers) Error() string {
	return fmt.Sprintf("rsmcore: cancel failed on peers %v", e.Peers)
}

// BadBranchError wraps a collaborator-supplied reason for ErrBadBranch.
type BadBranchError struct {
	Reason string
}

func (e *BadBranchError) Error() string {
	return fmt.Sprintf("rsmcore: bad branch: %s", e.Reason)
}

func (e *BadBranchError) Unwrap() error { return ErrBadBranch }

// HistoryMismatchError wraps the peer-reported detail behind a
// StoreBranch history_mismatch outcome.
type HistoryMismatchError struct {
	Reason string
}

func (e *HistoryMismatchError) Error() string {
	if e.Reason == "" {
		return ErrHistoryMismatch.Error()
	}
	return fmt.Sprintf("%s: %s", ErrHistoryMismatch.Error(), e.Reason)
}

func (e *HistoryMismatchError) Unwrap() error { return ErrHistoryMismatch }
