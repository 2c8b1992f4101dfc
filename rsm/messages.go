package rsm

import (
	"time"

	"github.com/nordhaven/rsmcore/api"
)

// hostRequest is a message sent through a Host's mailbox (reqCh). Each
// concrete type carries its own reply channel and knows how to satisfy
// itself against actor-owned state; run must only ever be called from
// the Host's own actor goroutine.
type hostRequest interface {
	run(h *Host)
}

type commandRequest struct {
	cmd     []byte
	timeout time.Duration
	reply   chan commandResult
}

type commandResult struct {
	reply any
	err   error
}

type queryRequest struct {
	query any
	reply chan queryResult
}

type queryResult struct {
	reply any
	err   error
}

// infoRequest delivers an out-of-band message to FSM.HandleInfo. It
// carries no reply channel: Notify is fire-and-forget, matching
// gen_server's handle_info cast semantics.
type infoRequest struct {
	msg any
}

type syncRevisionRequest struct {
	rev     api.Revision
	timeout time.Duration
	reply   chan error
}

type syncRequest struct {
	kind    api.ReadKind
	timeout time.Duration
	reply   chan error
}

type appliedRevisionRequest struct {
	kind    api.ReadKind
	timeout time.Duration
	reply   chan appliedRevisionResult
}

type appliedRevisionResult struct {
	rev api.Revision
	err error
}

// syncTimeoutMsg is delivered on a Host's timer channel when a
// sync_revision request's per-request timer fires.
type syncTimeoutMsg struct {
	ref api.Ref
}

// readerDelivery is delivered by a one-shot log-reader task.
type readerDelivery struct {
	highSeqno api.Seqno
	entries   []api.LogEntry
	err       error
}

// restartReaderRequest is self-posted by a time.AfterFunc once
// HostTimings.ReaderRestartBackoff has elapsed since the last reader
// task's delivery.
type restartReaderRequest struct{}

func (r *restartReaderRequest) run(h *Host) {
	h.maybeStartReader()
}
