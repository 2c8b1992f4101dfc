// Package rsm implements the Replicated State Machine Host: an actor
// that drives one user-supplied api.FSM from a locally durable log fed
// by a ConsensusServer collaborator, exposing linearizable commands,
// local-only queries, and leader/quorum-consistent reads.
package rsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
	"github.com/nordhaven/rsmcore/revtable"
)

// Host is the actor. Every field below the mailbox/lifecycle section is
// owned exclusively by the run() goroutine and must never be touched
// from Command/Query/etc, which only ever post a hostRequest and wait.
type Host struct {
	name     string
	self     api.PeerID
	initArgs any
	fsm      api.FSM

	consensus api.ConsensusServer
	agent     api.Agent
	bus       api.EventBus
	revTable  *revtable.Table

	cfg     *api.HostConfig
	logger  *slog.Logger
	metrics api.MetricsRecorder

	reqCh    chan hostRequest
	timerCh  chan syncTimeoutMsg
	readerCh chan readerDelivery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	consensusEvents <-chan api.ConsensusEvent

	// actor-owned state
	modState, modData any

	appliedHistoryID api.HistoryID
	appliedSeqno     api.Seqno
	readSeqno        api.Seqno
	availableSeqno   api.Seqno

	pending   *pendingClients
	syncQueue *syncRevisionQueue
	postponed []hostRequest

	leader leaderState

	readerRunning bool
	metadataCh    <-chan api.Metadata
	unsubscribe   func()

	nextRef     api.Ref
	fatalReason error
}

func (h *Host) appliedRevision() api.Revision {
	return api.Revision{HistoryID: h.appliedHistoryID, Seqno: h.appliedSeqno}
}

func (h *Host) nextRefID() api.Ref {
	h.nextRef++
	return h.nextRef
}

// Start spawns the actor goroutine and blocks until initialization
// (FSM.Init, bus subscription, RegisterRSM) has completed or failed.
func (h *Host) Start() error {
	ready := make(chan error, 1)
	h.wg.Add(1)
	go h.run(ready)
	return <-ready
}

// Stop cancels the actor's context and waits for the actor goroutine
// and any in-flight reader task to exit, bounded by
// HostTimings.ShutdownTimeout. Idempotent.
func (h *Host) Stop() error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(h.cfg.Timings.ShutdownTimeout):
		return fmt.Errorf("rsm %q: shutdown did not complete within %s", h.name, h.cfg.Timings.ShutdownTimeout)
	}
}

func (h *Host) run(ready chan<- error) {
	defer h.wg.Done()

	if err := h.init(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	for {
		select {
		case <-h.ctx.Done():
			reason := h.fatalReason
			if reason == nil {
				reason = h.ctx.Err()
			}
			h.terminate(reason)
			return

		case req := <-h.reqCh:
			req.run(h)

		case md, ok := <-h.metadataCh:
			if !ok {
				h.metadataCh = nil
				continue
			}
			h.onMetadata(md)

		case ev := <-h.consensusEvents:
			h.onConsensusEvent(ev)

		case rd := <-h.readerCh:
			h.onReaderDelivery(rd)

		case to := <-h.timerCh:
			h.onSyncTimeout(to.ref)
		}
	}
}

func (h *Host) init() error {
	state, data, err := h.fsm.Init(h.name, h.initArgs)
	if err != nil {
		return fmt.Errorf("rsm %q: fsm init: %w", h.name, err)
	}
	h.modState, h.modData = state, data

	ch, unsubscribe := h.bus.Subscribe(h.ctx)
	h.metadataCh = ch
	h.unsubscribe = unsubscribe

	res, err := h.consensus.RegisterRSM(h.ctx, h.name, h.self)
	if err != nil {
		return fmt.Errorf("rsm %q: register with consensus server: %w", h.name, err)
	}
	if !res.NoTerm {
		h.logger.Info("registered with an already-established term",
			"rsm", h.name, "history_id", res.HistoryID, "term", res.Term)
	}

	if md, err := h.agent.GetMetadata(h.ctx); err == nil {
		h.availableSeqno = md.CommittedSeqno
	} else {
		h.logger.Warn("initial GetMetadata failed, will pick up committed seqno from the event bus", logger.ErrAttr(err))
	}

	h.revTable.Register(h.name)
	h.revTable.Publish(h.name, h.appliedRevision())

	h.maybeStartReader()
	return nil
}

func (h *Host) onMetadata(md api.Metadata) {
	if md.CommittedSeqno > h.availableSeqno {
		h.availableSeqno = md.CommittedSeqno
	}
	h.maybeStartReader()
}

func (h *Host) terminate(reason error) {
	h.fsm.Terminate(reason, h.appliedRevision(), h.modState, h.modData)
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.revTable.Unregister(h.name)
	h.logger.Info("rsm host terminated", "rsm", h.name, logger.ErrAttr(reason))

	for _, e := range h.syncQueue.releaseUpTo(^api.Seqno(0)) {
		e.timer.Stop()
		e.reply <- ErrStopped
	}
	for _, pc := range h.pending.sweepTermFinished() {
		pc.cmdReply <- commandResult{err: ErrStopped}
	}
	for _, pc := range h.pending.byRef {
		switch pc.kind {
		case kindCommand:
			pc.cmdReply <- commandResult{err: ErrStopped}
		case kindQuorumSync:
			if pc.wantRevision {
				pc.revisionReply <- appliedRevisionResult{err: ErrStopped}
			} else {
				pc.syncReply <- ErrStopped
			}
		}
	}
}

// --- public Command/Query/Sync surface -------------------------------

func (h *Host) Command(cmd []byte, timeout time.Duration) (any, error) {
	reply := make(chan commandResult, 1)
	req := &commandRequest{cmd: cmd, timeout: timeout, reply: reply}
	if err := h.enqueue(req, timeout); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.reply, res.err
	case <-h.deadline(timeout):
		return nil, api.ErrTimeout
	case <-h.ctx.Done():
		return nil, ErrStopped
	}
}

func (h *Host) Query(query any, timeout time.Duration) (any, error) {
	reply := make(chan queryResult, 1)
	req := &queryRequest{query: query, reply: reply}
	if err := h.enqueue(req, timeout); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.reply, res.err
	case <-h.deadline(timeout):
		return nil, api.ErrTimeout
	case <-h.ctx.Done():
		return nil, ErrStopped
	}
}

func (h *Host) SyncRevision(rev api.Revision, timeout time.Duration) error {
	reply := make(chan error, 1)
	req := &syncRevisionRequest{rev: rev, timeout: timeout, reply: reply}
	if err := h.enqueue(req, timeout); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.ctx.Done():
		return ErrStopped
	}
}

func (h *Host) Sync(kind api.ReadKind, timeout time.Duration) error {
	reply := make(chan error, 1)
	req := &syncRequest{kind: kind, timeout: timeout, reply: reply}
	if err := h.enqueue(req, timeout); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.deadline(timeout):
		return api.ErrTimeout
	case <-h.ctx.Done():
		return ErrStopped
	}
}

func (h *Host) GetAppliedRevision(kind api.ReadKind, timeout time.Duration) (api.Revision, error) {
	reply := make(chan appliedRevisionResult, 1)
	req := &appliedRevisionRequest{kind: kind, timeout: timeout, reply: reply}
	if err := h.enqueue(req, timeout); err != nil {
		return api.NoRevision, err
	}
	select {
	case res := <-reply:
		return res.rev, res.err
	case <-h.deadline(timeout):
		return api.NoRevision, api.ErrTimeout
	case <-h.ctx.Done():
		return api.NoRevision, ErrStopped
	}
}

func (h *Host) GetLocalRevision() (api.Revision, error) {
	return h.revTable.Get(h.name)
}

// Notify delivers msg to the FSM's HandleInfo callback on the actor
// goroutine. Fire-and-forget: callers that need to know the message was
// actually handled should have the FSM reply through their own
// mechanism (e.g. a channel closed over in msg).
func (h *Host) Notify(msg any) error {
	return h.enqueue(&infoRequest{msg: msg}, 0)
}

// enqueue posts req to the mailbox, bounded by timeout (0 means no
// enqueue-side bound; the caller's own select still bounds the wait).
func (h *Host) enqueue(req hostRequest, timeout time.Duration) error {
	select {
	case h.reqCh <- req:
		return nil
	case <-h.deadline(timeout):
		return api.ErrTimeout
	case <-h.ctx.Done():
		return ErrStopped
	}
}

func (h *Host) deadline(timeout time.Duration) <-chan time.Time {
	if timeout <= 0 {
		return nil
	}
	return time.After(timeout)
}
