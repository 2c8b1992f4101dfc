package rsm

import (
	"time"

	"github.com/nordhaven/rsmcore/api"
)

// run implements sync_revision(name, rev, timeout): resolve immediately
// if already caught up or already diverged, otherwise park in the
// ordered wait-queue with its own per-request timer.
func (r *syncRevisionRequest) run(h *Host) {
	if r.rev.HistoryID != h.appliedHistoryID {
		r.reply <- api.ErrHistoryMismatch
		return
	}
	if r.rev.Seqno <= h.appliedSeqno {
		r.reply <- nil
		return
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = h.cfg.Timings.SyncRevisionDefaultTimeout
	}

	ref := h.nextRefID()
	entry := &syncRevisionEntry{
		seqno:     r.rev.Seqno,
		ref:       ref,
		historyID: r.rev.HistoryID,
		reply:     r.reply,
	}
	entry.timer = time.AfterFunc(timeout, func() {
		select {
		case h.timerCh <- syncTimeoutMsg{ref: ref}:
		case <-h.ctx.Done():
		}
	})
	h.syncQueue.add(entry)
	h.metrics.SetSyncRevisionPending(h.name, h.syncQueue.len())
}

func (h *Host) onSyncTimeout(ref api.Ref) {
	e := h.syncQueue.removeByRef(ref)
	if e == nil {
		// Already released by a racing apply or shutdown; the timer
		// firing here is a stale signal.
		return
	}
	e.reply <- api.ErrTimeout
	h.metrics.SetSyncRevisionPending(h.name, h.syncQueue.len())
}

// releaseSyncRevisionUpTo wakes every sync_revision caller now
// satisfied by the just-applied seqno. Only ever called after an
// RSMCommand apply, so every remaining queued entry still matches the
// current history by construction.
func (h *Host) releaseSyncRevisionUpTo() {
	released := h.syncQueue.releaseUpTo(h.appliedSeqno)
	for _, e := range released {
		e.timer.Stop()
		e.reply <- nil
	}
	if len(released) > 0 {
		h.metrics.SetSyncRevisionPending(h.name, h.syncQueue.len())
	}
}

// sweepSyncRevisionDivergedHistory replies history_mismatch to every
// queued sync_revision caller left stranded by a history transition.
func (h *Host) sweepSyncRevisionDivergedHistory() {
	released := h.syncQueue.releaseDivergedHistory(h.appliedHistoryID)
	for _, e := range released {
		e.timer.Stop()
		e.reply <- api.ErrHistoryMismatch
	}
	if len(released) > 0 {
		h.metrics.SetSyncRevisionPending(h.name, h.syncQueue.len())
	}
}
