package rsm

import (
	"context"
	"time"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
)

// maybeStartReader launches a one-shot log-reading task when there is
// committed log beyond what has already been read. Only ever
// one reader task runs at a time per Host.
func (h *Host) maybeStartReader() {
	if h.readerRunning || h.availableSeqno <= h.readSeqno {
		return
	}
	h.readerRunning = true
	from, to, name := h.readSeqno, h.availableSeqno, h.name

	h.wg.Add(1)
	go h.runReader(h.ctx, from, to, name)
}

func (h *Host) runReader(ctx context.Context, from, to api.Seqno, name string) {
	defer h.wg.Done()

	entries, err := h.agent.GetLog(ctx)
	if err != nil {
		h.deliverReader(readerDelivery{err: err})
		return
	}

	filtered := make([]api.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Seqno <= from || e.Seqno > to {
			continue
		}
		switch v := e.Value.(type) {
		case api.RSMCommand:
			if v.RSMName == name {
				filtered = append(filtered, e)
			}
		case api.ConfigEntry:
			filtered = append(filtered, e)
		}
	}
	h.deliverReader(readerDelivery{highSeqno: to, entries: filtered})
}

func (h *Host) deliverReader(rd readerDelivery) {
	select {
	case h.readerCh <- rd:
	case <-h.ctx.Done():
	}
}

// onReaderDelivery is run on the actor goroutine when a reader task
// finishes. A reader error is fatal to the host: it may mean the local
// log is corrupt or unreachable, and there is no safe partial-progress
// state to fall back to.
func (h *Host) onReaderDelivery(rd readerDelivery) {
	h.readerRunning = false

	if rd.err != nil {
		h.metrics.IncReaderRestart(h.name)
		h.fatal(fatalError{reason: "reader_died", cause: rd.err})
		return
	}

	for _, e := range rd.entries {
		h.applyEntry(e)
	}
	h.readSeqno = rd.highSeqno
	h.revTable.Publish(h.name, h.appliedRevision())
	h.checkWaitForSeqno()
	h.scheduleReaderRestart()
}

// scheduleReaderRestart starts the next reader task after
// HostTimings.ReaderRestartBackoff, rather than immediately, so a log
// that keeps growing under sustained load doesn't turn into a tight
// loop of one-entry reader tasks.
func (h *Host) scheduleReaderRestart() {
	if h.availableSeqno <= h.readSeqno {
		return
	}
	if h.cfg.Timings.ReaderRestartBackoff <= 0 {
		h.maybeStartReader()
		return
	}
	time.AfterFunc(h.cfg.Timings.ReaderRestartBackoff, func() {
		h.enqueue(&restartReaderRequest{}, 0)
	})
}

type fatalError struct {
	reason string
	cause  error
}

func (e fatalError) Error() string { return e.reason + ": " + e.cause.Error() }
func (e fatalError) Unwrap() error { return e.cause }

func (h *Host) fatal(reason error) {
	h.logger.Error("rsm host terminating", logger.ErrAttr(reason))
	if h.fatalReason == nil {
		h.fatalReason = reason
	}
	h.cancel()
}
