package rsm

import (
	"container/heap"
	"time"

	"github.com/nordhaven/rsmcore/api"
)

// syncRevisionEntry is one parked sync_revision(name, rev, timeout)
// caller, ordered by the seqno it is waiting for.
type syncRevisionEntry struct {
	seqno     api.Seqno
	ref       api.Ref
	historyID api.HistoryID
	reply     chan error
	timer     *time.Timer
	index     int
}

type syncRevisionHeap []*syncRevisionEntry

func (h syncRevisionHeap) Len() int { return len(h) }
func (h syncRevisionHeap) Less(i, j int) bool {
	if h[i].seqno != h[j].seqno {
		return h[i].seqno < h[j].seqno
	}
	return h[i].ref < h[j].ref
}
func (h syncRevisionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *syncRevisionHeap) Push(x any) {
	e := x.(*syncRevisionEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *syncRevisionHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// syncRevisionQueue is the ordered wait-queue keyed by (seqno, ref): a
// min-heap so "release everything with seqno <= applied" is a sequence
// of cheap pops instead of a full scan.
type syncRevisionQueue struct {
	h     syncRevisionHeap
	byRef map[api.Ref]*syncRevisionEntry
}

func newSyncRevisionQueue() *syncRevisionQueue {
	return &syncRevisionQueue{byRef: make(map[api.Ref]*syncRevisionEntry)}
}

func (q *syncRevisionQueue) add(e *syncRevisionEntry) {
	heap.Push(&q.h, e)
	q.byRef[e.ref] = e
}

// removeByRef pulls a single entry out, used by the timeout path.
// Returns nil if the entry was already removed or released, so a stale
// timer signal can call this unconditionally.
func (q *syncRevisionQueue) removeByRef(ref api.Ref) *syncRevisionEntry {
	e, ok := q.byRef[ref]
	if !ok {
		return nil
	}
	heap.Remove(&q.h, e.index)
	delete(q.byRef, ref)
	return e
}

// releaseUpTo pops every entry with seqno <= applied.
func (q *syncRevisionQueue) releaseUpTo(applied api.Seqno) []*syncRevisionEntry {
	var released []*syncRevisionEntry
	for len(q.h) > 0 && q.h[0].seqno <= applied {
		e := heap.Pop(&q.h).(*syncRevisionEntry)
		delete(q.byRef, e.ref)
		released = append(released, e)
	}
	return released
}

// releaseDivergedHistory pops every entry recorded against a history
// other than current, for delivery as history_mismatch.
func (q *syncRevisionQueue) releaseDivergedHistory(current api.HistoryID) []*syncRevisionEntry {
	var released []*syncRevisionEntry
	kept := make(syncRevisionHeap, 0, len(q.h))
	for _, e := range q.h {
		if e.historyID != current {
			released = append(released, e)
			delete(q.byRef, e.ref)
		} else {
			kept = append(kept, e)
		}
	}
	q.h = q.h[:0]
	for _, e := range kept {
		heap.Push(&q.h, e)
	}
	return released
}

func (q *syncRevisionQueue) len() int { return len(q.h) }
