package rsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordhaven/rsmcore/api"
)

func TestSyncRevisionQueue_ReleaseUpToOrdering(t *testing.T) {
	q := newSyncRevisionQueue()
	var refs []api.Ref
	for i, seqno := range []api.Seqno{5, 1, 3, 3, 2} {
		ref := api.Ref(i + 1)
		refs = append(refs, ref)
		q.add(&syncRevisionEntry{seqno: seqno, ref: ref, historyID: "h", reply: make(chan error, 1)})
	}
	require.Equal(t, 5, q.len())

	released := q.releaseUpTo(3)
	require.Len(t, released, 4)
	for i := 1; i < len(released); i++ {
		assert.LessOrEqual(t, released[i-1].seqno, released[i].seqno)
	}
	assert.Equal(t, 1, q.len())
}

func TestSyncRevisionQueue_RemoveByRefIsIdempotent(t *testing.T) {
	q := newSyncRevisionQueue()
	e := &syncRevisionEntry{seqno: 1, ref: 1, historyID: "h", reply: make(chan error, 1)}
	q.add(e)

	got := q.removeByRef(1)
	assert.Same(t, e, got)
	assert.Nil(t, q.removeByRef(1))
	assert.Equal(t, 0, q.len())
}

func TestSyncRevisionQueue_ReleaseDivergedHistoryKeepsCurrent(t *testing.T) {
	q := newSyncRevisionQueue()
	q.add(&syncRevisionEntry{seqno: 1, ref: 1, historyID: "old", reply: make(chan error, 1)})
	q.add(&syncRevisionEntry{seqno: 2, ref: 2, historyID: "new", reply: make(chan error, 1)})

	released := q.releaseDivergedHistory("new")
	require.Len(t, released, 1)
	assert.Equal(t, api.HistoryID("old"), released[0].historyID)
	assert.Equal(t, 1, q.len())
}
