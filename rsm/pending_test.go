package rsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordhaven/rsmcore/api"
)

func TestPendingClients_AcceptMovesToSeqnoIndex(t *testing.T) {
	p := newPendingClients()
	reply := make(chan commandResult, 1)
	p.registerCommand(1, reply)

	pc := p.byRef[1]
	require.NotNil(t, pc)
	require.True(t, p.accept(pc, 10))

	_, stillByRef := p.byRef[1]
	assert.False(t, stillByRef)
	assert.Same(t, pc, p.bySeqno[10])
	assert.Equal(t, kindCommandAccepted, pc.kind)
}

func TestPendingClients_AcceptRejectsDuplicateSeqno(t *testing.T) {
	p := newPendingClients()
	first := &pendingClient{kind: kindCommand, cmdReply: make(chan commandResult, 1)}
	second := &pendingClient{kind: kindCommand, cmdReply: make(chan commandResult, 1)}

	require.True(t, p.accept(first, 10))
	assert.False(t, p.accept(second, 10))
}

func TestPendingClients_DeliverAppliedRequiresCurrentTerm(t *testing.T) {
	p := newPendingClients()
	reply := make(chan commandResult, 1)
	pc := &pendingClient{kind: kindCommand, cmdReply: reply}
	require.True(t, p.accept(pc, 10))

	p.deliverApplied(10, false, "ignored")
	select {
	case <-reply:
		t.Fatal("reply delivered despite stale term")
	default:
	}
	assert.Same(t, pc, p.bySeqno[10])

	p.deliverApplied(10, true, "answer")
	res := <-reply
	assert.Equal(t, "answer", res.reply)
	assert.NotContains(t, p.bySeqno, api.Seqno(10))
}

func TestPendingClients_SweepTermFinishedOnlyTakesAccepted(t *testing.T) {
	p := newPendingClients()
	unaccepted := make(chan commandResult, 1)
	p.registerCommand(1, unaccepted)

	accepted := make(chan commandResult, 1)
	pc := &pendingClient{kind: kindCommand, cmdReply: accepted}
	require.True(t, p.accept(pc, 10))

	swept := p.sweepTermFinished()
	require.Len(t, swept, 1)
	assert.Same(t, pc, swept[0])
	assert.Len(t, p.bySeqno, 0)
	assert.Len(t, p.byRef, 1) // untouched, left for the consensus server
}
