package rsm

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/localbus"
	"github.com/nordhaven/rsmcore/pkg/logger"
	"github.com/nordhaven/rsmcore/pkg/memagent"
	"github.com/nordhaven/rsmcore/pkg/memconsensus"
	"github.com/nordhaven/rsmcore/pkg/metrics"
	"github.com/nordhaven/rsmcore/revtable"
)

// counterFSM is a minimal deterministic state machine: every command is
// a big-endian delta added to a running total.
type counterFSM struct{}

func (counterFSM) Init(name string, args any) (state any, data any, err error) {
	return int64(0), nil, nil
}

func (counterFSM) HandleCommand(cmd []byte, applied api.Revision, state, data any) (api.CommandOutcome, any) {
	return api.Apply(), data
}

func (counterFSM) ApplyCommand(cmd []byte, entryRev, applied api.Revision, state, data any) (reply any, newState any, newData any) {
	delta := int64(binary.BigEndian.Uint64(cmd))
	total := state.(int64) + delta
	return total, total, data
}

func (counterFSM) HandleQuery(query any, applied api.Revision, state, data any) (reply any, newData any) {
	return state, data
}

// pingMsg and stopMsg are the two kinds of out-of-band message
// counterFSM understands, for exercising Notify/HandleInfo.
type pingMsg struct{ reply chan int64 }
type stopMsg struct{}

func (counterFSM) HandleInfo(msg any, applied api.Revision, state, data any) (newData any, stop bool) {
	switch m := msg.(type) {
	case pingMsg:
		m.reply <- state.(int64)
	case stopMsg:
		return data, true
	}
	return data, false
}

func (counterFSM) Terminate(reason error, applied api.Revision, state, data any) {}

func encodeDelta(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

type testHarness struct {
	t         *testing.T
	log       *memagent.Log
	server    *memconsensus.Server
	agent     *memagent.Agent
	bus       *localbus.Bus
	revTable  *revtable.Table
	host      api.Host
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	log := memagent.NewLog()
	server, events := memconsensus.New(api.PeerID("self"), log)
	agent := memagent.New(api.PeerID("self"), log)
	bus := localbus.New()
	revTable := revtable.New()

	_, testLog := logger.NewTestLogger()

	b := NewHostBuilder("counter", api.PeerID("self"), nil, counterFSM{}, server, events, agent, bus, revTable).
		WithConfig(TestsConfig()).
		WithLogger(testLog).
		WithMetrics(metrics.Noop{})

	host, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, host.Start())

	h := &testHarness{t: t, log: log, server: server, agent: agent, bus: bus, revTable: revTable, host: host}
	t.Cleanup(func() { _ = host.Stop() })
	return h
}

func (h *testHarness) becomeLeader(historyID api.HistoryID, term api.Term) {
	h.server.BecomeLeader(historyID, term)
	require.Eventually(h.t, func() bool {
		_, err := h.host.GetAppliedRevision(api.ReadLeader, 100*time.Millisecond)
		return err == nil
	}, time.Second, time.Millisecond)
}

func TestHost_CommandRejectedWhenFollower(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.host.Command(encodeDelta(1), time.Second)
	assert.ErrorIs(t, err, api.ErrNotLeader)
}

func TestHost_CommandAppliedOnLeader(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)

	reply, err := h.host.Command(encodeDelta(5), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reply)

	reply, err = h.host.Command(encodeDelta(3), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(8), reply)
}

func TestHost_NotifyDeliversToHandleInfo(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)
	_, err := h.host.Command(encodeDelta(7), time.Second)
	require.NoError(t, err)

	reply := make(chan int64, 1)
	require.NoError(t, h.host.Notify(pingMsg{reply: reply}))

	select {
	case v := <-reply:
		assert.Equal(t, int64(7), v)
	case <-time.After(time.Second):
		t.Fatal("notify never reached handle_info")
	}
}

func TestHost_NotifyStopTerminatesHost(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)

	require.NoError(t, h.host.Notify(stopMsg{}))

	require.Eventually(t, func() bool {
		_, err := h.host.Query(nil, 100*time.Millisecond)
		return errors.Is(err, ErrStopped)
	}, time.Second, time.Millisecond)
}

func TestHost_StopSucceedsWithinShutdownTimeout(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)

	require.NoError(t, h.host.Stop())
}

func TestHost_StopTimesOutWhenActorWontExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		name:   "stuck",
		ctx:    ctx,
		cancel: cancel,
		cfg:    &api.HostConfig{Timings: api.HostTimings{ShutdownTimeout: 10 * time.Millisecond}},
	}
	h.wg.Add(1) // never Done, simulating a goroutine that ignores ctx cancellation

	err := h.Stop()
	require.Error(t, err)
	h.wg.Done()
}

func TestHost_QueryWorksWithoutLeadership(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)
	_, err := h.host.Command(encodeDelta(42), time.Second)
	require.NoError(t, err)

	h.server.FinishTerm()

	reply, err := h.host.Query(nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(42), reply)
}

func TestHost_SyncRevisionResolvesImmediatelyWhenCaughtUp(t *testing.T) {
	h := newTestHarness(t)
	err := h.host.SyncRevision(api.NoRevision, time.Second)
	assert.NoError(t, err)
}

func TestHost_SyncRevisionWakesOnApply(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)

	done := make(chan error, 1)
	go func() {
		done <- h.host.SyncRevision(api.Revision{HistoryID: "hist-1", Seqno: 1}, time.Second)
	}()

	// Give the SyncRevision request time to park before the command that
	// satisfies it arrives.
	time.Sleep(20 * time.Millisecond)

	_, err := h.host.Command(encodeDelta(1), time.Second)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sync_revision never resolved")
	}
}

func TestHost_SyncRevisionTimesOut(t *testing.T) {
	h := newTestHarness(t)
	err := h.host.SyncRevision(api.Revision{HistoryID: api.NoHistory, Seqno: 5}, 50*time.Millisecond)
	assert.ErrorIs(t, err, api.ErrTimeout)
}

func TestHost_SyncRevisionHistoryMismatch(t *testing.T) {
	h := newTestHarness(t)
	err := h.host.SyncRevision(api.Revision{HistoryID: "some-other-history", Seqno: 1}, time.Second)
	assert.ErrorIs(t, err, api.ErrHistoryMismatch)
}

func TestHost_GetLocalRevisionTracksApplied(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)

	_, err := h.host.Command(encodeDelta(7), time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rev, err := h.host.GetLocalRevision()
		return err == nil && rev.Seqno == 1
	}, time.Second, time.Millisecond)
}

func TestHost_GetAppliedRevisionQuorum(t *testing.T) {
	h := newTestHarness(t)
	h.becomeLeader("hist-1", 1)

	rev, err := h.host.GetAppliedRevision(api.ReadQuorum, time.Second)
	require.NoError(t, err)
	assert.Equal(t, api.NoRevision, rev)
}
