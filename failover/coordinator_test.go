package failover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
	"github.com/nordhaven/rsmcore/pkg/metrics"
)

// fanoutAgent is a test-only api.Agent that fans StoreBranch/UndoBranch
// out across a set of named local Agents, standing in for the real
// per-peer network fan-out a pkg/grpcagent.Agent would perform.
type fanoutAgent struct {
	self     api.PeerID
	metadata api.Metadata
	peers    map[api.PeerID]*fakePeer
}

type fakePeer struct {
	storeErr   error
	undoErr    error
	branch     api.Branch
	hasBr      bool
	undoCalled bool
}

func newFanoutAgent(self api.PeerID) *fanoutAgent {
	return &fanoutAgent{self: self, peers: make(map[api.PeerID]*fakePeer)}
}

func (a *fanoutAgent) withPeer(id api.PeerID, storeErr error) *fanoutAgent {
	a.peers[id] = &fakePeer{storeErr: storeErr}
	return a
}

func (a *fanoutAgent) withUndoErr(id api.PeerID, undoErr error) *fanoutAgent {
	a.peers[id] = &fakePeer{undoErr: undoErr}
	return a
}

func (a *fanoutAgent) GetMetadata(ctx context.Context) (api.Metadata, error) {
	return a.metadata, nil
}

func (a *fanoutAgent) GetLog(ctx context.Context) ([]api.LogEntry, error) { return nil, nil }

func (a *fanoutAgent) StoreBranch(ctx context.Context, peers []api.PeerID, branch api.Branch, timeout api.Duration) ([]api.PeerID, map[api.PeerID]error, error) {
	var ok []api.PeerID
	errs := make(map[api.PeerID]error)
	for _, id := range peers {
		p := a.peers[id]
		if p == nil {
			errs[id] = errors.New("unknown peer")
			continue
		}
		if p.storeErr != nil {
			errs[id] = p.storeErr
			continue
		}
		p.branch = branch
		p.hasBr = true
		ok = append(ok, id)
	}
	if len(errs) == 0 {
		errs = nil
	}
	return ok, errs, nil
}

func (a *fanoutAgent) LocalStoreBranch(ctx context.Context, branch api.Branch, timeout api.Duration) error {
	a.metadata.HistoryID = branch.HistoryID
	return nil
}

func (a *fanoutAgent) UndoBranch(ctx context.Context, peers []api.PeerID, historyID api.HistoryID, timeout api.Duration) ([]api.PeerID, map[api.PeerID]error, error) {
	var ok []api.PeerID
	errs := make(map[api.PeerID]error)
	for _, id := range peers {
		p := a.peers[id]
		if p == nil {
			errs[id] = errors.New("unknown peer")
			continue
		}
		p.undoCalled = true
		if p.undoErr != nil {
			errs[id] = p.undoErr
			continue
		}
		p.hasBr = false
		ok = append(ok, id)
	}
	if len(errs) == 0 {
		errs = nil
	}
	return ok, errs, nil
}

func newTestCoordinator(agent api.Agent) *Coordinator {
	_, log := logger.NewTestLogger()
	return New("self", agent, TestsConfig(), log, metrics.Noop{})
}

func TestCoordinator_FailoverRejectsSelfNotInPeers(t *testing.T) {
	agent := newFanoutAgent("self")
	c := newTestCoordinator(agent)

	_, err := c.Failover(context.Background(), []api.PeerID{"other"}, nil)
	var target *api.ErrNotInPeers
	require.ErrorAs(t, err, &target)
}

func TestCoordinator_FailoverSucceedsWithFullQuorum(t *testing.T) {
	agent := newFanoutAgent("self").withPeer("b", nil).withPeer("c", nil)
	c := newTestCoordinator(agent)

	newHistory, err := c.Failover(context.Background(), []api.PeerID{"self", "b", "c"}, []byte("opaque"))
	require.NoError(t, err)
	assert.NotEmpty(t, newHistory)
	assert.Equal(t, newHistory, agent.metadata.HistoryID)
	assert.True(t, agent.peers["b"].hasBr)
	assert.True(t, agent.peers["c"].hasBr)
}

func TestCoordinator_FailoverAbortsWithoutQuorumAndRollsBack(t *testing.T) {
	agent := newFanoutAgent("self").withPeer("b", errors.New("unreachable")).withPeer("c", errors.New("unreachable"))
	c := newTestCoordinator(agent)

	_, err := c.Failover(context.Background(), []api.PeerID{"self", "b", "c"}, nil)
	var target *api.ErrAborted
	require.ErrorAs(t, err, &target)
	assert.Empty(t, agent.metadata.HistoryID)
	assert.True(t, agent.peers["b"].undoCalled)
	assert.True(t, agent.peers["c"].undoCalled)
}

func TestCoordinator_FailoverAbortsOnAnySinglePeerErrorEvenWithQuorum(t *testing.T) {
	// self+b+c: only c fails. A quorum (2 of 3) still accepted the
	// branch, but the coordinator must abort anyway rather than proceed
	// with a failed peer left behind.
	agent := newFanoutAgent("self").
		withPeer("b", nil).
		withPeer("c", errors.New("unreachable"))
	c := newTestCoordinator(agent)

	_, err := c.Failover(context.Background(), []api.PeerID{"self", "b", "c"}, nil)
	var target *api.ErrAborted
	require.ErrorAs(t, err, &target)
	assert.Empty(t, agent.metadata.HistoryID)
	assert.False(t, agent.peers["b"].hasBr, "the peer that did accept the branch should have been rolled back")
}

func TestCoordinator_FailoverPartitionsIncompatibleAndFailedPeers(t *testing.T) {
	// self+b+c+d: b reports history_mismatch (incompatible), c is
	// merely unreachable (failed), d succeeds. incompatible_peers and
	// failed_peers must partition the erroring peers, not overlap.
	agent := newFanoutAgent("self").
		withPeer("b", &api.HistoryMismatchError{}).
		withPeer("c", errors.New("unreachable")).
		withPeer("d", nil)
	c := newTestCoordinator(agent)

	_, err := c.Failover(context.Background(), []api.PeerID{"self", "b", "c", "d"}, nil)
	var target *api.ErrAborted
	require.ErrorAs(t, err, &target)
	assert.ElementsMatch(t, []api.PeerID{"b"}, target.IncompatiblePeers)
	assert.ElementsMatch(t, []api.PeerID{"c"}, target.FailedPeers)
}

func TestCoordinator_FailoverRollsBackEveryContactedRemotePeerNotJustSuccessful(t *testing.T) {
	agent := newFanoutAgent("self").
		withPeer("b", nil).
		withPeer("c", errors.New("unreachable")).
		withPeer("d", errors.New("unreachable"))
	c := newTestCoordinator(agent)

	_, err := c.Failover(context.Background(), []api.PeerID{"self", "b", "c", "d"}, nil)
	require.Error(t, err)
	assert.False(t, agent.peers["b"].hasBr, "the one peer that did accept the branch should have been rolled back")
	assert.True(t, agent.peers["c"].undoCalled, "undo_branch is idempotent, so it should still be attempted on failed peers")
	assert.True(t, agent.peers["d"].undoCalled, "undo_branch is idempotent, so it should still be attempted on failed peers")
}

func TestCoordinator_TryCancelUndoesEveryPeer(t *testing.T) {
	agent := newFanoutAgent("self").withPeer("b", nil)
	agent.peers["b"].hasBr = true
	c := newTestCoordinator(agent)

	branch := api.Branch{HistoryID: "hist-x", Peers: []api.PeerID{"b"}}
	err := c.TryCancel(context.Background(), branch)
	require.NoError(t, err)
	assert.False(t, agent.peers["b"].hasBr)
}

func TestCoordinator_TryCancelIsIdempotentOnAlreadyGoneBranch(t *testing.T) {
	// A second try_cancel on the same branch finds no_branch on every
	// peer, which must count as success, not ErrFailedPeers.
	agent := newFanoutAgent("self").withUndoErr("b", api.ErrNoBranch)
	c := newTestCoordinator(agent)

	branch := api.Branch{HistoryID: "hist-x", Peers: []api.PeerID{"b"}}
	err := c.TryCancel(context.Background(), branch)
	require.NoError(t, err)
}

func TestCoordinator_TryCancelIsIdempotentOnBadBranch(t *testing.T) {
	agent := newFanoutAgent("self").withUndoErr("b", api.ErrBadBranch)
	c := newTestCoordinator(agent)

	branch := api.Branch{HistoryID: "hist-x", Peers: []api.PeerID{"b"}}
	err := c.TryCancel(context.Background(), branch)
	require.NoError(t, err)
}

func TestCoordinator_TryCancelReportsGenuineFailures(t *testing.T) {
	agent := newFanoutAgent("self").withUndoErr("b", errors.New("unreachable"))
	c := newTestCoordinator(agent)

	branch := api.Branch{HistoryID: "hist-x", Peers: []api.PeerID{"b"}}
	err := c.TryCancel(context.Background(), branch)
	var target *api.ErrFailedPeers
	require.ErrorAs(t, err, &target)
}

func TestCoordinator_BusyWhileAttemptInFlight(t *testing.T) {
	agent := newFanoutAgent("self")
	c := newTestCoordinator(agent)
	require.True(t, c.mu.TryLock())
	defer c.mu.Unlock()

	_, err := c.Failover(context.Background(), []api.PeerID{"self"}, nil)
	assert.ErrorIs(t, err, ErrBusy)
}
