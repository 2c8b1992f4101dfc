// Package failover implements the Failover Coordinator: a two-phase
// protocol that installs a new history Branch across a chosen set of
// peers and, on any partial failure, best-effort unwinds whatever it
// already installed.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/internal/retry"
	"github.com/nordhaven/rsmcore/pkg/logger"
)

// Coordinator drives failover(keep_peers, opaque) and try_cancel(branch)
// against one Agent collaborator. Only one attempt runs at a time; a
// concurrent caller gets ErrBusy rather than queueing, since a stacked
// second failover would race the first one's rollback.
type Coordinator struct {
	self    api.PeerID
	agent   api.Agent
	cfg     *api.CoordinatorConfig
	logger  *slog.Logger
	metrics api.CoordinatorMetricsRecorder

	mu sync.Mutex
}

func New(self api.PeerID, agent api.Agent, cfg *api.CoordinatorConfig, log *slog.Logger, rec api.CoordinatorMetricsRecorder) *Coordinator {
	return &Coordinator{self: self, agent: agent, cfg: cfg, logger: log, metrics: rec}
}

// Failover installs a fresh history rooted at the coordinator's current
// history, replicated to every peer in keepPeers, self included.
// Returns the new HistoryID on success.
func (c *Coordinator) Failover(ctx context.Context, keepPeers []api.PeerID, opaque []byte) (api.HistoryID, error) {
	if !c.mu.TryLock() {
		return api.NoHistory, ErrBusy
	}
	defer c.mu.Unlock()

	start := time.Now()

	if !containsPeer(keepPeers, c.self) {
		c.metrics.IncFailoverAttempt("not_in_peers")
		return api.NoHistory, &api.ErrNotInPeers{Self: c.self, Keep: keepPeers}
	}

	md, err := c.agent.GetMetadata(ctx)
	if err != nil {
		c.metrics.IncFailoverAttempt("metadata_error")
		return api.NoHistory, fmt.Errorf("failover: get local metadata: %w", err)
	}

	newHistoryID := api.HistoryID(uuid.NewString())
	branch := api.Branch{
		HistoryID:    newHistoryID,
		OldHistoryID: md.HistoryID,
		Coordinator:  c.self,
		Peers:        keepPeers,
		Opaque:       opaque,
	}

	remotePeers := withoutPeer(keepPeers, c.self)

	storeCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreBranchTimeout)
	ok, errs, err := c.agent.StoreBranch(storeCtx, remotePeers, branch, c.cfg.StoreBranchTimeout)
	cancel()
	if err != nil {
		c.metrics.IncFailoverAttempt("store_error")
		return api.NoHistory, fmt.Errorf("failover: store branch: %w", err)
	}

	if len(errs) > 0 {
		incompatible := peerErrorsOf(errs, api.ErrHistoryMismatch, api.ErrBadBranch)
		c.logger.Warn("failover aborted: peer rejected new branch",
			"history_id", newHistoryID, "incompatible_peers", incompatible, "failed_peers", peerKeys(errs))
		c.rollback(ctx, remotePeers, newHistoryID)
		c.metrics.IncFailoverAttempt("aborted")
		return api.NoHistory, &api.ErrAborted{
			IncompatiblePeers: incompatible,
			FailedPeers:       peerErrorsNotOf(errs, api.ErrHistoryMismatch, api.ErrBadBranch),
		}
	}

	localCtx, lcancel := context.WithTimeout(ctx, c.cfg.StoreBranchTimeout)
	err = c.agent.LocalStoreBranch(localCtx, branch, c.cfg.StoreBranchTimeout)
	lcancel()
	if err != nil {
		c.logger.Error("failover: local store branch failed, rolling back", logger.ErrAttr(err), "history_id", newHistoryID)
		c.rollback(ctx, ok, newHistoryID)
		c.metrics.IncFailoverAttempt("local_store_error")
		return api.NoHistory, &api.ErrAborted{FailedPeers: []api.PeerID{c.self}}
	}

	c.logger.Info("failover installed new history",
		"old_history_id", md.HistoryID, "new_history_id", newHistoryID, "peers", keepPeers)
	c.metrics.IncFailoverAttempt("ok")
	c.metrics.ObserveFailoverDuration(time.Since(start).Seconds())
	return newHistoryID, nil
}

// TryCancel best-effort unwinds a branch that was never fully
// committed to (e.g. the coordinator that installed it crashed before
// telling every peer the failover succeeded).
func (c *Coordinator) TryCancel(ctx context.Context, branch api.Branch) error {
	if !c.mu.TryLock() {
		return ErrBusy
	}
	defer c.mu.Unlock()

	cancelCtx, cancel := context.WithTimeout(ctx, c.cfg.CancelBranchTimeout)
	defer cancel()

	_, errs, err := c.agent.UndoBranch(cancelCtx, branch.Peers, branch.HistoryID, c.cfg.CancelBranchTimeout)
	if err != nil {
		c.metrics.IncFailoverCancel("error")
		return fmt.Errorf("try_cancel: undo branch: %w", err)
	}
	if failed := realFailures(errs); len(failed) > 0 {
		c.metrics.IncFailoverCancel("partial")
		return &api.ErrFailedPeers{Peers: failed}
	}
	c.metrics.IncFailoverCancel("ok")
	return nil
}

// realFailures drops peers whose UndoBranch error means the branch was
// already gone (no_branch) or never matched this coordinator's install
// (bad_branch) — both count as a successful cancel, since undo_branch
// is idempotent and a second try_cancel on the same branch must return
// nil, not ErrFailedPeers.
func realFailures(errs map[api.PeerID]error) []api.PeerID {
	var out []api.PeerID
	for p, err := range errs {
		if errors.Is(err, api.ErrNoBranch) || errors.Is(err, api.ErrBadBranch) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// rollback best-effort unwinds a branch on peers after the attempt as a
// whole failed. undo_branch is idempotent, so peers is every remote
// peer that was contacted with store_branch, whether or not it
// actually accepted the branch. Bounded retries per internal/retry:
// this is cleanup, not the client-facing path, so it can afford a few
// attempts the original request timeout would not.
func (c *Coordinator) rollback(ctx context.Context, peers []api.PeerID, historyID api.HistoryID) {
	if len(peers) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(ctx, c.cfg.CleanupBranchTimeout)
	defer cancel()

	err := retry.Do(cleanupCtx, func(ctx context.Context) error {
		_, errs, err := c.agent.UndoBranch(ctx, peers, historyID, c.cfg.CleanupBranchTimeout)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			return fmt.Errorf("undo branch: %d peers still failing", len(errs))
		}
		return nil
	})
	if err != nil {
		c.logger.Error("failover: best-effort rollback did not fully succeed",
			logger.ErrAttr(err), "history_id", historyID, "peers", peers)
	}
}

func containsPeer(peers []api.PeerID, self api.PeerID) bool {
	for _, p := range peers {
		if p == self {
			return true
		}
	}
	return false
}

func withoutPeer(peers []api.PeerID, self api.PeerID) []api.PeerID {
	out := make([]api.PeerID, 0, len(peers))
	for _, p := range peers {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}

func peerKeys(errs map[api.PeerID]error) []api.PeerID {
	out := make([]api.PeerID, 0, len(errs))
	for p := range errs {
		out = append(out, p)
	}
	return out
}

// peerErrorsOf returns the peers whose error wraps any of targets, used
// to tell "peer actively rejected the branch" apart from "peer was
// merely unreachable" in the aborted-failover error.
func peerErrorsOf(errs map[api.PeerID]error, targets ...error) []api.PeerID {
	var out []api.PeerID
	for p, err := range errs {
		for _, target := range targets {
			if errors.Is(err, target) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// peerErrorsNotOf returns the peers whose error wraps none of targets,
// the complement of peerErrorsOf against the same errs map. Used so
// ErrAborted's IncompatiblePeers and FailedPeers partition errs rather
// than overlap.
func peerErrorsNotOf(errs map[api.PeerID]error, targets ...error) []api.PeerID {
	var out []api.PeerID
	for p, err := range errs {
		matched := false
		for _, target := range targets {
			if errors.Is(err, target) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, p)
		}
	}
	return out
}
