// Package memagent is an in-memory api.Agent fake for tests: a shared
// append-only log plus per-peer branch storage, grounded on the pack's
// in-memory-collaborator test style.
package memagent

import (
	"context"
	"sync"

	"github.com/nordhaven/rsmcore/api"
)

// Log is the shared committed log a memconsensus.Server appends to and
// every memagent.Agent reads from, standing in for the durable
// replicated log a real deployment would keep per peer.
type Log struct {
	mu      sync.RWMutex
	entries []api.LogEntry
}

func NewLog() *Log { return &Log{} }

func (l *Log) Append(e api.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *Log) Entries() []api.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]api.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) CommittedSeqno() api.Seqno {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return api.NoSeqno
	}
	return l.entries[len(l.entries)-1].Seqno
}

// Agent is a single-peer api.Agent view over a shared Log plus its own
// installed branch, used by rsm.Host tests.
type Agent struct {
	peer api.PeerID
	log  *Log

	mu     sync.Mutex
	branch api.Branch
	hasBr  bool
}

func New(peer api.PeerID, log *Log) *Agent {
	return &Agent{peer: peer, log: log}
}

func (a *Agent) GetMetadata(ctx context.Context) (api.Metadata, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return api.Metadata{
		Peer:           a.peer,
		HistoryID:      a.branch.HistoryID,
		CommittedSeqno: a.log.CommittedSeqno(),
	}, nil
}

func (a *Agent) GetLog(ctx context.Context) ([]api.LogEntry, error) {
	return a.log.Entries(), nil
}

func (a *Agent) StoreBranch(ctx context.Context, peers []api.PeerID, branch api.Branch, timeout api.Duration) ([]api.PeerID, map[api.PeerID]error, error) {
	// Single-process fake: every named peer is "this" agent's own store,
	// there's no real network fan-out to simulate.
	a.mu.Lock()
	a.branch = branch
	a.hasBr = true
	a.mu.Unlock()
	return peers, nil, nil
}

func (a *Agent) LocalStoreBranch(ctx context.Context, branch api.Branch, timeout api.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.branch = branch
	a.hasBr = true
	return nil
}

func (a *Agent) UndoBranch(ctx context.Context, peers []api.PeerID, historyID api.HistoryID, timeout api.Duration) ([]api.PeerID, map[api.PeerID]error, error) {
	a.mu.Lock()
	if a.hasBr && a.branch.HistoryID == historyID {
		a.branch = api.Branch{}
		a.hasBr = false
	}
	a.mu.Unlock()
	return peers, nil, nil
}
