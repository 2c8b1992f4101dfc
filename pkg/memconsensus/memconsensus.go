// Package memconsensus is an in-memory api.ConsensusServer fake for
// tests, grounded on the pack's in-memory-collaborator style (mirrors
// how the teacher's own test harness swaps a MemPersister/SimTransport
// in for the real thing rather than mocking method calls).
package memconsensus

import (
	"context"
	"sync"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/memagent"
)

// Server is a single-history, single-term in-memory consensus server:
// enough to drive an rsm.Host through leader/follower transitions and
// command acceptance without a network.
type Server struct {
	mu sync.Mutex

	self      api.PeerID
	events    chan api.ConsensusEvent
	historyID api.HistoryID
	term      api.Term
	nextSeqno api.Seqno

	// When non-nil, the next RsmCommand or SyncQuorum call fails with
	// this error instead of succeeding, for exercising the error path.
	failNext error

	log *memagent.Log
}

// New returns a Server plus the event channel it publishes into, which
// its owner must hand to the rsm.HostBuilder that will read from it (see
// api.ConsensusServer's doc comment).
func New(self api.PeerID, log *memagent.Log) (*Server, <-chan api.ConsensusEvent) {
	events := make(chan api.ConsensusEvent, 32)
	return &Server{self: self, events: events, log: log, nextSeqno: 1}, events
}

func (s *Server) RegisterRSM(ctx context.Context, name string, self api.PeerID) (api.RegisterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyID == api.NoHistory {
		return api.RegisterResult{NoTerm: true}, nil
	}
	return api.RegisterResult{HistoryID: s.historyID, Term: s.term, Seqno: s.nextSeqno - 1}, nil
}

// BecomeLeader promotes this in-memory server into a freshly elected
// leader for historyID at term, delivering a TermEstablished event.
func (s *Server) BecomeLeader(historyID api.HistoryID, term api.Term) {
	s.mu.Lock()
	establishSeqno := s.nextSeqno - 1
	s.historyID = historyID
	s.term = term
	s.mu.Unlock()

	s.events <- api.ConsensusEvent{
		TermEstablished: true,
		HistoryID:       historyID,
		Term:            term,
		EstablishSeqno:  establishSeqno,
	}
}

// FinishTerm delivers a TermFinished event for the currently held term.
func (s *Server) FinishTerm() {
	s.mu.Lock()
	historyID, term := s.historyID, s.term
	s.mu.Unlock()

	s.events <- api.ConsensusEvent{TermFinished: true, HistoryID: historyID, Term: term}
}

// FailNext makes the next RsmCommand or SyncQuorum call fail with err
// instead of succeeding, for exercising the error path exactly once.
func (s *Server) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Server) RsmCommand(tag api.Ref, historyID api.HistoryID, term api.Term, name string, cmd []byte) {
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		s.events <- api.ConsensusEvent{Tag: tag, Err: err}
		return
	}
	if historyID != s.historyID || term != s.term {
		s.mu.Unlock()
		s.events <- api.ConsensusEvent{Tag: tag, Err: api.ErrLeaderLost}
		return
	}
	seqno := s.nextSeqno
	s.nextSeqno++
	s.mu.Unlock()

	s.log.Append(api.LogEntry{
		Seqno:     seqno,
		Term:      term,
		HistoryID: historyID,
		Value:     api.RSMCommand{RSMName: name, Command: cmd},
	})

	s.events <- api.ConsensusEvent{Tag: tag, Accepted: true, Seqno: seqno}
}

func (s *Server) SyncQuorum(tag api.Ref, historyID api.HistoryID, term api.Term) {
	s.mu.Lock()
	err := s.takeFailure()
	current := s.historyID == historyID && s.term == term
	s.mu.Unlock()

	if err != nil {
		s.events <- api.ConsensusEvent{Tag: tag, Err: err}
		return
	}
	if !current {
		s.events <- api.ConsensusEvent{Tag: tag, Err: api.ErrLeaderLost}
		return
	}
	s.events <- api.ConsensusEvent{Tag: tag, QuorumOK: true}
}

func (s *Server) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}
