package grpcagent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordhaven/rsmcore/api"
)

func TestWire_BranchRoundTrip(t *testing.T) {
	b := api.Branch{
		HistoryID:    "h2",
		OldHistoryID: "h1",
		Coordinator:  "p1",
		Peers:        []api.PeerID{"p1", "p2", "p3"},
		Opaque:       []byte("hello"),
	}
	got := decodeBranch(encodeBranch(b))
	assert.Equal(t, b, got)
}

func TestWire_MetadataRoundTrip(t *testing.T) {
	md := api.Metadata{Peer: "p1", HistoryID: "h1", CommittedSeqno: 42}
	assert.Equal(t, md, decodeMetadata(encodeMetadata(md)))
}

func TestWire_LogRoundTrip(t *testing.T) {
	entries := []api.LogEntry{
		{Seqno: 1, Term: 1, HistoryID: "h1", Value: api.RSMCommand{RSMName: "counter", Command: []byte{1, 2, 3}}},
		{Seqno: 2, Term: 1, HistoryID: "h1", Value: api.ConfigEntry{Opaque: []byte("x")}},
	}
	assert.Equal(t, entries, decodeLog(encodeLog(entries)))
}

func TestWire_FanoutResultRoundTripsOkAndErrs(t *testing.T) {
	ok := []api.PeerID{"p1"}
	errs := map[api.PeerID]error{"p2": assertErr("boom")}
	gotOk, gotErrs, err := decodeFanoutResult(encodeFanoutResult(ok, errs))
	assert.NoError(t, err)
	assert.Equal(t, ok, gotOk)
	assert.Len(t, gotErrs, 1)
	assert.EqualError(t, gotErrs["p2"], "boom")
}

func TestWire_FanoutResultPreservesNoBranchSentinel(t *testing.T) {
	errs := map[api.PeerID]error{"p2": api.ErrNoBranch}
	_, gotErrs, err := decodeFanoutResult(encodeFanoutResult(nil, errs))
	require.NoError(t, err)
	assert.ErrorIs(t, gotErrs["p2"], api.ErrNoBranch)
}

func TestWire_FanoutResultPreservesBadBranchSentinel(t *testing.T) {
	errs := map[api.PeerID]error{"p2": &api.BadBranchError{Reason: "stale branch"}}
	_, gotErrs, err := decodeFanoutResult(encodeFanoutResult(nil, errs))
	require.NoError(t, err)
	assert.ErrorIs(t, gotErrs["p2"], api.ErrBadBranch)
	assert.EqualError(t, gotErrs["p2"], "rsmcore: bad branch: stale branch")
}

func TestWire_FanoutResultPreservesHistoryMismatchSentinel(t *testing.T) {
	errs := map[api.PeerID]error{"p2": &api.HistoryMismatchError{Reason: "unknown ancestor"}}
	_, gotErrs, err := decodeFanoutResult(encodeFanoutResult(nil, errs))
	require.NoError(t, err)
	assert.ErrorIs(t, gotErrs["p2"], api.ErrHistoryMismatch)
}

func TestWire_FanoutResultFallsBackToPlainErrorForUnrecognizedKind(t *testing.T) {
	errs := map[api.PeerID]error{"p2": errors.New("connection refused")}
	_, gotErrs, err := decodeFanoutResult(encodeFanoutResult(nil, errs))
	require.NoError(t, err)
	assert.EqualError(t, gotErrs["p2"], "connection refused")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
