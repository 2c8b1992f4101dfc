package grpcagent

import (
	"encoding/base64"
	"errors"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nordhaven/rsmcore/api"
)

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func peerList(peers []api.PeerID) *structpb.Value {
	vals := make([]*structpb.Value, len(peers))
	for i, p := range peers {
		vals[i] = structpb.NewStringValue(string(p))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func decodePeerList(v *structpb.Value) []api.PeerID {
	if v == nil {
		return nil
	}
	list := v.GetListValue().GetValues()
	out := make([]api.PeerID, len(list))
	for i, item := range list {
		out[i] = api.PeerID(item.GetStringValue())
	}
	return out
}

func encodeBranch(b api.Branch) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"history_id":     structpb.NewStringValue(string(b.HistoryID)),
		"old_history_id": structpb.NewStringValue(string(b.OldHistoryID)),
		"coordinator":    structpb.NewStringValue(string(b.Coordinator)),
		"peers":          peerList(b.Peers),
		"opaque":         structpb.NewStringValue(b64(b.Opaque)),
	}})
}

func decodeBranch(v *structpb.Value) api.Branch {
	s := v.GetStructValue().GetFields()
	return api.Branch{
		HistoryID:    api.HistoryID(s["history_id"].GetStringValue()),
		OldHistoryID: api.HistoryID(s["old_history_id"].GetStringValue()),
		Coordinator:  api.PeerID(s["coordinator"].GetStringValue()),
		Peers:        decodePeerList(s["peers"]),
		Opaque:       unb64(s["opaque"].GetStringValue()),
	}
}

func encodeMetadata(md api.Metadata) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"peer":            structpb.NewStringValue(string(md.Peer)),
		"history_id":      structpb.NewStringValue(string(md.HistoryID)),
		"committed_seqno": structpb.NewNumberValue(float64(md.CommittedSeqno)),
	}}
}

func decodeMetadata(s *structpb.Struct) api.Metadata {
	f := s.GetFields()
	return api.Metadata{
		Peer:           api.PeerID(f["peer"].GetStringValue()),
		HistoryID:      api.HistoryID(f["history_id"].GetStringValue()),
		CommittedSeqno: api.Seqno(f["committed_seqno"].GetNumberValue()),
	}
}

func encodeLog(entries []api.LogEntry) *structpb.Struct {
	items := make([]*structpb.Value, len(entries))
	for i, e := range entries {
		fields := map[string]*structpb.Value{
			"seqno":      structpb.NewNumberValue(float64(e.Seqno)),
			"term":       structpb.NewNumberValue(float64(e.Term)),
			"history_id": structpb.NewStringValue(string(e.HistoryID)),
		}
		switch v := e.Value.(type) {
		case api.RSMCommand:
			fields["kind"] = structpb.NewStringValue("command")
			fields["rsm_name"] = structpb.NewStringValue(v.RSMName)
			fields["command"] = structpb.NewStringValue(b64(v.Command))
		case api.ConfigEntry:
			fields["kind"] = structpb.NewStringValue("config")
			fields["opaque"] = structpb.NewStringValue(b64(v.Opaque))
		}
		items[i] = structpb.NewStructValue(&structpb.Struct{Fields: fields})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"entries": structpb.NewListValue(&structpb.ListValue{Values: items}),
	}}
}

func decodeLog(s *structpb.Struct) []api.LogEntry {
	items := s.GetFields()["entries"].GetListValue().GetValues()
	out := make([]api.LogEntry, len(items))
	for i, item := range items {
		f := item.GetStructValue().GetFields()
		e := api.LogEntry{
			Seqno:     api.Seqno(f["seqno"].GetNumberValue()),
			Term:      api.Term(f["term"].GetNumberValue()),
			HistoryID: api.HistoryID(f["history_id"].GetStringValue()),
		}
		switch f["kind"].GetStringValue() {
		case "command":
			e.Value = api.RSMCommand{RSMName: f["rsm_name"].GetStringValue(), Command: unb64(f["command"].GetStringValue())}
		case "config":
			e.Value = api.ConfigEntry{Opaque: unb64(f["opaque"].GetStringValue())}
		}
		out[i] = e
	}
	return out
}

func encodeStoreBranchReq(peers []api.PeerID, branch api.Branch, timeout time.Duration) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"peers":       peerList(peers),
		"branch":      encodeBranch(branch),
		"timeout_sec": structpb.NewNumberValue(timeout.Seconds()),
	}}
}

func decodeStoreBranchReq(s *structpb.Struct) ([]api.PeerID, api.Branch, time.Duration) {
	f := s.GetFields()
	return decodePeerList(f["peers"]), decodeBranch(f["branch"]), durationSeconds(f["timeout_sec"])
}

func encodeBranchReq(branch api.Branch, timeout time.Duration) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"branch":      encodeBranch(branch),
		"timeout_sec": structpb.NewNumberValue(timeout.Seconds()),
	}}
}

func decodeBranchReq(s *structpb.Struct) (api.Branch, time.Duration) {
	f := s.GetFields()
	return decodeBranch(f["branch"]), durationSeconds(f["timeout_sec"])
}

func encodeUndoBranchReq(peers []api.PeerID, historyID api.HistoryID, timeout time.Duration) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"peers":       peerList(peers),
		"history_id":  structpb.NewStringValue(string(historyID)),
		"timeout_sec": structpb.NewNumberValue(timeout.Seconds()),
	}}
}

func decodeUndoBranchReq(s *structpb.Struct) ([]api.PeerID, api.HistoryID, time.Duration) {
	f := s.GetFields()
	return decodePeerList(f["peers"]), api.HistoryID(f["history_id"].GetStringValue()), durationSeconds(f["timeout_sec"])
}

func durationSeconds(v *structpb.Value) time.Duration {
	return time.Duration(v.GetNumberValue() * float64(time.Second))
}

// encodePeerError tags err with the kind of failover-collaborator error
// it is, not just its message, so decodeFanoutResult on the other end
// can reconstruct something errors.Is(err, api.ErrNoBranch) (etc) still
// matches. A bare message string would lose that sentinel identity and
// silently break the idempotent-undo_branch classification in
// failover.Coordinator.
func encodePeerError(err error) *structpb.Value {
	kind := "other"
	reason := ""
	var bad *api.BadBranchError
	var mismatch *api.HistoryMismatchError
	switch {
	case errors.As(err, &bad):
		kind, reason = "bad_branch", bad.Reason
	case errors.As(err, &mismatch):
		kind, reason = "history_mismatch", mismatch.Reason
	case errors.Is(err, api.ErrNoBranch):
		kind = "no_branch"
	case errors.Is(err, api.ErrBadBranch):
		kind = "bad_branch"
	case errors.Is(err, api.ErrHistoryMismatch):
		kind = "history_mismatch"
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":    structpb.NewStringValue(kind),
		"message": structpb.NewStringValue(err.Error()),
		"reason":  structpb.NewStringValue(reason),
	}})
}

func decodePeerError(v *structpb.Value) error {
	f := v.GetStructValue().GetFields()
	reason := f["reason"].GetStringValue()
	switch f["kind"].GetStringValue() {
	case "no_branch":
		return api.ErrNoBranch
	case "bad_branch":
		return &api.BadBranchError{Reason: reason}
	case "history_mismatch":
		return &api.HistoryMismatchError{Reason: reason}
	default:
		return errors.New(f["message"].GetStringValue())
	}
}

func encodeFanoutResult(ok []api.PeerID, errs map[api.PeerID]error) *structpb.Struct {
	errFields := make(map[string]*structpb.Value, len(errs))
	for p, err := range errs {
		errFields[string(p)] = encodePeerError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":   peerList(ok),
		"errs": structpb.NewStructValue(&structpb.Struct{Fields: errFields}),
	}}
}

func decodeFanoutResult(s *structpb.Struct) ([]api.PeerID, map[api.PeerID]error, error) {
	f := s.GetFields()
	ok := decodePeerList(f["ok"])
	errFields := f["errs"].GetStructValue().GetFields()
	if len(errFields) == 0 {
		return ok, nil, nil
	}
	errs := make(map[api.PeerID]error, len(errFields))
	for p, v := range errFields {
		errs[api.PeerID(p)] = decodePeerError(v)
	}
	return ok, errs, nil
}
