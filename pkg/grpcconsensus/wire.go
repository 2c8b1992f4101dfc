package grpcconsensus

import (
	"encoding/base64"
	"errors"
	"fmt"

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

func encodeRegisterResult(r api.RegisterResult) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"history_id": structpb.NewStringValue(string(r.HistoryID)),
		"term":       structpb.NewNumberValue(float64(r.Term)),
		"seqno":      structpb.NewNumberValue(float64(r.Seqno)),
		"no_term":    structpb.NewBoolValue(r.NoTerm),
	}}
}

func decodeRegisterResult(s *structpb.Struct) api.RegisterResult {
	f := s.GetFields()
	return api.RegisterResult{
		HistoryID: api.HistoryID(f["history_id"].GetStringValue()),
		Term:      api.Term(f["term"].GetNumberValue()),
		Seqno:     api.Seqno(f["seqno"].GetNumberValue()),
		NoTerm:    f["no_term"].GetBoolValue(),
	}
}

func encodeEvent(ev api.ConsensusEvent) *structpb.Struct {
	f := map[string]*structpb.Value{
		"tag":              structpb.NewNumberValue(float64(ev.Tag)),
		"accepted":         structpb.NewBoolValue(ev.Accepted),
		"seqno":            structpb.NewNumberValue(float64(ev.Seqno)),
		"quorum_ok":        structpb.NewBoolValue(ev.QuorumOK),
		"term_finished":    structpb.NewBoolValue(ev.TermFinished),
		"term_established": structpb.NewBoolValue(ev.TermEstablished),
		"history_id":       structpb.NewStringValue(string(ev.HistoryID)),
		"term":             structpb.NewNumberValue(float64(ev.Term)),
		"establish_seqno":  structpb.NewNumberValue(float64(ev.EstablishSeqno)),
	}
	if ev.Err != nil {
		f["err"] = encodeConsensusErr(ev.Err)
	}
	return &structpb.Struct{Fields: f}
}

// encodeConsensusErr tags ev.Err with its kind, not just its message, so
// decodeEvent can hand rsm.Host back something errors.Is(err,
// api.ErrLeaderError) still matches instead of an opaque string error.
func encodeConsensusErr(err error) *structpb.Value {
	kind := "other"
	if errors.Is(err, api.ErrLeaderError) {
		kind = "leader_error"
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":    structpb.NewStringValue(kind),
		"message": structpb.NewStringValue(err.Error()),
	}})
}

func decodeConsensusErr(v *structpb.Value) error {
	f := v.GetStructValue().GetFields()
	message := f["message"].GetStringValue()
	if f["kind"].GetStringValue() == "leader_error" {
		return fmt.Errorf("%w: %s", api.ErrLeaderError, message)
	}
	return errors.New(message)
}

func decodeEvent(s *structpb.Struct) api.ConsensusEvent {
	f := s.GetFields()
	ev := api.ConsensusEvent{
		Tag:             api.Ref(f["tag"].GetNumberValue()),
		Accepted:        f["accepted"].GetBoolValue(),
		Seqno:           api.Seqno(f["seqno"].GetNumberValue()),
		QuorumOK:        f["quorum_ok"].GetBoolValue(),
		TermFinished:    f["term_finished"].GetBoolValue(),
		TermEstablished: f["term_established"].GetBoolValue(),
		HistoryID:       api.HistoryID(f["history_id"].GetStringValue()),
		Term:            api.Term(f["term"].GetNumberValue()),
		EstablishSeqno:  api.Seqno(f["establish_seqno"].GetNumberValue()),
	}
	if errVal, ok := f["err"]; ok {
		ev.Err = decodeConsensusErr(errVal)
	}
	return ev
}
