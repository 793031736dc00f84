package vectorstore

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestToPayloadKinds(t *testing.T) {
	p := toPayload(map[string]any{
		"question":  "q",
		"timestamp": int64(42),
		"count":     3,
		"score":     0.5,
		"ok":        true,
		"other":     []int{1},
	})

	if sv, ok := p["question"].Kind.(*pb.Value_StringValue); !ok || sv.StringValue != "q" {
		t.Errorf("question: %v", p["question"])
	}
	if iv, ok := p["timestamp"].Kind.(*pb.Value_IntegerValue); !ok || iv.IntegerValue != 42 {
		t.Errorf("timestamp: %v", p["timestamp"])
	}
	if iv, ok := p["count"].Kind.(*pb.Value_IntegerValue); !ok || iv.IntegerValue != 3 {
		t.Errorf("count: %v", p["count"])
	}
	if dv, ok := p["score"].Kind.(*pb.Value_DoubleValue); !ok || dv.DoubleValue != 0.5 {
		t.Errorf("score: %v", p["score"])
	}
	if bv, ok := p["ok"].Kind.(*pb.Value_BoolValue); !ok || !bv.BoolValue {
		t.Errorf("ok: %v", p["ok"])
	}
	if sv, ok := p["other"].Kind.(*pb.Value_StringValue); !ok || sv.StringValue != "[1]" {
		t.Errorf("other: %v", p["other"])
	}
}
