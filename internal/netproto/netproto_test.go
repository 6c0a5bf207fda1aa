package netproto

import (
	"bytes"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHandshake(&buf, 0xDEADBEEFCAFEBABE); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHandshake(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xDEADBEEFCAFEBABE {
		t.Errorf("got %x, want %x", got, uint64(0xDEADBEEFCAFEBABE))
	}
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Features: []byte{1, 0, 0, 1, 1, 0}}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := ReadRequest(&buf, len(req.Features))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Features) != len(req.Features) {
		t.Fatalf("got %d features, want %d", len(got.Features), len(req.Features))
	}
	for i, v := range req.Features {
		if got.Features[i] != v {
			t.Errorf("feature %d: got %v, want %v", i, got.Features[i], v)
		}
	}
}

func TestRequestHasNoLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Features: []byte{1, 0, 1}}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != len(req.Features) {
		t.Errorf("wrote %d bytes, want exactly %d (no length prefix)", buf.Len(), len(req.Features))
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{Policy: []float32{0.1, 0.2, 0.3}, PolicyPass: 0.05, Winrate: 0.6}
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}
	got, err := ReadResponse(&buf, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.PolicyPass != resp.PolicyPass || got.Winrate != resp.Winrate {
		t.Errorf("got %+v, want %+v", got, resp)
	}
	for i, v := range resp.Policy {
		if got.Policy[i] != v {
			t.Errorf("policy %d: got %v, want %v", i, got.Policy[i], v)
		}
	}
}
