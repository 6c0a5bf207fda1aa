// Package netproto implements the wire protocol spoken between nnclient and
// nnserver: a model-hash handshake, then a stream of fixed-size feature
// requests and (N+2)·f32 responses, all fixed-width little-endian binary
// framing with no length prefixes.
package netproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HandshakeSize is the width in bytes of the initial model-hash exchange:
// one u64 sent by the client, answered by one u64 carrying the server's own
// model hash.
const HandshakeSize = 8

// WriteHandshake sends a peer's model hash as a little-endian u64.
func WriteHandshake(w io.Writer, modelHash uint64) error {
	return binary.Write(w, binary.LittleEndian, modelHash)
}

// ReadHandshake reads a peer's model hash off the wire.
func ReadHandshake(r io.Reader) (uint64, error) {
	var h uint64
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return 0, fmt.Errorf("netproto: read handshake: %w", err)
	}
	return h, nil
}

// Request is one feature-block evaluation request: INPUT_CHANNELS·N bytes,
// each a 0/1 indicator for one boolean feature plane cell, packed one
// boolean per byte. There is no length prefix — the size is fixed by N and
// INPUT_CHANNELS, which both peers already share.
type Request struct {
	Features []byte
}

// WriteRequest writes req.Features as-is, with no framing.
func WriteRequest(w io.Writer, req Request) error {
	if _, err := w.Write(req.Features); err != nil {
		return fmt.Errorf("netproto: write request: %w", err)
	}
	return nil
}

// ReadRequest reads exactly size feature bytes, the caller having already
// computed INPUT_CHANNELS·N.
func ReadRequest(r io.Reader, size int) (Request, error) {
	features := make([]byte, size)
	if _, err := io.ReadFull(r, features); err != nil {
		return Request{}, fmt.Errorf("netproto: read request: %w", err)
	}
	return Request{Features: features}, nil
}

// Response is the server's reply: N policy floats followed by policy_pass
// and winrate, a fixed N+2 floats with no length prefix since the client
// already knows N from its own board size.
type Response struct {
	Policy     []float32
	PolicyPass float32
	Winrate    float32
}

// WriteResponse writes a Response as N+2 little-endian f32 values.
func WriteResponse(w io.Writer, resp Response) error {
	for i, v := range resp.Policy {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("netproto: write response policy %d: %w", i, err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, resp.PolicyPass); err != nil {
		return fmt.Errorf("netproto: write response policy_pass: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, resp.Winrate); err != nil {
		return fmt.Errorf("netproto: write response winrate: %w", err)
	}
	return nil
}

// ReadResponse reads a Response of n policy entries plus the two trailing
// scalars.
func ReadResponse(r io.Reader, n int) (Response, error) {
	policy := make([]float32, n)
	for i := range policy {
		if err := binary.Read(r, binary.LittleEndian, &policy[i]); err != nil {
			return Response{}, fmt.Errorf("netproto: read response policy %d: %w", i, err)
		}
	}
	var policyPass, winrate float32
	if err := binary.Read(r, binary.LittleEndian, &policyPass); err != nil {
		return Response{}, fmt.Errorf("netproto: read response policy_pass: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &winrate); err != nil {
		return Response{}, fmt.Errorf("netproto: read response winrate: %w", err)
	}
	return Response{Policy: policy, PolicyPass: policyPass, Winrate: winrate}, nil
}
