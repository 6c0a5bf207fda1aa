// Package localeval implements the in-process fallback evaluator used when
// no distributed server is reachable. It loads a weights file with a small
// fixed binary header, but does not perform a real forward pass: producing
// correct network output is out of scope, so Evaluate returns a uniform
// policy and a winrate derived deterministically from the position
// fingerprint, which is enough to exercise caching and the evaluator facade
// without pretending to play strong Go.
package localeval

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// fileMagic identifies a local weights file; version is bumped whenever the
// header layout changes.
const (
	fileMagic   uint32 = 0x4C5A4C45 // "LZLE"
	fileVersion uint32 = 1
)

// FileHeader is the fixed little-endian binary header of a weights file: a
// magic number, a version, and the board size the weights were trained for.
type FileHeader struct {
	Magic     uint32
	Version   uint32
	BoardSize uint32
}

// Weights is the (stub) loaded model: just enough metadata to validate
// compatibility with a board size and to compute a deterministic hash.
type Weights struct {
	Header FileHeader
	Hash   uint64
}

// Load reads a weights file's header and stores an FNV-1a hash of the rest
// of the file in Weights.Hash.
func Load(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("localeval: open %s: %w", path, err)
	}
	defer f.Close()

	var hdr FileHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("localeval: read header: %w", err)
	}
	if hdr.Magic != fileMagic {
		return nil, fmt.Errorf("localeval: %s: bad magic number %x", path, hdr.Magic)
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("localeval: %s: unsupported version %d", path, hdr.Version)
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("localeval: read body: %w", err)
	}
	return &Weights{Header: hdr, Hash: fnv64(rest)}, nil
}

// Stub returns an in-memory Weights value for tests and for the
// -weights="" fallback mode, with no file backing it.
func Stub(boardSize int) *Weights {
	return &Weights{
		Header: FileHeader{Magic: fileMagic, Version: fileVersion, BoardSize: uint32(boardSize)},
		Hash:   0,
	}
}

// Evaluate produces a stand-in NetResult for a position identified by
// fingerprint: a uniform legal-move policy and a winrate of
// (fingerprint mod 1000)/1000, deterministic so repeated evaluation of the same
// position is idempotent without a cache.
func (w *Weights) Evaluate(fingerprint uint64, boardSize int) (policy []float32, policyPass float32, winrate float32) {
	n := boardSize
	policy = make([]float32, n)
	uniform := float32(1.0) / float32(n+1)
	for i := range policy {
		policy[i] = uniform
	}
	policyPass = uniform
	winrate = float32(fingerprint%1000) / 1000.0
	return policy, policyPass, winrate
}

func fnv64(data []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}
