package nncache

import (
	"github.com/lp200/leela-zero/internal/bitstream"
	"github.com/lp200/leela-zero/internal/codec"
)

// compressedEntry is the in-memory representation of a cached evaluation:
// the two scalars stored verbatim, and the policy vector compressed under
// the codec in spec.md §4.1.
type compressedEntry struct {
	policyPass       float32
	winrate          float32
	compressedPolicy *bitstream.Stream
}

func newCompressedEntry(r NetResult) *compressedEntry {
	return &compressedEntry{
		policyPass:       r.PolicyPass,
		winrate:          r.Winrate,
		compressedPolicy: codec.Encode(r.Policy),
	}
}

// decode expands the entry back into a NetResult with N policy entries. A
// malformed compressed_policy yields a DecodeError, which callers turn into
// a cache miss rather than propagating.
func (e *compressedEntry) decode(n int) (NetResult, error) {
	policy, err := codec.Decode(e.compressedPolicy, n)
	if err != nil {
		return NetResult{}, errDecode(err.Error())
	}
	return NetResult{
		Policy:     policy,
		PolicyPass: e.policyPass,
		Winrate:    e.winrate,
	}, nil
}

// sizeInBytes returns the ceil(bits/8) byte length of the compressed policy,
// the value stored as the record's length byte in the on-disk format.
func (e *compressedEntry) sizeInBytes() int {
	return (e.compressedPolicy.Size() + 7) / 8
}
