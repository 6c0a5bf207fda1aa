// Package codec implements the bespoke variable-length policy code described
// in spec.md §4.1: a length-N vector of floats in [0,1], quantized to 11-bit
// integers, compressed by exploiting runs of zero quanta and small nonzero
// quanta clustered near zero.
package codec

import (
	"fmt"

	"github.com/lp200/leela-zero/internal/bitstream"
)

const (
	// QuantumScale is the quantization multiplier: q = floor(policy[i] * QuantumScale).
	QuantumScale = 2048

	vBase = 0
	zBase = 64
	xBase = 80
)

// codeword describes one prefix-code slice: `count` consecutive in-family
// symbols, starting at some cumulative symbolBase, share `code` in their low
// `width` bits; the next log2(count) bits disambiguate which symbol.
type codeword struct {
	code  uint64
	width int
	count int
}

// table mirrors the reference NNCompressEncodeTable exactly, in the order
// V0, V1, V2-3, V4-7, V8-15, V16-31, V32-63, Z0, Z1, Z2-3, Z4-7, Z8-15,
// X0, X1, X2-3, X4-7, X8-15, X16-31.
var table = []codeword{
	{0x4, 4, 1},  // V0
	{0x0, 3, 1},  // V1
	{0xc, 4, 2},  // V2-V3
	{0x2, 4, 4},  // V4-V7
	{0xa, 4, 8},  // V8-V15
	{0x6, 4, 16}, // V16-V31
	{0xe, 4, 32}, // V32-V63
	{0x1, 4, 1},  // Z0
	{0x9, 4, 1},  // Z1
	{0x5, 4, 2},  // Z2-Z3
	{0xd, 4, 4},  // Z4-Z7
	{0x3, 4, 8},  // Z8-Z15
	{0xb, 4, 1},  // X0
	{0x7, 5, 1},  // X1
	{0x17, 5, 2}, // X2-X3
	{0xf, 5, 4},  // X4-X7
	{0x1f, 6, 8}, // X8-X15
	{0x3f, 6, 16}, // X16-X31
}

func log2Count(count int) int {
	switch count {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	case 16:
		return 4
	case 32:
		return 5
	default:
		return 7
	}
}

// DecodeError reports a malformed compressed policy.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode error: %s", e.Reason)
}

func pushSymbol(s *bitstream.Stream, symbol int) {
	symbolBase := 0
	for _, e := range table {
		if symbol >= symbolBase && symbol < symbolBase+e.count {
			code := e.code | (uint64(symbol-symbolBase) << uint(e.width))
			s.PushBits(e.width+log2Count(e.count), code)
			return
		}
		symbolBase += e.count
	}
	panic(fmt.Sprintf("codec: symbol %d out of range", symbol))
}

// readSymbol decodes one symbol starting at bit offset iptr, returning the
// symbol value and the number of bits consumed.
func readSymbol(s *bitstream.Stream, iptr int) (symbol, consumed int, err error) {
	lowBits := s.ReadBits(iptr, 10)
	symbolBase := 0
	for _, e := range table {
		mask := uint64(1)<<uint(e.width) - 1
		if e.code == lowBits&mask {
			idxBits := log2Count(e.count)
			symbol = symbolBase + int((lowBits>>uint(e.width))%uint64(e.count))
			_ = idxBits
			return symbol, e.width + log2Count(e.count), nil
		}
		symbolBase += e.count
	}
	return 0, 0, &DecodeError{Reason: "no matching codeword prefix"}
}

// Encode compresses a policy vector of length N (quantized internally to
// 0..2047) into a bitstream per the encoder strategy in spec.md §4.1.
func Encode(policy []float32) *bitstream.Stream {
	n := len(policy)
	s := bitstream.New(n)
	i := 0
	for i < n {
		q := quantize(policy[i])
		if q == 0 {
			count := 0
			for i < n && quantize(policy[i]) == 0 {
				i++
				count++
			}
			if count == 1 {
				pushSymbol(s, vBase)
			} else {
				bias := (count - 2) / 16
				offset := (count - 2) % 16
				pushSymbol(s, zBase+offset)
				if bias != 0 {
					pushSymbol(s, xBase+bias-1)
				}
			}
		} else {
			bias := q / 64
			offset := q % 64
			pushSymbol(s, vBase+offset)
			if bias != 0 {
				pushSymbol(s, xBase+bias-1)
			}
			i++
		}
	}
	return s
}

func quantize(p float32) int {
	q := int(p * QuantumScale)
	if q < 0 {
		q = 0
	}
	if q > QuantumScale-1 {
		q = QuantumScale - 1
	}
	return q
}

// Decode expands a compressed bitstream back into a policy vector of length
// n. It tolerates an unread tail of 0..8 bits (the byte-padding slack
// spec.md §3 allows) but reports a DecodeError for any other mismatch, an X
// symbol with no preceding V/Z, or decoding past n.
func Decode(s *bitstream.Stream, n int) ([]float32, error) {
	policy := make([]float32, n)
	iptr := 0
	optr := 0
	const (
		prevNone = -1
		prevV    = 0
		prevZ    = 1
	)
	prevType := prevNone

	for optr < n {
		symbol, consumed, err := readSymbol(s, iptr)
		if err != nil {
			return nil, err
		}
		iptr += consumed

		switch {
		case symbol < zBase:
			policy[optr] = float32(symbol) / QuantumScale
			optr++
			prevType = prevV
		case symbol < xBase:
			run := symbol - zBase + 2
			for k := 0; k < run; k++ {
				if optr >= n {
					return nil, &DecodeError{Reason: "buffer overflow"}
				}
				policy[optr] = 0
				optr++
			}
			prevType = prevZ
		default:
			bias := symbol - xBase + 1
			switch prevType {
			case prevV:
				policy[optr-1] += float32(64*bias) / QuantumScale
			case prevZ:
				run := bias * 16
				for k := 0; k < run; k++ {
					if optr >= n {
						return nil, &DecodeError{Reason: "buffer overflow"}
					}
					policy[optr] = 0
					optr++
				}
			default:
				return nil, &DecodeError{Reason: "X symbol without preceding V or Z"}
			}
			prevType = prevNone
		}
	}

	// An X that scales the final V comes after optr has reached n; consume
	// it here so the last quantum is not left at its low 6 bits.
	if prevType == prevV && iptr < s.Size() {
		symbol, consumed, err := readSymbol(s, iptr)
		if err == nil && symbol >= xBase {
			policy[n-1] += float32(64*(symbol-xBase+1)) / QuantumScale
			iptr += consumed
		}
	}

	size := s.Size()
	if iptr > size || iptr < size-8 {
		return nil, &DecodeError{Reason: "unexpected consumed bit count"}
	}
	return policy, nil
}
