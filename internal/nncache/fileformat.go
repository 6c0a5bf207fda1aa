package nncache

import (
	"encoding/binary"
	"io"

	"github.com/lp200/leela-zero/internal/bitstream"
)

// magic is the 4-byte header identifying an NNCache on-disk log (spec.md §6.1).
var magic = [4]byte{0xFE, 'L', 'N', 'C'}

// guard is the 16-byte all-0xFF marker readers scan for to resync after
// corruption.
var guard = [16]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// guardEvery is how often (in appended records) a fresh guard is written to
// the log, enabling coarse resync on load.
const guardEvery = 1024

// writeRecord appends one record at the writer's current position and
// returns the byte offset at which it was written. n (the compressed-policy
// length in bytes) must be < 255; a value of 0xFF is rejected because it
// would alias the guard byte-for-byte if repeated sixteen times, per the
// invariant spec.md §9 calls out.
func writeRecord(w io.WriteSeeker, fingerprint uint64, e *compressedEntry) (int64, error) {
	n := e.sizeInBytes()
	if n >= 0xFF {
		return 0, errUnsupported("compressed policy too large to store")
	}
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, fingerprint); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, e.policyPass); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, e.winrate); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, byte(n)); err != nil {
		return 0, err
	}
	if _, err := w.Write(e.compressedPolicy.Bytes()); err != nil {
		return 0, err
	}
	return pos, nil
}

// readRecord parses one record at the reader's current position. If
// expectedHash is not the sentinel, a mismatch between it and the stored
// fingerprint is a decode error: the record isn't the one the index claimed
// was there.
func readRecord(r io.Reader, expectedHash uint64) (fingerprint uint64, e *compressedEntry, err error) {
	if err := binary.Read(r, binary.LittleEndian, &fingerprint); err != nil {
		return 0, nil, err
	}
	if expectedHash != Sentinel && fingerprint != expectedHash {
		return 0, nil, errDecode("fingerprint mismatch at recorded offset")
	}
	var policyPass, winrate float32
	if err := binary.Read(r, binary.LittleEndian, &policyPass); err != nil {
		return 0, nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &winrate); err != nil {
		return 0, nil, err
	}
	var n byte
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, nil, err
	}
	if n == 0xFF {
		return 0, nil, errDecode("record length aliases the guard byte")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	e = &compressedEntry{
		policyPass:       policyPass,
		winrate:          winrate,
		compressedPolicy: bitstream.FromBytes(buf),
	}
	return fingerprint, e, nil
}

// writeGuard appends the 16-byte resync marker at the writer's current
// position.
func writeGuard(w io.Writer) error {
	_, err := w.Write(guard[:])
	return err
}

// scanForGuard advances r past bytes until it has consumed a full 16-byte
// run of 0xFF, or hits EOF. It returns the number of bytes consumed
// (including the guard itself) so a caller tracking an absolute offset can
// stay in sync.
func scanForGuard(r io.Reader) (consumed int64, found bool, err error) {
	run := 0
	buf := make([]byte, 1)
	for {
		_, rerr := io.ReadFull(r, buf)
		if rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return consumed, false, nil
			}
			return consumed, false, rerr
		}
		consumed++
		if buf[0] == 0xFF {
			run++
			if run == 16 {
				return consumed, true, nil
			}
		} else {
			run = 0
		}
	}
}
