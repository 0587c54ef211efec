package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeCells encodes a row-major occupancy plane into base64(varint
// pairs). The pairs are (kind, run_len) repeated. Snake-grid planes are
// mostly empty, so run-length pairs compress the plane to a handful of
// bytes.
func EncodeCells(kinds []uint8) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(kinds) {
		k := kinds[i]
		run := 1
		for j := i + 1; j < len(kinds) && kinds[j] == k; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(k))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeCells expands an encoded plane back into kinds. maxCells bounds
// the decoded length so a hostile string cannot force unbounded
// allocation; runs that would exceed it are an error.
func DecodeCells(b64 string, maxCells int) ([]uint8, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint8
	for i := 0; i < len(raw); {
		k, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if k > 0xFF {
			return nil, fmt.Errorf("cell kind too large: %d", k)
		}
		if run > uint64(maxCells) || len(out)+int(run) > maxCells {
			return nil, fmt.Errorf("plane exceeds %d cells", maxCells)
		}
		for j := uint64(0); j < run; j++ {
			out = append(out, uint8(k))
		}
	}
	return out, nil
}
