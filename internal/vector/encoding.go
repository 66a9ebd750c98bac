package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Encode packs v into the BLOB stored alongside each chunk. Layout, little-endian:
// count (4), then per token in ascending order: token length (4), token bytes,
// weight as IEEE 754 float64 bits (8). Decode(Encode(v)) reproduces v exactly.
func Encode(v SparseVector) []byte {
	terms := make([]string, 0, len(v))
	size := 4
	for term := range v {
		terms = append(terms, term)
		size += 4 + len(term) + 8
	}
	sort.Strings(terms)

	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out, uint32(len(terms)))
	off := 4
	for _, term := range terms {
		binary.LittleEndian.PutUint32(out[off:], uint32(len(term)))
		off += 4
		off += copy(out[off:], term)
		binary.LittleEndian.PutUint64(out[off:], math.Float64bits(v[term]))
		off += 8
	}
	return out
}

// Decode unpacks a BLOB produced by Encode. An empty BLOB decodes to an empty vector.
func Decode(b []byte) (SparseVector, error) {
	if len(b) == 0 {
		return SparseVector{}, nil
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("vector: blob too short: %d bytes", len(b))
	}
	n := binary.LittleEndian.Uint32(b)
	// Each entry takes at least a length prefix and a weight.
	if n > uint32((len(b)-4)/12) {
		return nil, fmt.Errorf("vector: truncated blob: %d entries in %d bytes", n, len(b))
	}
	off := 4
	v := make(SparseVector, n)
	for i := uint32(0); i < n; i++ {
		if len(b)-off < 4 {
			return nil, fmt.Errorf("vector: truncated token length at entry %d", i)
		}
		termLen := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if termLen < 0 || len(b)-off < termLen+8 {
			return nil, fmt.Errorf("vector: truncated entry %d", i)
		}
		term := string(b[off : off+termLen])
		off += termLen
		v[term] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		off += 8
	}
	if off != len(b) {
		return nil, fmt.Errorf("vector: %d trailing bytes", len(b)-off)
	}
	return v, nil
}
