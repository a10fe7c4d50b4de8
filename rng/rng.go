// Package rng implements a deterministic RNG: a BLAKE3 XOF seeded from a
// set of seed parts, consumed via rejection sampling to drive a partial
// Fisher-Yates shuffle.
package rng

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// blake3XOF reads an arbitrary-length pseudorandom stream seeded from the
// concatenation of its seed parts, the Go analogue of blake3::Hasher's
// finalize_xof().
type blake3XOF struct {
	digest *blake3.Digest
}

func newBlake3XOF(seedParts [][]byte) *blake3XOF {
	h := blake3.New()
	for _, part := range seedParts {
		h.Write(part)
	}
	return &blake3XOF{digest: h.Digest()}
}

func (r *blake3XOF) nextU16() uint16 {
	var buf [2]byte
	_, _ = r.digest.Read(buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

// SampleWithoutReplacement performs a partial Fisher-Yates shuffle over
// values, returning the first k entries of the resulting permutation.
// Determined entirely by seed: the same seed and input always produce the
// same output, letting a prover and verifier agree on which indices a
// Subset verification mode should check.
func SampleWithoutReplacement(values []uint64, k int, seed [][]byte) []uint64 {
	if k > len(values) {
		k = len(values)
	}
	working := make([]uint64, len(values))
	copy(working, values)

	rng := newBlake3XOF(seed)
	out := make([]uint64, 0, k)
	n := len(working)
	for j := 0; j < k; j++ {
		remaining := n - j
		v := sampleIndex(rng, remaining)
		swapIdx := v + j
		working[j], working[swapIdx] = working[swapIdx], working[j]
		out = append(out, working[j])
	}
	return out
}

// sampleIndex draws a uniform index in [0, remaining) via rejection
// sampling against the largest multiple of remaining that fits in 16
// bits, so the result is unbiased.
func sampleIndex(rng *blake3XOF, remaining int) int {
	r := uint32(remaining)
	maxAllowed := (uint32(1) << 16) / r * r
	for {
		x := uint32(rng.nextU16())
		if x < maxAllowed {
			return int(x % r)
		}
	}
}
