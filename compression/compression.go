// Package compression implements the little-endian, LSB-first bit-packed
// index codec used to compress a proof's indices down to the minimum
// number of bits that fit num_labels-1.
package compression

import "github.com/bits-and-blooms/bitset"

// Encode bit-packs indices, keeping only the low bitsPerIndex bits of
// each value, LSB-first.
func Encode(indices []uint64, bitsPerIndex uint) []byte {
	bv := bitset.New(uint(len(indices)) * bitsPerIndex)
	pos := uint(0)
	for _, v := range indices {
		for b := uint(0); b < bitsPerIndex; b++ {
			if v&(1<<b) != 0 {
				bv.Set(pos)
			}
			pos++
		}
	}
	return bitsetToLSB0Bytes(bv, pos)
}

// Decode unpacks whole bitsPerIndex-sized chunks from data, LSB-first.
// A trailing partial chunk (fewer than bitsPerIndex bits remaining) is
// ignored.
func Decode(data []byte, bitsPerIndex uint) []uint64 {
	if bitsPerIndex == 0 {
		return nil
	}
	totalBits := uint(len(data)) * 8
	count := totalBits / bitsPerIndex
	out := make([]uint64, 0, count)
	for i := uint(0); i < count; i++ {
		var v uint64
		for b := uint(0); b < bitsPerIndex; b++ {
			bitPos := i*bitsPerIndex + b
			byteIdx := bitPos / 8
			bitIdx := bitPos % 8
			if data[byteIdx]&(1<<bitIdx) != 0 {
				v |= 1 << b
			}
		}
		out = append(out, v)
	}
	return out
}

// bitsetToLSB0Bytes packs the first numBits bits of bv into bytes, bit 0
// of byte 0 first.
func bitsetToLSB0Bytes(bv *bitset.BitSet, numBits uint) []byte {
	out := make([]byte, (numBits+7)/8)
	for i := uint(0); i < numBits; i++ {
		if bv.Test(i) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}
