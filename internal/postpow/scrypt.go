// Package postpow implements the two layered proofs-of-work: the
// scrypt-based k2-PoW that binds a proving nonce group to a witness, and
// the RandomX-based identity PoW that binds a proof to a node's identity.
package postpow

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/scrypt"

	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/shared"
)

// HashK2PoW computes scrypt(challenge || LE32(nonceGroup), salt=LE64(witness))
// truncated to 8 bytes and read as a little-endian u64.
func HashK2PoW(challenge [32]byte, nonceGroup uint32, params config.ScryptParams, witness uint64) (uint64, error) {
	input := make([]byte, 36)
	copy(input, challenge[:])
	binary.LittleEndian.PutUint32(input[32:], nonceGroup)

	var salt [8]byte
	binary.LittleEndian.PutUint64(salt[:], witness)

	out, err := scrypt.Key(input, salt[:], params.N, params.R, params.P, 8)
	if err != nil {
		return 0, shared.NewInternalError("scrypt k2 pow", err)
	}
	return binary.LittleEndian.Uint64(out), nil
}

// roundSize is how many witnesses each worker checks per synchronized
// round of FindK2PoW.
const roundSize = 256

// FindK2PoW finds the smallest witness w >= 0 such that
// HashK2PoW(...) < difficulty. The witness space is swept in synchronized
// rounds of `workers * roundSize` consecutive values, each worker taking a
// disjoint slice of the round; within a round that contains at least one
// hit, the smallest hit is returned. Because every witness below the
// round boundary was already checked and found failing in an earlier,
// fully-completed round, the winner never depends on the goroutine
// count.
func FindK2PoW(challenge [32]byte, nonceGroup uint32, params config.ScryptParams, difficulty uint64) (uint64, error) {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	chunk := uint64(roundSize)

	for round := uint64(0); ; round++ {
		base := round * uint64(workers) * chunk
		results := make([][]uint64, workers)

		var wg sync.WaitGroup
		var firstErr atomic.Pointer[error]
		for worker := 0; worker < workers; worker++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				start := base + uint64(worker)*chunk
				var hits []uint64
				for w := start; w < start+chunk; w++ {
					h, err := HashK2PoW(challenge, nonceGroup, params, w)
					if err != nil {
						firstErr.Store(&err)
						return
					}
					if h < difficulty {
						hits = append(hits, w)
					}
				}
				results[worker] = hits
			}(worker)
		}
		wg.Wait()

		if p := firstErr.Load(); p != nil {
			return 0, *p
		}

		found, ok := minHit(results)
		if ok {
			return found, nil
		}
		if base > 1<<62 {
			return 0, shared.ErrPowNotFound
		}
	}
}

func minHit(results [][]uint64) (uint64, bool) {
	var best uint64
	found := false
	for _, hits := range results {
		for _, h := range hits {
			if !found || h < best {
				best = h
				found = true
			}
		}
	}
	return best, found
}
