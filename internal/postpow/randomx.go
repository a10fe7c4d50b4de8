//go:build cgo
// +build cgo

package postpow

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/randomx/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/randomx/lib -lrandomx -lstdc++
#include <randomx.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/spacemeshos/post-core/shared"
)

// randomXCacheKey seeds the RandomX cache independently of any proving
// challenge, matching the fixed domain-separation key the identity PoW
// is built on.
var randomXCacheKey = []byte("spacemesh-randomx-cache-key")

// RandomXMode selects how much memory the identity PoW commits up front.
type RandomXMode int

const (
	// RandomXLight keeps only the ~256MiB cache resident; hashing runs
	// through it directly. Slower to hash, usable for verification.
	RandomXLight RandomXMode = iota
	// RandomXFast additionally builds the ~2080MiB dataset so hashing
	// runs at full proving speed. Proving-only: too much memory for a
	// verifier that just needs to check one hash.
	RandomXFast
)

// RandomXPoW is the identity proof-of-work: it binds a proof to the
// node's public identity so a proof can't be
// transplanted onto a different miner_id. It wraps a RandomX cache (and,
// in Fast mode, a dataset) plus a pool of VMs, one per goroutine that
// touches it, since a RandomX VM isn't safe for concurrent use.
type RandomXPoW struct {
	flags   C.randomx_flags
	cache   *C.randomx_cache
	dataset *C.randomx_dataset

	mu      sync.Mutex
	created []*C.randomx_vm
	pool    sync.Pool
}

// NewRandomXPoW initializes a RandomX cache (and dataset, in Fast mode)
// under the fixed cache key. This is expensive (seconds for Light, much
// longer for Fast, since it touches the whole dataset), so a RandomXPoW
// is meant to be built once and reused.
func NewRandomXPoW(mode RandomXMode) (*RandomXPoW, error) {
	flags := C.randomx_get_flags()
	if mode == RandomXFast {
		flags |= C.RANDOMX_FLAG_FULL_MEM
	}

	cache := C.randomx_alloc_cache(flags)
	if cache == nil {
		return nil, shared.NewInternalError("randomx_alloc_cache failed", nil)
	}
	C.randomx_init_cache(cache, unsafe.Pointer(&randomXCacheKey[0]), C.size_t(len(randomXCacheKey)))

	r := &RandomXPoW{flags: flags, cache: cache}

	if mode == RandomXFast {
		dataset := C.randomx_alloc_dataset(flags)
		if dataset == nil {
			C.randomx_release_cache(cache)
			return nil, shared.NewInternalError("randomx_alloc_dataset failed", nil)
		}
		count := C.randomx_dataset_item_count()
		C.randomx_init_dataset(dataset, cache, 0, count)
		r.dataset = dataset
		C.randomx_release_cache(cache)
		r.cache = nil
	}

	r.pool.New = func() any {
		vm := C.randomx_create_vm(r.flags, r.cache, r.dataset)
		if vm == nil {
			return nil
		}
		r.mu.Lock()
		r.created = append(r.created, vm)
		r.mu.Unlock()
		return vm
	}
	return r, nil
}

// Close releases the native cache, dataset and any pooled VMs. Using the
// RandomXPoW afterwards is undefined.
func (r *RandomXPoW) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vm := range r.created {
		C.randomx_destroy_vm(vm)
	}
	r.created = nil
	if r.dataset != nil {
		C.randomx_release_dataset(r.dataset)
		r.dataset = nil
	}
	if r.cache != nil {
		C.randomx_release_cache(r.cache)
		r.cache = nil
	}
	return nil
}

func (r *RandomXPoW) acquireVM() *C.randomx_vm {
	if v := r.pool.Get(); v != nil {
		return v.(*C.randomx_vm)
	}
	return nil
}

func (r *RandomXPoW) releaseVM(vm *C.randomx_vm) {
	r.pool.Put(vm)
}

func (r *RandomXPoW) hash(vm *C.randomx_vm, input []byte) [32]byte {
	var out [32]byte
	C.randomx_calculate_hash(vm, unsafe.Pointer(&input[0]), C.size_t(len(input)), unsafe.Pointer(&out[0]))
	return out
}

// powInput lays out w_lo7 || nonce_group || challenge || miner_id, with
// the 7-byte witness prefix overwritten per attempt.
func powInput(nonceGroup uint8, challenge [8]byte, minerID [32]byte) []byte {
	buf := make([]byte, 7+1+8+32)
	buf[7] = nonceGroup
	copy(buf[8:16], challenge[:])
	copy(buf[16:], minerID[:])
	return buf
}

func setWitness(buf []byte, witness uint64) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], witness)
	copy(buf[0:7], le[0:7])
}

// maxWitness bounds the witness search space: only the low 7 bytes of
// the counter enter the hash input, so the space is 2^56.
const maxWitness = uint64(1) << 56

// Prove searches for the smallest witness w in [0, 2^56) such that
// RandomX(w_lo7 || nonceGroup || challenge || minerID) < difficulty,
// scanning in synchronized rounds across all available VMs so the result
// doesn't depend on how many goroutines ran it.
func (r *RandomXPoW) Prove(ctx context.Context, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) (uint64, error) {
	workers := vmWorkerCount()
	chunk := uint64(roundSize)

	for round := uint64(0); ; round++ {
		if err := ctx.Err(); err != nil {
			return 0, shared.ErrCancelled
		}
		base := round * uint64(workers) * chunk
		if base >= maxWitness {
			return 0, shared.ErrPowNotFound
		}
		results := make([][]uint64, workers)
		var cancelled atomic.Bool
		var vmFailed atomic.Bool

		var wg sync.WaitGroup
		for worker := 0; worker < workers; worker++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				vm := r.acquireVM()
				if vm == nil {
					// An unchecked sub-range would break the
					// smallest-witness guarantee, so this is fatal.
					vmFailed.Store(true)
					return
				}
				defer r.releaseVM(vm)

				input := powInput(nonceGroup, challenge, minerID)
				start := base + uint64(worker)*chunk
				end := start + chunk
				if end > maxWitness {
					end = maxWitness
				}
				var hits []uint64
				for w := start; w < end; w++ {
					// Checked every attempt, not just between rounds:
					// RandomX hashing is deliberately slow and memory-hard,
					// so a round (workers*roundSize hashes) can take
					// hundreds of milliseconds, too coarse a cancellation
					// boundary.
					if ctx.Err() != nil {
						cancelled.Store(true)
						return
					}
					setWitness(input, w)
					h := r.hash(vm, input)
					if lessThan(h, difficulty) {
						hits = append(hits, w)
					}
				}
				results[worker] = hits
			}(worker)
		}
		wg.Wait()

		if cancelled.Load() {
			return 0, shared.ErrCancelled
		}
		if vmFailed.Load() {
			return 0, shared.NewInternalError("randomx vm allocation failed", nil)
		}
		if found, ok := minHit(results); ok {
			return found, nil
		}
	}
}

// IsParallel reports that Prove already spreads its search across
// vmWorkerCount() VMs, so callers don't need to also schedule it inside
// their own pool.
func (r *RandomXPoW) IsParallel() bool { return true }

// Verify recomputes the identity PoW hash for a claimed witness and
// checks it against difficulty.
func (r *RandomXPoW) Verify(pow uint64, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) error {
	vm := r.acquireVM()
	if vm == nil {
		return shared.NewInternalError("randomx vm allocation failed", nil)
	}
	defer r.releaseVM(vm)

	input := powInput(nonceGroup, challenge, minerID)
	setWitness(input, pow)
	h := r.hash(vm, input)
	if !lessThan(h, difficulty) {
		return shared.NewInvalidPoWError("identity proof of work does not satisfy difficulty")
	}
	return nil
}

func lessThan(hash, difficulty [32]byte) bool {
	for i := 0; i < 32; i++ {
		if hash[i] != difficulty[i] {
			return hash[i] < difficulty[i]
		}
	}
	return false
}

var vmWorkers atomic.Int32

func vmWorkerCount() int {
	if n := vmWorkers.Load(); n > 0 {
		return int(n)
	}
	return 1
}

// SetWorkers overrides how many concurrent RandomX VMs Prove spins up.
// Defaults to 1 (a single VM) when unset, since each VM owns its own
// ~2080MiB dataset view in Fast mode and the caller should size this to
// available memory and CPU, not just CPU count.
func SetWorkers(n int) {
	vmWorkers.Store(int32(n))
}
