// Package proving implements the prover and the proof assembler:
// streaming labels through per-nonce-group AES ciphers and picking the
// first nonce to accumulate k2 passing indices.
package proving

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/post-core/internal/aesbatch"
	"github.com/spacemeshos/post-core/persistence"
	"github.com/spacemeshos/post-core/shared"
)

// Consumer is called once per (nonce, index) pair whose AES output fell at
// or below the proving difficulty. Returning true requests that the
// prover stop dispatching further work; the assembler uses this once a
// nonce reaches k2 passing indices. May be invoked concurrently from
// multiple workers; Prove serializes calls with an internal lock, so
// implementations don't need their own synchronization.
type Consumer func(nonce uint32, index uint64) bool

// ChunkFunc is called after each batch finishes processing, reporting how
// many label bytes it covered.
type ChunkFunc func(bytes uint64)

// Prove streams source through the label difficulty check in ciphers,
// reporting every passing (nonce, index) pair to consume. threads <= 0
// means runtime.NumCPU(). Checked for cancellation at batch boundaries;
// returns shared.ErrCancelled if ctx is done before the stream is
// exhausted or a consumer requests a stop.
func Prove(ctx context.Context, source persistence.LabelSource, ciphers *aesbatch.Set, difficulty uint64, threads int, consume Consumer, onChunk ChunkFunc) error {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = 1
	}

	jobs := make(chan persistence.Batch, threads)
	var stop atomic.Bool
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < threads; w++ {
		g.Go(func() error {
			var block [aesbatch.BlockSize]byte
			for batch := range jobs {
				if stop.Load() {
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				processBatch(batch, ciphers, difficulty, block[:], &stop, &mu, consume)
				if onChunk != nil {
					onChunk(uint64(len(batch.Data)))
				}
			}
			return nil
		})
	}

feed:
	for {
		if stop.Load() {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		default:
		}
		batch, ok, err := source.Next()
		if err != nil {
			close(jobs)
			_ = g.Wait()
			var typed *shared.Error
			if errors.As(err, &typed) {
				return err
			}
			return shared.NewInternalError("reading label batch", err)
		}
		if !ok {
			break
		}
		select {
		case jobs <- batch:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return shared.ErrCancelled
		}
		return err
	}
	if ctx.Err() != nil && !stop.Load() {
		return shared.ErrCancelled
	}
	return nil
}

// processBatch checks every label in batch against every cipher in the
// set, in index-ascending, nonce-ascending order within the batch.
func processBatch(batch persistence.Batch, ciphers *aesbatch.Set, difficulty uint64, block []byte, stop *atomic.Bool, mu *sync.Mutex, consume Consumer) {
	data := batch.Data
	baseIndex := batch.Pos / aesbatch.BlockSize

	for off := 0; off+aesbatch.BlockSize <= len(data); off += aesbatch.BlockSize {
		if stop.Load() {
			return
		}
		index := baseIndex + uint64(off/aesbatch.BlockSize)
		label := data[off : off+aesbatch.BlockSize]

		for _, c := range ciphers.Ciphers {
			c.EncryptBlock(block, label)
			lo := aesbatch.EvenValue(block)
			hi := aesbatch.OddValue(block)

			if lo <= difficulty {
				if reportHit(c.NonceGroup*2, index, mu, consume) {
					stop.Store(true)
					return
				}
			}
			if hi <= difficulty {
				if reportHit(c.NonceGroup*2+1, index, mu, consume) {
					stop.Store(true)
					return
				}
			}
		}
	}
}

func reportHit(nonce uint32, index uint64, mu *sync.Mutex, consume Consumer) bool {
	mu.Lock()
	defer mu.Unlock()
	return consume(nonce, index)
}
