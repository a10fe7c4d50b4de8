package proving

import (
	"context"
	"errors"

	"github.com/spacemeshos/post-core/compression"
	"github.com/spacemeshos/post-core/internal/aesbatch"
	"github.com/spacemeshos/post-core/internal/postpow"
	"github.com/spacemeshos/post-core/persistence"
	"github.com/spacemeshos/post-core/shared"
)

// Event identifies one of the assembler's two observable progress events.
type Event int

const (
	// EventStartedGroup fires when the assembler begins a new 16-nonce
	// block: identity PoW search, then the proving sweep.
	EventStartedGroup Event = iota
	// EventFinishedChunk fires after each batch finishes processing
	// during a block's proving sweep.
	EventFinishedChunk
)

// ProgressFunc receives the assembler's progress events. block is the
// current nonce block (0-based); bytes is only meaningful for
// EventFinishedChunk.
type ProgressFunc func(event Event, block uint32, bytes uint64)

// SourceFactory builds a fresh LabelSource over the full label set. The
// assembler needs one full pass per nonce block, so it calls this once
// per block rather than reusing a single exhausted source.
type SourceFactory func() (persistence.LabelSource, error)

// Params bundles everything the assembler needs beyond the label
// stream itself.
type Params struct {
	Challenge     [32]byte
	NodeID        [32]byte
	NumLabels     uint64
	K1            uint32
	K2            uint32
	PowDifficulty [32]byte // already scaled by num_units
	Threads       int
}

// Assemble walks nonce blocks 0, 1, 2, …: for each block it
// searches for the identity PoW witness, primes the block's 8 AES
// ciphers from it, streams the whole label set through Prove, and keeps a
// per-nonce vector of passing indices. The first nonce to reach K2
// indices (ties broken by the smaller nonce) wins and its indices are
// compressed into the returned Proof. Cancellation is polled between
// blocks and at Prove's batch boundaries.
func Assemble(ctx context.Context, newSource SourceFactory, identity postpow.IdentityProver, params Params, progress ProgressFunc) (*shared.Proof, error) {
	difficulty, err := shared.ProvingDifficulty(params.K1, params.NumLabels)
	if err != nil {
		return nil, err
	}
	bitsPerIndex := shared.BinaryRepresentationMinBits(params.NumLabels)

	var challenge8 [8]byte
	copy(challenge8[:], params.Challenge[:8])

	for block := uint32(0); ; block++ {
		if err := ctx.Err(); err != nil {
			return nil, shared.ErrCancelled
		}
		if progress != nil {
			progress(EventStartedGroup, block, 0)
		}

		pow, err := identity.Prove(ctx, uint8(block), challenge8, params.PowDifficulty, params.NodeID)
		if err != nil {
			if errors.Is(err, shared.ErrPowNotFound) {
				continue
			}
			return nil, err
		}

		ciphers, err := aesbatch.NewBlockSet(params.Challenge, block, pow)
		if err != nil {
			return nil, err
		}

		source, err := newSource()
		if err != nil {
			return nil, err
		}

		indices := make(map[uint32][]uint64, aesbatch.NoncesPerBlock)
		var winner uint32
		found := false

		consume := func(nonce uint32, index uint64) bool {
			// A worker that cleared the stop flag before the winning hit
			// set it can still report another index for the same nonce;
			// without this guard the winner's vector would grow past K2
			// and the encoded proof would fail the verifier's length
			// check.
			if uint32(len(indices[nonce])) >= params.K2 {
				return true
			}
			indices[nonce] = append(indices[nonce], index)
			if uint32(len(indices[nonce])) == params.K2 {
				if !found || nonce < winner {
					found = true
					winner = nonce
				}
				return true
			}
			return false
		}

		onChunk := func(bytes uint64) {
			if progress != nil {
				progress(EventFinishedChunk, block, bytes)
			}
		}

		proveErr := Prove(ctx, source, ciphers, difficulty, params.Threads, consume, onChunk)
		if closer, ok := source.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		if proveErr != nil {
			return nil, proveErr
		}

		if found {
			encoded := compression.Encode(indices[winner], bitsPerIndex)
			return &shared.Proof{Nonce: winner, Indices: encoded, Pow: pow}, nil
		}
	}
}
