// Package verifying implements proof verification: it rechecks the
// identity PoW, the compressed index length, decodes the indices, rebuilds
// the prover's AES cipher from the proof's nonce and PoW witness, and
// re-derives the label for each selected index to confirm it satisfies
// the proving difficulty. Subset selection uses the deterministic sampler
// from the rng package so prover and verifier agree on the checked set.
package verifying

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/post-core/compression"
	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/internal/aesbatch"
	"github.com/spacemeshos/post-core/internal/postpow"
	"github.com/spacemeshos/post-core/oracle"
	"github.com/spacemeshos/post-core/rng"
	"github.com/spacemeshos/post-core/shared"
)

// ModeKind selects which of a proof's indices are actually checked.
type ModeKind int

const (
	// ModeAll checks every decoded index.
	ModeAll ModeKind = iota
	// ModeOne checks a single index by position within the decoded set.
	ModeOne
	// ModeSubset checks a deterministic k3-sized subset chosen by seed.
	ModeSubset
)

// Mode parameterizes which indices Verify actually checks.
type Mode struct {
	Kind  ModeKind
	Index int      // used by ModeOne
	K3    uint32   // used by ModeSubset
	Seed  [][]byte // used by ModeSubset
}

// Params bundles the network parameters the verifier needs beyond the
// proof and its metadata.
type Params struct {
	K1            uint32
	K2            uint32
	PowDifficulty [32]byte // already scaled by num_units
	Scrypt        config.ScryptParams
	Threads       int
}

// Verify checks proof against metadata under params and mode. Checks run
// in a fixed order: PoW, index length, decode, cipher reconstruction,
// per-index difficulty. Any failure returns a typed *shared.Error.
// identity only needs light (cache-only) RandomX hashing.
func Verify(ctx context.Context, proof *shared.Proof, metadata *shared.ProofMetadata, params Params, mode Mode, identity postpow.IdentityVerifier) error {
	numLabels := metadata.NumLabels()

	// 1. PoW.
	block := proof.Nonce / aesbatch.NoncesPerBlock
	var challenge8 [8]byte
	copy(challenge8[:], metadata.Challenge[:8])
	var nodeID [32]byte
	copy(nodeID[:], metadata.NodeId)
	if err := identity.Verify(proof.Pow, uint8(block), challenge8, params.PowDifficulty, nodeID); err != nil {
		return shared.NewInvalidPoWError("identity proof of work verification failed")
	}

	// 2. Index length.
	bitsPerIndex := shared.BinaryRepresentationMinBits(numLabels)
	expected := shared.Size(bitsPerIndex, uint(params.K2))
	if uint(len(proof.Indices)) != expected {
		return shared.NewInvalidIndicesLengthError(len(proof.Indices), int(expected))
	}

	// 3. Decode.
	// Padding bits in the last byte can decode to extra trailing values;
	// only the first K2 are the proof's indices.
	indexes := compression.Decode(proof.Indices, bitsPerIndex)
	if uint32(len(indexes)) < params.K2 {
		return shared.NewInvalidIndicesLengthError(len(indexes), int(params.K2))
	}
	indexes = indexes[:params.K2]
	for _, idx := range indexes {
		if idx >= numLabels {
			return shared.NewIndexOutOfRangeError(idx, numLabels)
		}
	}

	// 4. Key reconstruction.
	var challenge32 [32]byte
	copy(challenge32[:], metadata.Challenge)
	cipherGroup := proof.Nonce / 2
	cipher, err := aesbatch.NewCipher(challenge32, cipherGroup, proof.Pow)
	if err != nil {
		return err
	}
	half := proof.Nonce % 2

	var commitment [32]byte
	copy(commitment[:], oracle.CommitmentBytes(metadata.NodeId, metadata.CommitmentAtxId))

	// 5. Index check over the selected subset.
	selected, err := selectIndices(indexes, mode)
	if err != nil {
		return err
	}

	difficulty, err := shared.ProvingDifficulty(params.K1, numLabels)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if params.Threads > 0 {
		g.SetLimit(params.Threads)
	}
	for _, sel := range selected {
		sel := sel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return shared.ErrCancelled
			}
			label, err := oracle.Label(commitment[:], sel.index, params.Scrypt)
			if err != nil {
				return err
			}
			var out [16]byte
			cipher.EncryptBlock(out[:], label[:])
			var value uint64
			if half == 0 {
				value = aesbatch.EvenValue(out[:])
			} else {
				value = aesbatch.OddValue(out[:])
			}
			if value > difficulty {
				return shared.NewInvalidMsbError(uint64(sel.id), value, difficulty)
			}
			return nil
		})
	}
	return g.Wait()
}

type selectedIndex struct {
	id    int
	index uint64
}

func selectIndices(indexes []uint64, mode Mode) ([]selectedIndex, error) {
	switch mode.Kind {
	case ModeAll:
		out := make([]selectedIndex, len(indexes))
		for i, idx := range indexes {
			out[i] = selectedIndex{id: i, index: idx}
		}
		return out, nil
	case ModeOne:
		if mode.Index < 0 || mode.Index >= len(indexes) {
			return nil, shared.NewInvalidArgumentError("mode index out of range")
		}
		return []selectedIndex{{id: mode.Index, index: indexes[mode.Index]}}, nil
	case ModeSubset:
		ids := make([]uint64, len(indexes))
		for i := range indexes {
			ids[i] = uint64(i)
		}
		chosen := rng.SampleWithoutReplacement(ids, int(mode.K3), mode.Seed)
		out := make([]selectedIndex, len(chosen))
		for i, id := range chosen {
			out[i] = selectedIndex{id: int(id), index: indexes[id]}
		}
		return out, nil
	default:
		return nil, shared.NewInvalidArgumentError("unknown verification mode")
	}
}
