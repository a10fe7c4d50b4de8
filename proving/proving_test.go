package proving_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/post-core/compression"
	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/initialization"
	"github.com/spacemeshos/post-core/internal/aesbatch"
	"github.com/spacemeshos/post-core/internal/postpow"
	"github.com/spacemeshos/post-core/oracle"
	"github.com/spacemeshos/post-core/persistence"
	"github.com/spacemeshos/post-core/proving"
	"github.com/spacemeshos/post-core/rng"
	"github.com/spacemeshos/post-core/shared"
	"github.com/spacemeshos/post-core/verifying"
)

// stubIdentity is a deterministic in-memory stand-in for the RandomX
// identity PoW, used so proving/verifying round-trip tests don't need a
// cgo RandomX build. It implements postpow.IdentityProver/Verifier by
// returning its configured witness from Prove and accepting exactly that
// witness in Verify, which is enough to exercise the
// proving/assembling/verifying pipeline end-to-end.
type stubIdentity struct{ witness uint64 }

func (s *stubIdentity) Prove(ctx context.Context, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) (uint64, error) {
	return s.witness, nil
}

func (s *stubIdentity) Verify(pow uint64, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) error {
	if pow != s.witness {
		return shared.NewInvalidPoWError("stub identity mismatch")
	}
	return nil
}

func (s *stubIdentity) IsParallel() bool { return false }

func testNetwork(t *testing.T) (config.InitConfig, config.InitOpts) {
	cfg := config.DefaultConfig()
	cfg.LabelsPerUnit = 256
	cfg.Scrypt = config.ScryptParams{N: 4, R: 1, P: 1}

	opts := config.DefaultInitOpts()
	opts.DataDir = t.TempDir()
	opts.NumUnits = cfg.MinNumUnits
	opts.MaxFileSize = 1 << 20
	opts.ComputeBatchSize = 64

	return cfg, opts
}

func initAndAssemble(t *testing.T, numUnits uint32) (*shared.Proof, *shared.ProofMetadata, proving.Params, verifying.Params) {
	r := require.New(t)
	cfg, opts := testNetwork(t)
	opts.NumUnits = numUnits

	nodeID := make([]byte, 32)
	nodeID[0] = 7
	atxID := make([]byte, 32)
	atxID[0] = 9

	init, err := initialization.New(
		initialization.WithNodeID(nodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.NoError(err)

	meta, err := init.Initialize(context.Background())
	r.NoError(err)
	r.NotNil(meta)

	numLabels := meta.NumLabels()

	challenge := make([]byte, 32)
	copy(challenge, []byte("hello world, challenge me!!!!!!"))

	identity := &stubIdentity{witness: 42}

	networkPowDiff := config.DefaultProofConfig().PowDifficulty
	powDiff := shared.ScalePowDifficulty(&networkPowDiff, opts.NumUnits)

	assembleParams := proving.Params{
		NumLabels:     numLabels,
		K1:            4,
		K2:            8,
		PowDifficulty: powDiff,
		Threads:       2,
	}
	copy(assembleParams.Challenge[:], challenge)
	copy(assembleParams.NodeID[:], nodeID)

	newSource := func() (persistence.LabelSource, error) {
		return persistence.NewFileStreamer(opts.DataDir, persistence.DefaultBatchSize, opts.MaxFileSize, nil)
	}

	proof, err := proving.Assemble(context.Background(), newSource, identity, assembleParams, nil)
	r.NoError(err)
	r.NotNil(proof)

	proofMeta := &shared.ProofMetadata{
		NodeId:          nodeID,
		CommitmentAtxId: atxID,
		Challenge:       challenge,
		NumUnits:        opts.NumUnits,
		LabelsPerUnit:   cfg.LabelsPerUnit,
	}

	verifyParams := verifying.Params{
		K1:            assembleParams.K1,
		K2:            assembleParams.K2,
		PowDifficulty: powDiff,
		Scrypt:        cfg.Scrypt,
		Threads:       2,
	}

	return proof, proofMeta, assembleParams, verifyParams
}

func TestAssembleAndVerify_RoundTrip(t *testing.T) {
	r := require.New(t)

	for _, numUnits := range []uint32{1, 2, 3} {
		proof, meta, _, vparams := initAndAssemble(t, numUnits)

		identity := &stubIdentity{witness: proof.Pow}
		err := verifying.Verify(context.Background(), proof, meta, vparams, verifying.Mode{Kind: verifying.ModeAll}, identity)
		r.NoError(err, "numUnits=%d", numUnits)

		bitsPerIndex := shared.BinaryRepresentationMinBits(meta.NumLabels())
		r.Equal(shared.Size(bitsPerIndex, uint(vparams.K2)), uint(len(proof.Indices)))

		decoded := compression.Decode(proof.Indices, bitsPerIndex)
		r.Len(decoded, int(vparams.K2))
		for _, idx := range decoded {
			r.Less(idx, meta.NumLabels())
		}
	}
}

// failingIndex returns a label index that does not satisfy the proving
// difficulty under the proof's nonce, used to tamper proofs in a way
// that's guaranteed to be detectable.
func failingIndex(t *testing.T, proof *shared.Proof, meta *shared.ProofMetadata, vparams verifying.Params) uint64 {
	r := require.New(t)
	numLabels := meta.NumLabels()

	var challenge32 [32]byte
	copy(challenge32[:], meta.Challenge)
	cipher, err := aesbatch.NewCipher(challenge32, proof.Nonce/2, proof.Pow)
	r.NoError(err)

	difficulty, err := shared.ProvingDifficulty(vparams.K1, numLabels)
	r.NoError(err)

	commitment := oracle.CommitmentBytes(meta.NodeId, meta.CommitmentAtxId)
	var out [16]byte
	for idx := uint64(0); idx < numLabels; idx++ {
		label, err := oracle.Label(commitment, idx, vparams.Scrypt)
		r.NoError(err)
		cipher.EncryptBlock(out[:], label[:])
		value := aesbatch.EvenValue(out[:])
		if proof.Nonce%2 == 1 {
			value = aesbatch.OddValue(out[:])
		}
		if value > difficulty {
			return idx
		}
	}
	t.Fatal("every label satisfies the difficulty; cannot build a tampered proof")
	return 0
}

func TestVerify_TamperedIndexDetected(t *testing.T) {
	r := require.New(t)
	proof, meta, _, vparams := initAndAssemble(t, 1)
	identity := &stubIdentity{witness: proof.Pow}

	bitsPerIndex := shared.BinaryRepresentationMinBits(meta.NumLabels())
	decoded := compression.Decode(proof.Indices, bitsPerIndex)
	tamperedID := 3
	decoded[tamperedID] = failingIndex(t, proof, meta, vparams)
	tampered := compression.Encode(decoded, bitsPerIndex)

	tamperedProof := &shared.Proof{Nonce: proof.Nonce, Indices: tampered, Pow: proof.Pow}

	err := verifying.Verify(context.Background(), tamperedProof, meta, vparams, verifying.Mode{Kind: verifying.ModeAll}, identity)
	r.Error(err)
	var postErr *shared.Error
	r.ErrorAs(err, &postErr)
	r.Equal(shared.KindInvalidMsb, postErr.Kind)
	r.Equal(uint64(tamperedID), postErr.IndexID)
}

func TestVerify_SubsetModeDetectsTamperIffSelected(t *testing.T) {
	r := require.New(t)
	proof, meta, _, vparams := initAndAssemble(t, 1)
	identity := &stubIdentity{witness: proof.Pow}

	bitsPerIndex := shared.BinaryRepresentationMinBits(meta.NumLabels())
	decoded := compression.Decode(proof.Indices, bitsPerIndex)
	tamperedID := uint64(5)
	decoded[tamperedID] = failingIndex(t, proof, meta, vparams)
	tampered := compression.Encode(decoded, bitsPerIndex)
	tamperedProof := &shared.Proof{Nonce: proof.Nonce, Indices: tampered, Pow: proof.Pow}

	seed := [][]byte{[]byte("subset-seed")}
	ids := make([]uint64, vparams.K2)
	for i := range ids {
		ids[i] = uint64(i)
	}

	for _, k3 := range []uint32{1, vparams.K2 - 1} {
		selected := rng.SampleWithoutReplacement(ids, int(k3), seed)
		hit := false
		for _, id := range selected {
			if id == tamperedID {
				hit = true
			}
		}

		err := verifying.Verify(context.Background(), tamperedProof, meta, vparams,
			verifying.Mode{Kind: verifying.ModeSubset, K3: k3, Seed: seed}, identity)
		if hit {
			r.Error(err, "k3=%d selected the tampered index", k3)
			var postErr *shared.Error
			r.ErrorAs(err, &postErr)
			r.Equal(shared.KindInvalidMsb, postErr.Kind)
			r.Equal(tamperedID, postErr.IndexID)
		} else {
			r.NoError(err, "k3=%d skipped the tampered index", k3)
		}
	}
}

func TestVerify_EmptyIndicesRejected(t *testing.T) {
	r := require.New(t)
	_, meta, _, vparams := initAndAssemble(t, 1)
	identity := &stubIdentity{witness: 0}

	proof := &shared.Proof{Nonce: 0, Indices: nil, Pow: 0}
	err := verifying.Verify(context.Background(), proof, meta, vparams, verifying.Mode{Kind: verifying.ModeAll}, identity)
	r.Error(err)
	postErr, ok := err.(*shared.Error)
	r.True(ok)
	r.Equal(shared.KindInvalidIndicesLength, postErr.Kind)
}

func TestVerify_SubsetMode(t *testing.T) {
	r := require.New(t)
	proof, meta, _, vparams := initAndAssemble(t, 1)
	identity := &stubIdentity{witness: proof.Pow}

	err := verifying.Verify(context.Background(), proof, meta, vparams,
		verifying.Mode{Kind: verifying.ModeSubset, K3: vparams.K2 - 1, Seed: [][]byte{[]byte("seed")}}, identity)
	r.NoError(err)
}

func TestAesBatch_CoversSixteenNonces(t *testing.T) {
	r := require.New(t)
	var challenge [32]byte
	set, err := aesbatch.NewBlockSet(challenge, 0, 123)
	r.NoError(err)
	r.Len(set.Ciphers, aesbatch.CiphersPerBlock)
}

func TestK2PoW_Fixpoint(t *testing.T) {
	r := require.New(t)
	params := config.ScryptParams{N: 4, R: 1, P: 1}
	var challenge [32]byte
	copy(challenge[:], []byte("hello world, challenge me!!!!!!"))

	difficulty := uint64(1) << 63
	for nonceGroup := uint32(0); nonceGroup < 8; nonceGroup++ {
		w, err := postpow.FindK2PoW(challenge, nonceGroup, params, difficulty)
		r.NoError(err)

		h, err := postpow.HashK2PoW(challenge, nonceGroup, params, w)
		r.NoError(err)
		r.Less(h, difficulty)
	}
}
