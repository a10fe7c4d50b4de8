package initialization_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/initialization"
	"github.com/spacemeshos/post-core/oracle"
	"github.com/spacemeshos/post-core/shared"
)

func testNetwork(t *testing.T) (config.InitConfig, config.InitOpts, []byte, []byte) {
	cfg := config.DefaultConfig()
	cfg.LabelsPerUnit = 64
	cfg.Scrypt = config.ScryptParams{N: 4, R: 1, P: 1}

	opts := config.DefaultInitOpts()
	opts.DataDir = t.TempDir()
	opts.NumUnits = cfg.MinNumUnits
	opts.MaxFileSize = 32 // splits the unit's labels across multiple files
	opts.ComputeBatchSize = 16

	nodeID := make([]byte, 32)
	nodeID[0] = 0x4d
	atxID := make([]byte, 32)
	atxID[0] = 0x2a
	return cfg, opts, nodeID, atxID
}

func TestInitialize_WritesLabelFilesAndMetadata(t *testing.T) {
	r := require.New(t)
	cfg, opts, nodeID, atxID := testNetwork(t)

	init, err := initialization.New(
		initialization.WithNodeID(nodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.NoError(err)

	meta, err := init.Initialize(context.Background())
	r.NoError(err)
	r.Equal(nodeID, meta.NodeId)
	r.Equal(atxID, meta.CommitmentAtxId)
	r.Equal(cfg.LabelsPerUnit, meta.LabelsPerUnit)
	r.Equal(opts.NumUnits, meta.NumUnits)

	numLabels := meta.NumLabels()
	expectedFiles := int((numLabels + opts.MaxFileSize - 1) / opts.MaxFileSize)

	entries, err := os.ReadDir(opts.DataDir)
	r.NoError(err)
	var binFiles int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".bin" {
			binFiles++
		}
	}
	r.Equal(expectedFiles, binFiles)

	loaded, err := shared.LoadMetadata(opts.DataDir)
	r.NoError(err)
	r.Equal(meta.NodeId, loaded.NodeId)

	// The concatenation of label files must equal a direct label-range
	// generation over the whole committed range.
	commitment := oracle.CommitmentBytes(nodeID, atxID)
	want, err := oracle.LabelsTo(commitment, 0, numLabels, cfg.Scrypt)
	r.NoError(err)

	var got []byte
	for i := 0; i < binFiles; i++ {
		data, err := os.ReadFile(filepath.Join(opts.DataDir, shared.InitFileName(i)))
		r.NoError(err)
		got = append(got, data...)
	}
	r.Equal(want, got)
}

func TestInitialize_VRFNonceSearch(t *testing.T) {
	r := require.New(t)
	cfg, opts, nodeID, atxID := testNetwork(t)

	// Labels are only 128 bits wide, so as a 256-bit big-endian integer
	// their top 16 bytes are always zero; any difficulty with a nonzero
	// leading byte is satisfied by every label, guaranteeing a nonce is
	// found.
	var vrf [32]byte
	vrf[0] = 0x80
	opts.VRFDifficulty = &vrf

	init, err := initialization.New(
		initialization.WithNodeID(nodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.NoError(err)

	meta, err := init.Initialize(context.Background())
	if err != nil {
		r.ErrorIs(err, initialization.ErrNonceNotFound)
		r.Nil(meta.Nonce)
		return
	}
	r.NotNil(meta.Nonce)
	r.Less(*meta.Nonce, meta.NumLabels())
}

func TestInitialize_ConfigMismatchOnResume(t *testing.T) {
	r := require.New(t)
	cfg, opts, nodeID, atxID := testNetwork(t)

	init, err := initialization.New(
		initialization.WithNodeID(nodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.NoError(err)
	_, err = init.Initialize(context.Background())
	r.NoError(err)

	otherNodeID := make([]byte, 32)
	otherNodeID[0] = 0xff
	_, err = initialization.New(
		initialization.WithNodeID(otherNodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.Error(err)
	var mismatch shared.ConfigMismatchError
	r.True(errors.As(err, &mismatch))
	r.Equal("NodeId", mismatch.Param)
}

func TestInitialize_ResumesPartialFile(t *testing.T) {
	r := require.New(t)
	cfg, opts, nodeID, atxID := testNetwork(t)

	init, err := initialization.New(
		initialization.WithNodeID(nodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.NoError(err)
	_, err = init.Initialize(context.Background())
	r.NoError(err)

	// Truncate the first file back down, simulating a crash that left a
	// partially-written file; a fresh Initializer over the same data
	// directory must pick up writing where the file left off.
	path := filepath.Join(opts.DataDir, shared.InitFileName(0))
	r.NoError(os.Truncate(path, 16*5))

	resumed, err := initialization.New(
		initialization.WithNodeID(nodeID),
		initialization.WithCommitmentATXID(atxID),
		initialization.WithConfig(cfg),
		initialization.WithInitOpts(opts),
	)
	r.NoError(err)
	meta, err := resumed.Initialize(context.Background())
	r.NoError(err)
	r.Equal(opts.NumUnits, meta.NumUnits)

	info, err := os.Stat(path)
	r.NoError(err)
	r.Equal(int64(opts.MaxFileSize*16), info.Size())
}
