// Package config holds the network parameters (InitConfig, ProofConfig)
// and per-node initialization options (InitOpts) that parameterize the
// PoST core.
package config

import (
	"fmt"

	"github.com/spacemeshos/post-core/shared"
)

// ScryptParams are the scrypt (N, r, p) parameters used for label
// generation and the k2 PoW. N must be a power of two >= 2.
type ScryptParams struct {
	N int
	R int
	P int
}

// Validate checks the scrypt parameter invariants required by the scrypt
// implementation (N a power of two >= 2; r, p powers of two).
func (s ScryptParams) Validate() error {
	if s.N < 2 || !isPow2(s.N) {
		return shared.NewInvalidArgumentError("scrypt N must be a power of two >= 2")
	}
	if !isPow2(s.R) {
		return shared.NewInvalidArgumentError("scrypt r must be a power of two >= 1")
	}
	if !isPow2(s.P) {
		return shared.NewInvalidArgumentError("scrypt p must be a power of two >= 1")
	}
	return nil
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// DefaultScryptParams mirrors the production scrypt parameters used by
// the real network (N=8192, r=1, p=1). Tests typically override these
// with much cheaper values.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{N: 8192, R: 1, P: 1}
}

// InitConfig is the consensus-wide network parameter set: the same for
// every node, fixed for the lifetime of the protocol version.
type InitConfig struct {
	MinNumUnits   uint32
	MaxNumUnits   uint32
	LabelsPerUnit uint64
	Scrypt        ScryptParams
}

// ProofConfig governs proving/verifying difficulty.
type ProofConfig struct {
	// K1 is the expected number of good labels per nonce across the
	// whole data set.
	K1 uint32
	// K2 is the number of good labels per nonce required to form a
	// proof.
	K2 uint32
	// K3 is the subset size used for cheap verification.
	K3 uint32
	// PowDifficulty is the network-wide 256-bit RandomX threshold,
	// big-endian, before per-unit scaling.
	PowDifficulty [32]byte
}

// InitOpts are the per-node options that drive one initialization run.
type InitOpts struct {
	DataDir          string
	NumUnits         uint32
	MaxFileSize      uint64
	ProviderID       uint32
	ComputeBatchSize uint64
	// VRFDifficulty, if non-nil, enables the VRF nonce search: among the
	// labels below this 256-bit big-endian threshold, the index of the one
	// with the lowest value is recorded as the nonce. This is not
	// necessarily the first qualifying index.
	VRFDifficulty *[32]byte
}

// CPUProviderID is the sentinel ProviderID selecting the CPU scrypt
// implementation instead of an OpenCL GPU provider.
const CPUProviderID = ^uint32(0)

// DefaultInitOpts returns initialization options suitable for tests: CPU
// provider, a compute batch of 1<<20 labels.
func DefaultInitOpts() InitOpts {
	return InitOpts{
		NumUnits:         1,
		MaxFileSize:      1 << 30,
		ProviderID:       CPUProviderID,
		ComputeBatchSize: 1 << 20,
	}
}

// DefaultConfig returns network parameters suitable for tests.
func DefaultConfig() InitConfig {
	return InitConfig{
		MinNumUnits:   1,
		MaxNumUnits:   1 << 16,
		LabelsPerUnit: 1 << 12,
		Scrypt:        DefaultScryptParams(),
	}
}

// DefaultProofConfig returns proof parameters suitable for tests.
func DefaultProofConfig() ProofConfig {
	return ProofConfig{
		K1:            10,
		K2:            10,
		K3:            5,
		PowDifficulty: [32]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	}
}

// Validate checks that opts is consistent with cfg: NumUnits within
// [MinNumUnits, MaxNumUnits], and labels_per_unit*num_units doesn't
// overflow a uint64.
func Validate(cfg InitConfig, opts InitOpts) error {
	if opts.NumUnits < cfg.MinNumUnits || opts.NumUnits > cfg.MaxNumUnits {
		return shared.NewInvalidArgumentError(fmt.Sprintf(
			"numUnits (%d) must be between %d and %d", opts.NumUnits, cfg.MinNumUnits, cfg.MaxNumUnits))
	}
	if shared.Uint64MulOverflow(uint64(opts.NumUnits), cfg.LabelsPerUnit) {
		return shared.NewInvalidArgumentError("labelsPerUnit * numUnits overflows a uint64")
	}
	if err := cfg.Scrypt.Validate(); err != nil {
		return err
	}
	if opts.MaxFileSize == 0 {
		return shared.NewInvalidArgumentError("maxFileSize must be > 0")
	}
	return nil
}

// BitsPerLabel is the width of a single label in bits.
const BitsPerLabel = 128
