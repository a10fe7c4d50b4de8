package oracle

import (
	"bytes"

	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/shared"
)

// PositionsResult is the result of computing one range of labels: the raw
// label bytes, and, if a VRF difficulty was configured, the lowest-value
// candidate nonce in this range. Nonce is nil when no candidate in this
// range is lower than every candidate an earlier call already reported.
type PositionsResult struct {
	Output []byte
	Nonce  *uint64
}

// WorkOracle generates labels for a position range and, when configured
// with a VRF difficulty, searches for the VRF nonce alongside generation
// so initialization only has to stream the label set once.
type WorkOracle struct {
	commitment    []byte
	scrypt        config.ScryptParams
	vrfDifficulty *[32]byte
	logger        shared.Logger

	bestValue []byte
}

// Option configures a WorkOracle.
type Option func(*WorkOracle)

// WithCommitment sets the 32-byte commitment labels are derived from.
func WithCommitment(commitment []byte) Option {
	return func(w *WorkOracle) { w.commitment = commitment }
}

// WithScryptParams sets the scrypt parameters used for label generation.
func WithScryptParams(params config.ScryptParams) Option {
	return func(w *WorkOracle) { w.scrypt = params }
}

// WithVRFDifficulty enables the VRF nonce search: the lowest-value label
// below this 256-bit big-endian threshold is tracked as the nonce, which is
// not necessarily the first qualifying label.
// Labels are only 128 bits wide; they're compared as the low 16 bytes of
// a zero-extended 256-bit big-endian integer.
func WithVRFDifficulty(difficulty *[32]byte) Option {
	return func(w *WorkOracle) { w.vrfDifficulty = difficulty }
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger shared.Logger) Option {
	return func(w *WorkOracle) { w.logger = logger }
}

// WithProviderID is accepted for interface parity with a GPU-backed
// oracle; the CPU oracle ignores it (there is only one provider: scrypt
// on the CPU).
func WithProviderID(id uint) Option {
	return func(w *WorkOracle) {}
}

// New builds a WorkOracle from options.
func New(opts ...Option) (*WorkOracle, error) {
	w := &WorkOracle{logger: shared.DisabledLogger()}
	for _, opt := range opts {
		opt(w)
	}
	if len(w.commitment) != 32 {
		return nil, shared.NewInvalidArgumentError("commitment must be 32 bytes")
	}
	if err := w.scrypt.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Close releases any resources held by the oracle. The CPU oracle holds
// none; the method exists so GPU-backed oracles share the same interface.
func (w *WorkOracle) Close() error { return nil }

// Positions computes labels for the inclusive index range [start, end]
// and, if a VRF difficulty is configured, reports the best candidate
// nonce found in this range.
func (w *WorkOracle) Positions(start, end uint64) (PositionsResult, error) {
	if end < start {
		return PositionsResult{}, shared.NewInvalidArgumentError("end must be >= start")
	}
	out, err := LabelsTo(w.commitment, start, end+1, w.scrypt)
	if err != nil {
		return PositionsResult{}, err
	}

	res := PositionsResult{Output: out}
	if w.vrfDifficulty == nil {
		return res, nil
	}

	var candidateBuf [32]byte
	for i := start; i <= end; i++ {
		label := out[(i-start)*16 : (i-start)*16+16]
		copy(candidateBuf[16:], label)
		if bytes.Compare(candidateBuf[:], w.vrfDifficulty[:]) >= 0 {
			continue
		}
		if w.bestValue == nil || bytes.Compare(candidateBuf[:], w.bestValue) < 0 {
			best := make([]byte, 32)
			copy(best, candidateBuf[:])
			w.bestValue = best
			idx := i
			res.Nonce = &idx
			w.logger.Debug("found candidate VRF nonce")
		}
	}
	return res, nil
}
