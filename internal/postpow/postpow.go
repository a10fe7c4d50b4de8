package postpow

import "context"

// IdentityProver searches for a witness satisfying the RandomX identity
// PoW for a given nonce group and challenge.
type IdentityProver interface {
	Prove(ctx context.Context, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) (uint64, error)
	// IsParallel reports whether Prove already parallelizes its search
	// internally, so a caller like the assembler can decide whether to
	// also schedule the search inside its own pool or just rely on
	// Prove's own parallelism.
	IsParallel() bool
}

// IdentityVerifier checks a claimed RandomX identity PoW witness.
type IdentityVerifier interface {
	Verify(pow uint64, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) error
}
