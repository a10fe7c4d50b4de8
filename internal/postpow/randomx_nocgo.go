//go:build !cgo
// +build !cgo

package postpow

import (
	"context"

	"github.com/spacemeshos/post-core/shared"
)

// RandomXMode selects how much memory the identity PoW commits up front.
type RandomXMode int

const (
	RandomXLight RandomXMode = iota
	RandomXFast
)

// RandomXPoW is unavailable in this build: the identity PoW links against
// the native RandomX library via cgo, which this binary was built without.
type RandomXPoW struct{}

// NewRandomXPoW always fails when cgo is disabled.
func NewRandomXPoW(mode RandomXMode) (*RandomXPoW, error) {
	return nil, shared.NewInternalError("randomx identity pow requires a cgo build", nil)
}

func (r *RandomXPoW) Close() error { return nil }

func (r *RandomXPoW) Prove(ctx context.Context, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) (uint64, error) {
	return 0, shared.NewInternalError("randomx identity pow requires a cgo build", nil)
}

func (r *RandomXPoW) Verify(pow uint64, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) error {
	return shared.NewInternalError("randomx identity pow requires a cgo build", nil)
}

func (r *RandomXPoW) IsParallel() bool { return false }

// SetWorkers is a no-op in this build.
func SetWorkers(n int) {}
