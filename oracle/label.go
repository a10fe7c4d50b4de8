package oracle

import (
	"encoding/binary"

	"golang.org/x/crypto/scrypt"

	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/shared"
)

// labelSize is the fixed width of a label: scrypt output truncated to 16
// bytes.
const labelSize = 16

// Label derives the 16-byte label at index under commitment, using the
// given scrypt parameters. It is a pure function: label generation must be
// byte-identical between initializer, prover and verifier, and between
// CPU and GPU implementations.
func Label(commitment []byte, index uint64, params config.ScryptParams) ([16]byte, error) {
	var out [16]byte
	buf, err := labelsTo(commitment, index, index+1, params)
	if err != nil {
		return out, err
	}
	copy(out[:], buf)
	return out, nil
}

// LabelsTo derives labels for the half-open index range [start, end) into
// a freshly-allocated buffer, one scrypt call per index. Parallelism is
// the caller's responsibility; this is the sequential primitive other
// code (the initializer, the work oracle) wraps.
func LabelsTo(commitment []byte, start, end uint64, params config.ScryptParams) ([]byte, error) {
	return labelsTo(commitment, start, end, params)
}

func labelsTo(commitment []byte, start, end uint64, params config.ScryptParams) ([]byte, error) {
	if end < start {
		return nil, shared.NewInvalidArgumentError("end must be >= start")
	}
	count := end - start
	out := make([]byte, count*labelSize)

	password := make([]byte, 40)
	copy(password[:32], commitment)
	for i := uint64(0); i < count; i++ {
		binary.LittleEndian.PutUint64(password[32:], start+i)
		label, err := scrypt.Key(password, nil, params.N, params.R, params.P, labelSize)
		if err != nil {
			return nil, shared.NewInternalError("scrypt", err)
		}
		copy(out[i*labelSize:(i+1)*labelSize], label)
	}
	return out, nil
}
