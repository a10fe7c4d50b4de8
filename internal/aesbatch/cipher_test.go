package aesbatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/post-core/internal/aesbatch"
)

func TestNewCipher_DeterministicKeySchedule(t *testing.T) {
	r := require.New(t)
	var challenge [32]byte
	challenge[0] = 0x11

	a, err := aesbatch.NewCipher(challenge, 3, 42)
	r.NoError(err)
	b, err := aesbatch.NewCipher(challenge, 3, 42)
	r.NoError(err)

	label := make([]byte, 16)
	for i := range label {
		label[i] = byte(i)
	}
	outA := make([]byte, 16)
	outB := make([]byte, 16)
	a.EncryptBlock(outA, label)
	b.EncryptBlock(outB, label)
	r.Equal(outA, outB)
}

func TestNewCipher_DifferentPoWChangesOutput(t *testing.T) {
	r := require.New(t)
	var challenge [32]byte

	a, err := aesbatch.NewCipher(challenge, 0, 1)
	r.NoError(err)
	b, err := aesbatch.NewCipher(challenge, 0, 2)
	r.NoError(err)

	label := make([]byte, 16)
	outA := make([]byte, 16)
	outB := make([]byte, 16)
	a.EncryptBlock(outA, label)
	b.EncryptBlock(outB, label)
	r.NotEqual(outA, outB)
}

func TestEvenOddValue_ReadDistinctHalves(t *testing.T) {
	r := require.New(t)
	encrypted := make([]byte, 16)
	for i := range encrypted {
		encrypted[i] = byte(i + 1)
	}
	even := aesbatch.EvenValue(encrypted)
	odd := aesbatch.OddValue(encrypted)
	r.NotEqual(even, odd)
}

func TestNewBlockSet_CoversSixteenNonces(t *testing.T) {
	r := require.New(t)
	var challenge [32]byte

	set, err := aesbatch.NewBlockSet(challenge, 2, 7)
	r.NoError(err)
	r.Len(set.Ciphers, aesbatch.CiphersPerBlock)
	r.Equal(aesbatch.NoncesPerBlock, aesbatch.CiphersPerBlock*2)

	for i, c := range set.Ciphers {
		r.Equal(uint32(2*aesbatch.CiphersPerBlock+i), c.NonceGroup)
		r.Equal(uint64(7), c.PoW)
	}
}
