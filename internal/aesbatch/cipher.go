// Package aesbatch implements the per-nonce-group AES-128 cipher set used
// by the prover and verifier to turn labels into pass/fail values against
// a difficulty threshold.
package aesbatch

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/spacemeshos/post-core/shared"
)

// BlockSize is the AES block size and also the label size: one label
// encrypts to exactly one block.
const BlockSize = 16

// Cipher is one nonce group's AES-128 cipher: a single 128-bit block
// encryption covers two adjacent nonces (2*group and 2*group+1), selected
// by the low/high 8 bytes of the output block.
type Cipher struct {
	block      cipher.Block
	NonceGroup uint32
	PoW        uint64
}

// NewCipher derives a nonce group's AES key as
// blake3(challenge || LE32(nonceGroup) || LE64(pow))[:16] and builds its
// block cipher. pow is the identity PoW witness shared by every cipher in
// the 16-nonce block nonceGroup belongs to (see proving/assemble.go).
func NewCipher(challenge [32]byte, nonceGroup uint32, pow uint64) (*Cipher, error) {
	h := blake3.New()
	h.Write(challenge[:])
	var nb [4]byte
	binary.LittleEndian.PutUint32(nb[:], nonceGroup)
	h.Write(nb[:])
	var kb [8]byte
	binary.LittleEndian.PutUint64(kb[:], pow)
	h.Write(kb[:])

	key := h.Sum(nil)[:BlockSize]
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, shared.NewInternalError("building aes cipher", err)
	}
	return &Cipher{block: block, NonceGroup: nonceGroup, PoW: pow}, nil
}

// EncryptBlock encrypts one 16-byte label in place into dst.
func (c *Cipher) EncryptBlock(dst, label []byte) {
	c.block.Encrypt(dst, label)
}

// EvenValue reads the low 8 bytes of an encrypted block as a
// little-endian u64: the value checked against difficulty for the
// even nonce (2*NonceGroup) this cipher covers.
func EvenValue(encrypted []byte) uint64 {
	return binary.LittleEndian.Uint64(encrypted[0:8])
}

// OddValue reads the high 8 bytes of an encrypted block as a
// little-endian u64: the value for the odd nonce
// (2*NonceGroup + 1).
func OddValue(encrypted []byte) uint64 {
	return binary.LittleEndian.Uint64(encrypted[8:16])
}

// NoncesPerBlock is how many consecutive nonces share one identity PoW
// witness: the assembler computes one RandomX PoW per block and reuses it
// for all of the block's ciphers.
const NoncesPerBlock = 16

// CiphersPerBlock is how many AES ciphers are needed to cover a block,
// since each cipher covers two adjacent nonces.
const CiphersPerBlock = NoncesPerBlock / 2

// Set is the group of AES ciphers active for one nonce block, one cipher
// per two adjacent nonces, all keyed from the same PoW witness.
type Set struct {
	Ciphers []*Cipher
}

// NewBlockSet builds the CiphersPerBlock ciphers covering nonce block
// `block` (nonces [block*NoncesPerBlock, (block+1)*NoncesPerBlock)),
// all deriving their keys from the same shared pow witness.
func NewBlockSet(challenge [32]byte, block uint32, pow uint64) (*Set, error) {
	startGroup := block * CiphersPerBlock
	ciphers := make([]*Cipher, 0, CiphersPerBlock)
	for g := startGroup; g < startGroup+CiphersPerBlock; g++ {
		c, err := NewCipher(challenge, g, pow)
		if err != nil {
			return nil, err
		}
		ciphers = append(ciphers, c)
	}
	return &Set{Ciphers: ciphers}, nil
}
