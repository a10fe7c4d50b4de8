package shared

// Proof is the output of one proving session: the winning nonce, the
// bit-packed indices that passed the proving difficulty under it, and the
// RandomX witness binding the proof to the node's identity.
type Proof struct {
	Nonce   uint32
	Indices []byte
	Pow     uint64
}
