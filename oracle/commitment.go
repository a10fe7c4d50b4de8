package oracle

import "github.com/zeebo/blake3"

// CommitmentBytes derives the 32-byte commitment that label generation is
// keyed on: BLAKE3(nodeId || commitmentAtxId).
func CommitmentBytes(nodeId, commitmentAtxId []byte) []byte {
	h := blake3.New()
	h.Write(nodeId)
	h.Write(commitmentAtxId)
	return h.Sum(nil)
}
