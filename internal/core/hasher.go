package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "SealedAuction:genesis:v1"

// StateHasher chains a hash over every event the engine emits.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: sha256.Sum256([]byte(GenesisHashSeed)),
	}
}

// Peek computes SHA-256(prev_hash || sequence || digest) without moving the tip.
func (h *StateHasher) Peek(sequence int64, digest []byte) [32]byte {
	return chainHash(h.prevHash, sequence, digest)
}

// ComputeHash computes the next link and advances the tip to it.
func (h *StateHasher) ComputeHash(sequence int64, digest []byte) [32]byte {
	hash := chainHash(h.prevHash, sequence, digest)
	h.prevHash = hash
	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash restores the tip from a snapshot.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

func chainHash(prev [32]byte, sequence int64, digest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(prev[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(digest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// VerifyChain recomputes a chain from genesis over (sequence, digest) links
// and reports the first index whose stored hash does not match, or -1.
func VerifyChain(sequences []int64, digests [][]byte, hashes [][32]byte) int {
	h := NewStateHasher()
	for i := range sequences {
		if h.ComputeHash(sequences[i], digests[i]) != hashes[i] {
			return i
		}
	}
	return -1
}
