package packwriter

import (
	"crypto/sha1"
	"hash"
)

// sha1Hasher adapts crypto/sha1's streaming hash.Hash to the Hasher
// interface.
type sha1Hasher struct {
	h hash.Hash
}

// NewSHA1Hasher returns a Hasher producing the 20-byte SHA-1 trailer
// Git's pack-v2 format expects.
func NewSHA1Hasher() Hasher {
	return &sha1Hasher{h: sha1.New()}
}

func (s *sha1Hasher) Update(p []byte) {
	s.h.Write(p) // nolint: errcheck — hash.Hash.Write never errors
}

func (s *sha1Hasher) Finalize() [20]byte {
	var sum [20]byte
	copy(sum[:], s.h.Sum(nil))
	return sum
}
