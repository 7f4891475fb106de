package dist

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
)

const rngDomain = "qml/sample-rng/v1"

// NewRNG returns the generator for sample i of a run seeded with seed.
//
// Each sample's state is SHA-256(domain, seed, i), so a sample draws the
// same numbers regardless of worker count or scheduling. Sample streams are
// independent of each other; rerunning with fewer samples reproduces the
// first samples exactly, but no stream is a continuation of another.
func NewRNG(seed uint64, i int) *rand.Rand {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seed)
	binary.BigEndian.PutUint64(buf[8:], uint64(i))

	h := sha256.New()
	h.Write([]byte(rngDomain))
	h.Write([]byte{0})
	h.Write(buf[:])
	sum := h.Sum(nil)

	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
}
