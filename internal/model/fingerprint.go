package model

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/sha3"
)

// Fingerprint returns a SHA3-256 digest of the sample's q and intensity
// arrays, hex encoded. Two files holding the same curve share a
// fingerprint; metadata and intensity errors do not take part.
func (s *Sample) Fingerprint() string {
	h := sha3.New256()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(s.q)))
	h.Write(buf[:])
	for _, arr := range [][]float64{s.q, s.intensity} {
		for _, v := range arr {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
