package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// SeriesHasher accumulates the raw values of a cycle series into a digest.
// Float values are hashed by their IEEE-754 bits so NaN and -0 stay distinct.
type SeriesHasher struct {
	buf []byte
}

// NewSeriesHasher creates an empty hasher
func NewSeriesHasher() *SeriesHasher {
	return &SeriesHasher{}
}

// AddInt appends an integer value
func (s *SeriesHasher) AddInt(v int) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, uint64(int64(v)))
}

// AddFloat appends a float value
func (s *SeriesHasher) AddFloat(v float64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, math.Float64bits(v))
}

// AddOptional appends a presence marker followed by the value when present
func (s *SeriesHasher) AddOptional(v *float64) {
	if v == nil {
		s.buf = append(s.buf, 0)
		return
	}
	s.buf = append(s.buf, 1)
	s.AddFloat(*v)
}

// AddString appends a length-prefixed string
func (s *SeriesHasher) AddString(v string) {
	s.AddInt(len(v))
	s.buf = append(s.buf, v...)
}

// Sum returns the digest of everything added so far
func (s *SeriesHasher) Sum() Hash {
	return NewHash(s.buf)
}
