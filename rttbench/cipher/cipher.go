package cipher

import "encoding/binary"

// DefaultSeed is the initial keystream seed shared by client and server.
const DefaultSeed uint64 = 123456789

// BlockSize is the number of payload bytes covered by one seed value.
const BlockSize = 8

// Advance steps the keystream seed with the xorshift recurrence
// (<<13, >>7, <<17).
func Advance(seed uint64) uint64 {
	seed ^= seed << 13
	seed ^= seed >> 7
	seed ^= seed << 17
	return seed
}

// Transform XORs data with the keystream derived from seed and returns a new
// slice of the same length. The first block uses seed as-is; the seed
// advances after each block. A trailing short block is XORed over its
// actual length only.
func Transform(data []byte, seed uint64) []byte {
	out := make([]byte, len(data))
	var block [BlockSize]byte
	for i := 0; i < len(data); i += BlockSize {
		n := copy(block[:], data[i:])
		clear(block[n:])
		word := binary.LittleEndian.Uint64(block[:]) ^ seed
		binary.LittleEndian.PutUint64(block[:], word)
		copy(out[i:i+n], block[:n])
		seed = Advance(seed)
	}
	return out
}

// Stream binds Transform to a fixed initial seed.
// Seal and Open are the same operation; both names exist so call sites read
// in the direction of the data.
type Stream struct {
	seed uint64
}

// New returns a Stream for the given initial seed.
func New(seed uint64) Stream {
	return Stream{seed: seed}
}

// Seed returns the initial seed.
func (s Stream) Seed() uint64 { return s.seed }

// Seal obfuscates plaintext.
func (s Stream) Seal(plaintext []byte) []byte { return Transform(plaintext, s.seed) }

// Open recovers plaintext from an obfuscated payload.
func (s Stream) Open(ciphertext []byte) []byte { return Transform(ciphertext, s.seed) }
