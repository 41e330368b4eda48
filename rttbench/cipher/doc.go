// Package cipher implements the keystream obfuscation applied to every
// rttbench payload.
//
// Properties:
//   - Self-inverse: Transform(Transform(x, k), k) == x
//   - Stateless across messages: every message restarts from the initial seed
//   - Length preserving, 8-byte blocks, little-endian packing
//
// This is obfuscation, not cryptography. It offers no confidentiality,
// integrity or authentication.
package cipher
