package cipher

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrEmptyPassphrase = errors.New("cipher: empty passphrase")

const seedInfo = "rttbench-keystream-seed"

// SeedFromPassphrase derives an initial seed from a shared passphrase using
// HKDF-SHA256. Both peers derive the same value locally; nothing is
// exchanged on the wire.
func SeedFromPassphrase(passphrase string) (uint64, error) {
	if passphrase == "" {
		return 0, ErrEmptyPassphrase
	}
	hk := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(seedInfo))
	var buf [8]byte
	if _, err := io.ReadFull(hk, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
