// Package responder implements the echo side of the benchmark.
//
// Every inbound payload is decrypted with the initial seed and classified by
// its plaintext prefix: throughput probes get the fixed acknowledgment,
// everything else is echoed back byte for byte. No state is carried between
// messages or connections.
package responder

import (
	"sync/atomic"

	"github.com/TheusHen/rttbench/rttbench/cipher"
	"github.com/TheusHen/rttbench/rttbench/protocol"
)

// Stats counts handled messages by kind. Safe for concurrent use.
type Stats struct {
	Echoed  atomic.Int64
	Acked   atomic.Int64
	Dropped atomic.Int64
}

// Responder maps one request ciphertext to one reply ciphertext.
type Responder struct {
	stream cipher.Stream
	ack    []byte
	stats  Stats
}

// New returns a Responder for the shared initial seed.
func New(seed uint64) *Responder {
	s := cipher.New(seed)
	return &Responder{
		stream: s,
		ack:    s.Seal([]byte(protocol.AckLiteral)),
	}
}

// Respond decrypts a request, classifies it and returns the encrypted reply.
// The returned slice is never shared with other callers.
func (r *Responder) Respond(ciphertext []byte) ([]byte, protocol.Kind) {
	plaintext := r.stream.Open(ciphertext)
	kind := protocol.Classify(plaintext)
	if kind == protocol.KindThroughputProbe {
		r.stats.Acked.Add(1)
		return append([]byte(nil), r.ack...), kind
	}
	r.stats.Echoed.Add(1)
	return r.stream.Seal(plaintext), kind
}

// Stats exposes the counters.
func (r *Responder) Stats() *Stats { return &r.stats }
