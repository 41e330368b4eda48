package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// RTTMarker prefixes latency payloads.
	RTTMarker = "RTT"
	// ThroughputMarker prefixes throughput probes. It is the only signal the
	// responder uses to decide between acknowledging and echoing.
	ThroughputMarker = "THROUGHPUT"
	// AckLiteral is the fixed acknowledgment sent for every throughput probe.
	AckLiteral = "ACK8BYTE"
	// Filler pads payloads up to the requested size.
	Filler byte = 'A'
)

var (
	ErrInvalidSize  = errors.New("protocol: payload size must be positive")
	ErrSizeTooSmall = errors.New("protocol: payload size smaller than marker")
)

// NewRTTPayload returns a plaintext latency payload of exactly size bytes:
// RTTMarker followed by filler. For sizes below the marker length the marker
// is truncated; such payloads still classify as echo.
func NewRTTPayload(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return fill(RTTMarker, size), nil
}

// NewThroughputPayload returns a plaintext throughput probe of exactly size
// bytes. The whole marker must fit, otherwise the responder would echo the
// payload instead of acknowledging it.
func NewThroughputPayload(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if size < len(ThroughputMarker) {
		return nil, fmt.Errorf("%w: %d < %d", ErrSizeTooSmall, size, len(ThroughputMarker))
	}
	return fill(ThroughputMarker, size), nil
}

func fill(marker string, size int) []byte {
	b := bytes.Repeat([]byte{Filler}, size)
	copy(b, marker)
	return b
}

// Classify reports the kind of a decrypted payload. Leading bytes <= 0x20
// (spaces and control characters) are ignored before matching the marker.
func Classify(plaintext []byte) Kind {
	i := 0
	for i < len(plaintext) && plaintext[i] <= ' ' {
		i++
	}
	if bytes.HasPrefix(plaintext[i:], []byte(ThroughputMarker)) {
		return KindThroughputProbe
	}
	return KindEcho
}

// IsAck reports whether a decrypted reply is the acknowledgment literal.
func IsAck(plaintext []byte) bool {
	return string(plaintext) == AckLiteral
}
