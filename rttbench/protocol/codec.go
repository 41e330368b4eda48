package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// LengthPrefixSize is the size of the big-endian frame length prefix.
	LengthPrefixSize = 4
	// MaxFramePayload bounds the allocation made for one inbound frame.
	MaxFramePayload = 1 << 20 // 1 MiB
)

var (
	// ErrConnectionClosed means the stream ended cleanly at a frame boundary.
	ErrConnectionClosed = errors.New("protocol: connection closed")
	// ErrMalformedFrame means the stream ended, or failed, inside a frame.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	// ErrFrameTooLarge is a malformed frame whose length prefix exceeds the limit.
	ErrFrameTooLarge = fmt.Errorf("%w: payload too large", ErrMalformedFrame)
)

// Frame layout:
//
//	4 bytes: payload length (big endian)
//	N bytes: payload
//
// WriteFrame emits the prefix and payload with a single Write call so that
// one frame maps to one write on the underlying stream.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame, reassembling it from as many reads as needed.
// maxPayload <= 0 selects MaxFramePayload.
func ReadFrame(r io.Reader, maxPayload int) ([]byte, error) {
	if maxPayload <= 0 {
		maxPayload = MaxFramePayload
	}
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		switch {
		case err == io.EOF:
			return nil, ErrConnectionClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedFrame)
		default:
			return nil, fmt.Errorf("read length prefix: %w", err)
		}
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if uint64(n) > uint64(maxPayload) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxPayload)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated payload", ErrMalformedFrame)
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

// IsClosed reports whether err means the stream is gone: a clean close by
// the peer or a local close while reading.
func IsClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
