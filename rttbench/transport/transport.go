// Package transport defines the capability set shared by the stream
// transports. Subpackages tcp and quic implement it; udp provides the
// connectionless counterpart, which has no connection to accept.
package transport

import (
	"context"
	"net"
)

// Conn is one ordered, lossless message channel.
type Conn interface {
	// ReadFrame blocks until a whole frame arrives. It returns
	// protocol.ErrConnectionClosed when the peer closed at a frame boundary.
	ReadFrame() ([]byte, error)
	// WriteFrame sends one frame. Concurrent calls never interleave.
	WriteFrame(payload []byte) error
	RemoteAddr() net.Addr
	Close() error
}

// Listener yields inbound Conns.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}
