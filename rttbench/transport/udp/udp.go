// Package udp is the connectionless message channel: one datagram carries
// one obfuscated payload, with no envelope and no sequence number.
package udp

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// MaxDatagram is the receive buffer size; the largest UDP payload over IPv4.
const MaxDatagram = 65507

// ErrTimeout is returned by Receive when nothing arrived within the window.
// It is the expected signal for packet loss, not a fatal error.
var ErrTimeout = errors.New("udp: receive timeout")

// ErrDatagramTooLarge is returned by Send for payloads over MaxDatagram.
var ErrDatagramTooLarge = errors.New("udp: payload exceeds one datagram")

// Conn wraps a packet socket. It is not safe for concurrent Receive calls.
type Conn struct {
	pc     net.PacketConn
	remote net.Addr
	buf    []byte
}

// Listen binds a socket for a responder.
func Listen(addr string) (*Conn, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(pc), nil
}

// Dial binds an ephemeral local socket and records addr as the default
// destination for Write. Replies are accepted from any source, mirroring an
// unconnected datagram socket.
func Dial(addr string) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	network := "udp4"
	if raddr.IP.To4() == nil && raddr.IP != nil {
		network = "udp6"
	}
	pc, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, err
	}
	c := NewConn(pc)
	c.remote = raddr
	return c, nil
}

func NewConn(pc net.PacketConn) *Conn {
	return &Conn{pc: pc, buf: make([]byte, MaxDatagram)}
}

// Send transmits payload as a single datagram to dst.
func (c *Conn) Send(payload []byte, dst net.Addr) error {
	if len(payload) > MaxDatagram {
		return fmt.Errorf("%w: %d > %d", ErrDatagramTooLarge, len(payload), MaxDatagram)
	}
	_, err := c.pc.WriteTo(payload, dst)
	return err
}

// Write sends payload to the address given to Dial.
func (c *Conn) Write(payload []byte) error {
	if c.remote == nil {
		return errors.New("udp: no default destination")
	}
	return c.Send(payload, c.remote)
}

// Receive waits up to timeout for one datagram. timeout <= 0 waits forever.
// The returned slice is a copy owned by the caller.
func (c *Conn) Receive(timeout time.Duration) ([]byte, net.Addr, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return c.ReceiveUntil(deadline)
}

// ReceiveUntil is Receive with an absolute deadline; the zero time waits
// forever.
func (c *Conn) ReceiveUntil(deadline time.Time) ([]byte, net.Addr, error) {
	if err := c.pc.SetReadDeadline(deadline); err != nil {
		return nil, nil, err
	}
	n, from, err := c.pc.ReadFrom(c.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		return nil, nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, from, nil
}

func (c *Conn) LocalAddr() net.Addr { return c.pc.LocalAddr() }

// RemoteAddr is the default destination set by Dial, or nil.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

func (c *Conn) Close() error { return c.pc.Close() }
