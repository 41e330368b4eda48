package tcp

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/transport"
)

// Conn carries length-prefixed frames over a TCP connection.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
}

var _ transport.Conn = (*Conn)(nil)

// NewConn wraps an established connection. Nagle's algorithm is disabled:
// the benchmark sends small frames and waits for each reply.
func NewConn(c net.Conn) *Conn {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Conn{conn: c, r: bufio.NewReader(c)}
}

func (c *Conn) ReadFrame() ([]byte, error) {
	return protocol.ReadFrame(c.r, 0)
}

func (c *Conn) WriteFrame(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.WriteFrame(c.conn, payload)
}

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) Close() error { return c.conn.Close() }

// Dial connects to a TCP responder.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

type Listener struct {
	inner net.Listener
}

var _ transport.Listener = (*Listener)(nil)

func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

// Accept waits for the next connection. Cancelling ctx closes the listener,
// which unblocks every pending Accept.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.inner.Close() })
	defer stop()

	c, err := l.inner.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return NewConn(c), nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }
