package quic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	q "github.com/quic-go/quic-go"

	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/transport"
)

// CloseCodeNormal is sent when a peer ends the session deliberately.
const CloseCodeNormal q.ApplicationErrorCode = 0

func quicConfig() *q.Config {
	return &q.Config{
		MaxIdleTimeout:  time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// Conn carries frames on a single bidirectional QUIC stream.
// The dialing side opens the stream; the accepting side picks it up lazily
// on the first ReadFrame, since a QUIC stream only becomes visible to the
// peer once data is sent on it.
type Conn struct {
	conn q.Connection

	mu     sync.Mutex
	stream q.Stream
	r      *bufio.Reader

	wmu sync.Mutex
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) acceptStream() (q.Stream, *bufio.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		st, err := c.conn.AcceptStream(c.conn.Context())
		if err != nil {
			return nil, nil, mapErr(err)
		}
		c.stream = st
		c.r = bufio.NewReader(st)
	}
	return c.stream, c.r, nil
}

func (c *Conn) ReadFrame() ([]byte, error) {
	_, r, err := c.acceptStream()
	if err != nil {
		return nil, err
	}
	b, err := protocol.ReadFrame(r, 0)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (c *Conn) WriteFrame(payload []byte) error {
	st, _, err := c.acceptStream()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return mapErr(protocol.WriteFrame(st, payload))
}

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close tears down the whole QUIC connection. It does not take c.mu, so it
// also unblocks a ReadFrame still waiting for the peer's stream.
func (c *Conn) Close() error {
	return c.conn.CloseWithError(CloseCodeNormal, "")
}

// mapErr turns a normal remote shutdown into protocol.ErrConnectionClosed.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *q.ApplicationError
	if errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == CloseCodeNormal {
		return protocol.ErrConnectionClosed
	}
	if errors.Is(err, io.EOF) {
		return protocol.ErrConnectionClosed
	}
	return err
}

type Listener struct {
	inner *q.Listener
}

var _ transport.Listener = (*Listener)(nil)

func Listen(addr string) (*Listener, error) {
	tlsConf, err := NewServerTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	conn, err := l.inner.Accept(ctx)
	if err != nil {
		if errors.Is(err, q.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			err = fmt.Errorf("%w: %w", net.ErrClosed, err)
		}
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

// Dial connects to a QUIC responder and opens the frame stream.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	conn, err := q.DialAddr(ctx, addr, NewClientTLSConfig(), quicConfig())
	if err != nil {
		return nil, err
	}
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(CloseCodeNormal, "")
		return nil, err
	}
	return &Conn{conn: conn, stream: st, r: bufio.NewReader(st)}, nil
}
