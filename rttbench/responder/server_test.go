package responder

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheusHen/rttbench/rttbench/cipher"
	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/transport"
	"github.com/TheusHen/rttbench/rttbench/transport/tcp"
	"github.com/TheusHen/rttbench/rttbench/transport/udp"
)

func startStreamServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewStreamServer(New(cipher.DefaultSeed), zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	return ln.AddrString(), func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("stream server did not stop")
		}
	}
}

func TestStreamServerConcurrentClients(t *testing.T) {
	addr, stop := startStreamServer(t)
	defer stop()

	s := cipher.New(cipher.DefaultSeed)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(size int) {
			defer wg.Done()
			c, err := tcp.Dial(ctx, addr)
			if !assert.NoError(t, err) {
				return
			}
			defer c.Close()

			for j := 0; j < 20; j++ {
				req, _ := protocol.NewRTTPayload(size)
				if !assert.NoError(t, c.WriteFrame(s.Seal(req))) {
					return
				}
				reply, err := c.ReadFrame()
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, req, s.Open(reply))
			}
		}(8 << i)
	}
	wg.Wait()
}

func TestStreamServerSurvivesClientDisconnect(t *testing.T) {
	addr, stop := startStreamServer(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := cipher.New(cipher.DefaultSeed)

	first, err := tcp.Dial(ctx, addr)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := tcp.Dial(ctx, addr)
	require.NoError(t, err)
	defer second.Close()

	probe, _ := protocol.NewThroughputPayload(128)
	require.NoError(t, second.WriteFrame(s.Seal(probe)))
	reply, err := second.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.AckLiteral, string(s.Open(reply)))
}

func TestStreamServerShutdownClosesClients(t *testing.T) {
	addr, stop := startStreamServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tcp.Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	// Make sure the handler is running before shutting down.
	s := cipher.New(cipher.DefaultSeed)
	require.NoError(t, c.WriteFrame(s.Seal([]byte("RTT"))))
	_, err = c.ReadFrame()
	require.NoError(t, err)

	stop()

	_, err = c.ReadFrame()
	assert.Error(t, err)
}

func TestDatagramServerEchoAndDrop(t *testing.T) {
	conn, err := udp.Listen("127.0.0.1:0")
	require.NoError(t, err)

	r := New(cipher.DefaultSeed)
	srv := NewDatagramServer(r, conn, zerolog.Nop())
	srv.SetDropPolicy(DropEvery(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	client, err := udp.Dial(conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	s := cipher.New(cipher.DefaultSeed)
	req, _ := protocol.NewRTTPayload(64)

	// seq 1: answered
	require.NoError(t, client.Write(s.Seal(req)))
	reply, _, err := client.Receive(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, req, s.Open(reply))

	// seq 2: dropped
	require.NoError(t, client.Write(s.Seal(req)))
	_, _, err = client.Receive(200 * time.Millisecond)
	assert.ErrorIs(t, err, udp.ErrTimeout)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("datagram server did not stop")
	}
	assert.EqualValues(t, 1, r.Stats().Dropped.Load())
	assert.EqualValues(t, 2, r.Stats().Echoed.Load())
}

// flakyListener fails its first Accept, then hands out the queued conns and
// blocks once they are exhausted.
type flakyListener struct {
	mu    sync.Mutex
	calls int
	conns chan transport.Conn
}

func (l *flakyListener) Accept(ctx context.Context) (transport.Conn, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	l.mu.Unlock()
	if first {
		return nil, errors.New("accept: too many open files")
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *flakyListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (l *flakyListener) Close() error { return nil }

func TestStreamServerKeepsAcceptingAfterError(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ln := &flakyListener{conns: make(chan transport.Conn, 1)}
	ln.conns <- tcp.NewConn(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewStreamServer(New(cipher.DefaultSeed), zerolog.Nop()).Serve(ctx, ln) }()

	s := cipher.New(cipher.DefaultSeed)
	req, _ := protocol.NewRTTPayload(16)
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, protocol.WriteFrame(client, s.Seal(req)))
	reply, err := protocol.ReadFrame(client, 0)
	require.NoError(t, err)
	assert.Equal(t, req, s.Open(reply))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream server did not stop")
	}
	ln.mu.Lock()
	assert.GreaterOrEqual(t, ln.calls, 2)
	ln.mu.Unlock()
}

func TestStreamServerStopsOnClosedListener(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	done := make(chan error, 1)
	go func() { done <- NewStreamServer(New(cipher.DefaultSeed), zerolog.Nop()).Serve(context.Background(), ln) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream server kept retrying a closed listener")
	}
}

// failingPacketConn fails every read with a non-timeout error.
type failingPacketConn struct {
	net.PacketConn
	reads atomic.Int64
}

func (c *failingPacketConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.reads.Add(1)
	return 0, nil, errors.New("read: connection refused")
}

func (c *failingPacketConn) SetReadDeadline(time.Time) error { return nil }

func (c *failingPacketConn) LocalAddr() net.Addr { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (c *failingPacketConn) Close() error { return nil }

func TestDatagramServerBacksOffOnReceiveErrors(t *testing.T) {
	pc := &failingPacketConn{}
	srv := NewDatagramServer(New(cipher.DefaultSeed), udp.NewConn(pc), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, srv.Serve(ctx))

	// 5+10+20+40+80ms of delay fit in the window; a hot loop would read
	// thousands of times.
	assert.Positive(t, pc.reads.Load())
	assert.LessOrEqual(t, pc.reads.Load(), int64(10))
}

func TestNextRetryDelay(t *testing.T) {
	d := nextRetryDelay(0)
	assert.Equal(t, minRetryDelay, d)
	assert.Equal(t, 2*minRetryDelay, nextRetryDelay(d))
	for i := 0; i < 20; i++ {
		d = nextRetryDelay(d)
	}
	assert.Equal(t, maxRetryDelay, d)
}
