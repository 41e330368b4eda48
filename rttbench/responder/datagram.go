package responder

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/transport/udp"
)

// DropPolicy decides whether the reply to the seq-th datagram (1-based) is
// suppressed. It is used to simulate loss.
type DropPolicy func(seq uint64, kind protocol.Kind) bool

// DropEvery drops every n-th reply. n <= 0 never drops.
func DropEvery(n uint64) DropPolicy {
	return func(seq uint64, _ protocol.Kind) bool {
		return n > 0 && seq%n == 0
	}
}

// DropEveryAck drops every n-th throughput acknowledgment and never drops
// echoes.
func DropEveryAck(n uint64) DropPolicy {
	var acks uint64
	return func(_ uint64, kind protocol.Kind) bool {
		if kind != protocol.KindThroughputProbe {
			return false
		}
		acks++
		return n > 0 && acks%n == 0
	}
}

// DatagramServer answers datagrams one at a time on a single socket, replying
// to each datagram's source address. There is no per-client state.
type DatagramServer struct {
	responder *Responder
	conn      *udp.Conn
	log       zerolog.Logger
	drop      DropPolicy
}

func NewDatagramServer(r *Responder, conn *udp.Conn, log zerolog.Logger) *DatagramServer {
	return &DatagramServer{responder: r, conn: conn, log: log}
}

// SetDropPolicy installs a loss simulation policy. Call before Serve.
func (s *DatagramServer) SetDropPolicy(p DropPolicy) { s.drop = p }

// Serve runs until ctx is done, at which point the socket is closed.
// It returns nil on cancellation.
func (s *DatagramServer) Serve(ctx context.Context) error {
	s.log.Info().Str("addr", s.conn.LocalAddr().String()).Msg("datagram responder listening")

	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	var (
		seq   uint64
		delay time.Duration
	)
	for {
		req, from, err := s.conn.Receive(0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = nextRetryDelay(delay)
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("receive datagram")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0
		seq++

		reply, kind := s.responder.Respond(req)
		if s.drop != nil && s.drop(seq, kind) {
			s.responder.stats.Dropped.Add(1)
			s.log.Debug().Uint64("seq", seq).Stringer("kind", kind).Msg("reply dropped")
			continue
		}
		if err := s.conn.Send(reply, from); err != nil {
			s.log.Warn().Err(err).Str("to", from.String()).Msg("send reply")
		}
	}
}
