package responder

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/transport"
)

// StreamServer serves the responder over any transport.Listener, one
// goroutine per accepted connection.
type StreamServer struct {
	responder *Responder
	log       zerolog.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[transport.Conn]struct{}
}

func NewStreamServer(r *Responder, log zerolog.Logger) *StreamServer {
	return &StreamServer{
		responder: r,
		log:       log,
		conns:     make(map[transport.Conn]struct{}),
	}
}

// Serve accepts connections until ctx is done or the listener is closed,
// then closes the remaining connections and waits for their handlers.
// Other Accept errors are logged and retried with a growing delay.
// It returns nil on cancellation and on a closed listener.
func (s *StreamServer) Serve(ctx context.Context, ln transport.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("stream responder listening")

	// Handlers block in ReadFrame; closing their connections unblocks them.
	stop := context.AfterFunc(ctx, s.closeAll)
	defer stop()
	defer func() {
		s.closeAll()
		s.wg.Wait()
	}()

	var delay time.Duration
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = nextRetryDelay(delay)
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

const (
	minRetryDelay = 5 * time.Millisecond
	maxRetryDelay = time.Second
)

func nextRetryDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minRetryDelay
	}
	return min(2*d, maxRetryDelay)
}

func (s *StreamServer) track(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *StreamServer) untrack(conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *StreamServer) closeAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for c := range conns {
		_ = c.Close()
	}
}

func (s *StreamServer) handle(ctx context.Context, conn transport.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.With().
		Str("conn_id", uuid.New().String()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	log.Info().Msg("client connected")

	var frames int64
	for {
		req, err := conn.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, protocol.ErrConnectionClosed):
				log.Info().Int64("frames", frames).Msg("client disconnected")
			case ctx.Err() != nil || protocol.IsClosed(err):
				log.Debug().Int64("frames", frames).Msg("connection closed on shutdown")
			default:
				log.Warn().Err(err).Int64("frames", frames).Msg("dropping connection")
			}
			return
		}
		frames++

		reply, kind := s.responder.Respond(req)
		if kind == protocol.KindEcho {
			log.Debug().Int("size", len(req)).Msg("echo")
		}
		if err := conn.WriteFrame(reply); err != nil {
			log.Warn().Err(err).Msg("write reply")
			return
		}
	}
}
