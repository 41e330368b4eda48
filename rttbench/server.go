package rttbench

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TheusHen/rttbench/rttbench/config"
	"github.com/TheusHen/rttbench/rttbench/responder"
	"github.com/TheusHen/rttbench/rttbench/transport/quic"
	"github.com/TheusHen/rttbench/rttbench/transport/tcp"
	"github.com/TheusHen/rttbench/rttbench/transport/udp"
)

var ErrNotListening = errors.New("server is not listening")

// Server runs the responder on every configured transport. A port of 0 in
// the config picks a free port.
type Server struct {
	cfg       config.Config
	log       zerolog.Logger
	responder *responder.Responder

	tcp  *tcp.Listener
	quic *quic.Listener
	udp  *udp.Conn
	drop responder.DropPolicy
}

func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	seed, err := cfg.Seed()
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, log: log, responder: responder.New(seed)}, nil
}

// SetDropPolicy simulates loss on the UDP responder.
func (s *Server) SetDropPolicy(p responder.DropPolicy) { s.drop = p }

// Listen binds all sockets so that addresses are known before Serve.
func (s *Server) Listen() error {
	var err error
	if s.tcp, err = tcp.Listen(s.cfg.TCPAddr()); err != nil {
		return err
	}
	if s.udp, err = udp.Listen(s.cfg.UDPAddr()); err != nil {
		_ = s.Close()
		return err
	}
	if s.quic, err = quic.Listen(s.cfg.QUICAddr()); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// Serve blocks until ctx is cancelled or one transport fails; the others are
// then shut down as well.
func (s *Server) Serve(ctx context.Context) error {
	if s.tcp == nil || s.udp == nil || s.quic == nil {
		return ErrNotListening
	}
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return responder.NewStreamServer(s.responder, s.log.With().Str("transport", "tcp").Logger()).Serve(ctx, s.tcp)
	})
	g.Go(func() error {
		return responder.NewStreamServer(s.responder, s.log.With().Str("transport", "quic").Logger()).Serve(ctx, s.quic)
	})
	g.Go(func() error {
		ds := responder.NewDatagramServer(s.responder, s.udp, s.log.With().Str("transport", "udp").Logger())
		if s.drop != nil {
			ds.SetDropPolicy(s.drop)
		}
		return ds.Serve(ctx)
	})
	return g.Wait()
}

func (s *Server) Close() error {
	var errs []error
	if s.tcp != nil {
		errs = append(errs, ignoreClosed(s.tcp.Close()))
	}
	if s.udp != nil {
		errs = append(errs, ignoreClosed(s.udp.Close()))
	}
	if s.quic != nil {
		errs = append(errs, ignoreClosed(s.quic.Close()))
	}
	return errors.Join(errs...)
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) TCPAddr() net.Addr {
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

func (s *Server) UDPAddr() net.Addr {
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

func (s *Server) QUICAddr() net.Addr {
	if s.quic == nil {
		return nil
	}
	return s.quic.Addr()
}

// Stats exposes the shared responder counters.
func (s *Server) Stats() *responder.Stats { return s.responder.Stats() }
