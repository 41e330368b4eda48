package rttbench

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TheusHen/rttbench/rttbench/config"
	"github.com/TheusHen/rttbench/rttbench/measure"
	"github.com/TheusHen/rttbench/rttbench/results"
	"github.com/TheusHen/rttbench/rttbench/transport/quic"
	"github.com/TheusHen/rttbench/rttbench/transport/tcp"
	"github.com/TheusHen/rttbench/rttbench/transport/udp"
)

// Network selects the carrier of a benchmark run.
type Network string

const (
	NetworkTCP  Network = "tcp"
	NetworkUDP  Network = "udp"
	NetworkQUIC Network = "quic"
)

func ParseNetwork(s string) (Network, error) {
	switch n := Network(s); n {
	case NetworkTCP, NetworkUDP, NetworkQUIC:
		return n, nil
	default:
		return "", fmt.Errorf("unknown network %q (want tcp, udp or quic)", s)
	}
}

// Client runs the configured plan against a responder.
type Client struct {
	cfg config.Config
	log zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{cfg: cfg, log: log}
}

// Run connects over network, executes the plan and disconnects. Partial
// results are returned with the error when the run aborts.
func (c *Client) Run(ctx context.Context, network Network) (*results.SampleSet, error) {
	seed, err := c.cfg.Seed()
	if err != nil {
		return nil, err
	}
	log := c.log.With().Str("transport", string(network)).Logger()

	var ex measure.Exchanger
	switch network {
	case NetworkTCP:
		conn, err := tcp.Dial(ctx, c.cfg.TCPAddr())
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		log.Info().Str("server", c.cfg.TCPAddr()).Msg("connected")
		ex = measure.NewStreamExchanger(conn)
	case NetworkQUIC:
		conn, err := quic.Dial(ctx, c.cfg.QUICAddr())
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		log.Info().Str("server", c.cfg.QUICAddr()).Msg("connected")
		ex = measure.NewStreamExchanger(conn)
	case NetworkUDP:
		conn, err := udp.Dial(c.cfg.UDPAddr())
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		ex = measure.NewDatagramExchanger(conn, c.cfg.ReceiveTimeout)
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}

	return measure.NewDriver(ex, seed, log).Run(ctx, c.cfg.Plan())
}
