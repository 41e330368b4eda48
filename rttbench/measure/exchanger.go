package measure

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheusHen/rttbench/rttbench/transport"
	"github.com/TheusHen/rttbench/rttbench/transport/udp"
)

// ErrLost is returned by Exchanger.Receive when the wait window closed
// without a reply. Only lossy exchangers return it.
var ErrLost = errors.New("measure: reply lost")

// Exchanger is the client half of one message channel.
type Exchanger interface {
	Send(payload []byte) error
	// Receive returns the next inbound payload. Lossy exchangers give up at
	// deadline with ErrLost; reliable ones ignore deadline.
	Receive(deadline time.Time) ([]byte, error)
	// Window is the wait applied to each receive, or 0 for no timeout.
	Window() time.Duration
}

// StreamExchanger runs over an ordered, lossless transport.Conn.
type StreamExchanger struct {
	conn transport.Conn
}

func NewStreamExchanger(conn transport.Conn) *StreamExchanger {
	return &StreamExchanger{conn: conn}
}

func (e *StreamExchanger) Send(payload []byte) error { return e.conn.WriteFrame(payload) }

func (e *StreamExchanger) Receive(time.Time) ([]byte, error) { return e.conn.ReadFrame() }

func (e *StreamExchanger) Window() time.Duration { return 0 }

// DatagramExchanger runs over UDP with a fixed receive window.
type DatagramExchanger struct {
	conn    *udp.Conn
	timeout time.Duration
}

// NewDatagramExchanger sends to conn's default destination (see udp.Dial).
func NewDatagramExchanger(conn *udp.Conn, timeout time.Duration) *DatagramExchanger {
	return &DatagramExchanger{conn: conn, timeout: timeout}
}

func (e *DatagramExchanger) Send(payload []byte) error { return e.conn.Write(payload) }

func (e *DatagramExchanger) Receive(deadline time.Time) ([]byte, error) {
	b, _, err := e.conn.ReceiveUntil(deadline)
	if errors.Is(err, udp.ErrTimeout) {
		return nil, fmt.Errorf("%w: %w", ErrLost, err)
	}
	return b, err
}

func (e *DatagramExchanger) Window() time.Duration { return e.timeout }
