// Package measure drives timed exchanges against a responder and collects
// the results.
//
// Exchanges are strictly sequential: one request is outstanding at a time,
// so elapsed time always belongs to exactly one request (RTT) or one batch
// (throughput).
package measure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheusHen/rttbench/rttbench/cipher"
	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/results"
)

// ErrUnexpectedReply is returned on a reliable transport when a reply does
// not match its request.
var ErrUnexpectedReply = errors.New("measure: unexpected reply")

// ThroughputConfig is one throughput configuration: Count messages of Size
// bytes each.
type ThroughputConfig struct {
	Count int `yaml:"count"`
	Size  int `yaml:"size"`
}

// Plan lists the configurations of a run.
type Plan struct {
	RTTSizes   []int
	Throughput []ThroughputConfig
	// Samples is the number of independent samples per configuration.
	Samples int
}

// Driver runs a Plan over one Exchanger.
type Driver struct {
	ex     Exchanger
	stream cipher.Stream
	log    zerolog.Logger
}

func NewDriver(ex Exchanger, seed uint64, log zerolog.Logger) *Driver {
	return &Driver{ex: ex, stream: cipher.New(seed), log: log}
}

// Run executes every RTT size, then every throughput configuration,
// Samples times each. The returned SampleSet is owned by the caller. On
// error the samples collected so far are returned alongside it.
func (d *Driver) Run(ctx context.Context, plan Plan) (*results.SampleSet, error) {
	samples := plan.Samples
	if samples <= 0 {
		samples = 1
	}
	set := results.NewSampleSet()

	for _, size := range plan.RTTSizes {
		for i := 0; i < samples; i++ {
			if err := ctx.Err(); err != nil {
				return set, err
			}
			ms, ok, err := d.RTT(size)
			if err != nil {
				return set, fmt.Errorf("rtt size %d sample %d: %w", size, i+1, err)
			}
			if !ok {
				set.AddLost(results.KindRTT, size)
				d.log.Debug().Int("size", size).Int("sample", i+1).Msg("rtt sample lost")
				continue
			}
			set.Add(results.Measurement{Kind: results.KindRTT, Size: size, Value: ms})
			d.log.Debug().Int("size", size).Int("sample", i+1).Float64("ms", ms).Msg("rtt sample")
		}
		d.logSummary(set, results.KindRTT, size)
	}

	for _, tc := range plan.Throughput {
		for i := 0; i < samples; i++ {
			if err := ctx.Err(); err != nil {
				return set, err
			}
			m, err := d.Throughput(tc.Count, tc.Size)
			if err != nil {
				return set, fmt.Errorf("throughput %dx%d sample %d: %w", tc.Count, tc.Size, i+1, err)
			}
			set.Add(m)
			d.log.Debug().
				Int("count", tc.Count).
				Int("size", tc.Size).
				Int("acked", m.Acked).
				Float64("bps", m.Value).
				Msg("throughput sample")
		}
		d.logSummary(set, results.KindThroughput, tc.Size)
	}
	return set, nil
}

func (d *Driver) logSummary(set *results.SampleSet, kind results.Kind, size int) {
	sum, ok := set.Summary(kind, size)
	if !ok {
		return
	}
	d.log.Info().
		Stringer("kind", kind).
		Int("size", size).
		Float64("mean", sum.Mean).
		Str("unit", kind.Unit()).
		Int("arrived", sum.Arrived).
		Int("total", sum.Total).
		Msg("configuration done")
}

// RTT performs one latency sample of size bytes and returns the elapsed
// milliseconds. ok is false when the reply was lost.
//
// On a lossy exchanger, replies whose plaintext differs from the request are
// discarded and the wait continues until the window closes. A stale reply
// with identical content cannot be told apart and is accepted.
func (d *Driver) RTT(size int) (ms float64, ok bool, err error) {
	plaintext, err := protocol.NewRTTPayload(size)
	if err != nil {
		return 0, false, err
	}
	request := d.stream.Seal(plaintext)

	start := time.Now()
	deadline := d.deadline(start)
	if err := d.ex.Send(request); err != nil {
		return 0, false, err
	}
	for {
		reply, err := d.ex.Receive(deadline)
		if err != nil {
			if errors.Is(err, ErrLost) {
				return 0, false, nil
			}
			return 0, false, err
		}
		elapsed := time.Since(start)

		if bytes.Equal(d.stream.Open(reply), plaintext) {
			return float64(elapsed) / float64(time.Millisecond), true, nil
		}
		if d.ex.Window() == 0 {
			return 0, false, fmt.Errorf("%w: %d bytes for a %d byte request", ErrUnexpectedReply, len(reply), size)
		}
		d.log.Debug().Int("size", size).Int("reply_len", len(reply)).Msg("discarding unmatched reply")
	}
}

// Throughput sends count copies of one size-byte probe, waiting for an
// acknowledgment after each, and returns bits per second over the whole
// batch. On a lossy exchanger a missing acknowledgment ends that wait and
// the batch continues; Acked records how many arrived.
func (d *Driver) Throughput(count, size int) (results.Measurement, error) {
	if count <= 0 {
		return results.Measurement{}, fmt.Errorf("%w: count %d", protocol.ErrInvalidSize, count)
	}
	plaintext, err := protocol.NewThroughputPayload(size)
	if err != nil {
		return results.Measurement{}, err
	}
	request := d.stream.Seal(plaintext)

	acked := 0
	start := time.Now()
	for i := 0; i < count; i++ {
		if err := d.ex.Send(request); err != nil {
			return results.Measurement{}, err
		}
		ok, err := d.awaitAck(d.deadline(time.Now()))
		if err != nil {
			return results.Measurement{}, err
		}
		if ok {
			acked++
		}
	}
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}

	bits := float64(count) * float64(size) * 8
	return results.Measurement{
		Kind:  results.KindThroughput,
		Size:  size,
		Value: bits / elapsed.Seconds(),
		Count: count,
		Acked: acked,
	}, nil
}

func (d *Driver) awaitAck(deadline time.Time) (bool, error) {
	for {
		reply, err := d.ex.Receive(deadline)
		if err != nil {
			if errors.Is(err, ErrLost) {
				return false, nil
			}
			return false, err
		}
		if protocol.IsAck(d.stream.Open(reply)) {
			return true, nil
		}
		if d.ex.Window() == 0 {
			return false, fmt.Errorf("%w: %d bytes instead of acknowledgment", ErrUnexpectedReply, len(reply))
		}
	}
}

func (d *Driver) deadline(from time.Time) time.Time {
	if w := d.ex.Window(); w > 0 {
		return from.Add(w)
	}
	return time.Time{}
}
