package results

import (
	"fmt"
)

// Kind is the measured quantity.
type Kind uint8

const (
	KindRTT        Kind = 1 // Value in milliseconds
	KindThroughput Kind = 2 // Value in bits per second
)

func (k Kind) String() string {
	switch k {
	case KindRTT:
		return "RTT"
	case KindThroughput:
		return "THROUGHPUT"
	default:
		return "UNKNOWN"
	}
}

// Unit returns the unit of Value for this kind.
func (k Kind) Unit() string {
	switch k {
	case KindRTT:
		return "ms"
	case KindThroughput:
		return "bps"
	default:
		return ""
	}
}

// Measurement is one completed sample. It is never mutated after creation.
type Measurement struct {
	Kind  Kind    `cbor:"1,keyasint"`
	Size  int     `cbor:"2,keyasint"`
	Value float64 `cbor:"3,keyasint"`
	// Count is the number of messages in a throughput run; 0 for RTT.
	Count int `cbor:"4,keyasint,omitempty"`
	// Acked is the number of acknowledgments that arrived in a throughput run.
	Acked int `cbor:"5,keyasint,omitempty"`
}

// Key identifies a group of samples.
type Key struct {
	Kind Kind
	Size int
}

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.Kind, k.Size) }

// Summary is the reduction of one group.
type Summary struct {
	Kind    Kind
	Size    int
	Mean    float64 // over arrived samples only; 0 when none arrived
	Arrived int
	Total   int
}

// Ratio is the fraction of samples that produced a value.
func (s Summary) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Arrived) / float64(s.Total)
}

type group struct {
	sum     float64
	arrived int
	lost    int
}

// SampleSet is not safe for concurrent use; the driver that builds it is
// single threaded.
type SampleSet struct {
	measurements []Measurement
	order        []Key
	groups       map[Key]*group
}

func NewSampleSet() *SampleSet {
	return &SampleSet{groups: make(map[Key]*group)}
}

func (s *SampleSet) group(k Key) *group {
	g, ok := s.groups[k]
	if !ok {
		g = &group{}
		s.groups[k] = g
		s.order = append(s.order, k)
	}
	return g
}

// Add records a completed sample.
func (s *SampleSet) Add(m Measurement) {
	g := s.group(Key{Kind: m.Kind, Size: m.Size})
	g.sum += m.Value
	g.arrived++
	s.measurements = append(s.measurements, m)
}

// AddLost records a sample that produced no value.
func (s *SampleSet) AddLost(kind Kind, size int) {
	s.group(Key{Kind: kind, Size: size}).lost++
}

// Len is the number of completed samples.
func (s *SampleSet) Len() int { return len(s.measurements) }

// Measurements returns a copy of every completed sample in insertion order.
func (s *SampleSet) Measurements() []Measurement {
	return append([]Measurement(nil), s.measurements...)
}

// Summaries returns one entry per (kind, size) in first-insertion order.
func (s *SampleSet) Summaries() []Summary {
	out := make([]Summary, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, summarize(k, s.groups[k]))
	}
	return out
}

// Summary returns the reduction of a single group.
func (s *SampleSet) Summary(kind Kind, size int) (Summary, bool) {
	k := Key{Kind: kind, Size: size}
	g, ok := s.groups[k]
	if !ok {
		return Summary{}, false
	}
	return summarize(k, g), true
}

func summarize(k Key, g *group) Summary {
	sum := Summary{
		Kind:    k.Kind,
		Size:    k.Size,
		Arrived: g.arrived,
		Total:   g.arrived + g.lost,
	}
	if g.arrived > 0 {
		sum.Mean = g.sum / float64(g.arrived)
	}
	return sum
}
