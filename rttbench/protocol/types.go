package protocol

// Kind is the class of an inbound payload, derived from its plaintext prefix.
type Kind uint8

const (
	KindEcho            Kind = 1
	KindThroughputProbe Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindEcho:
		return "ECHO"
	case KindThroughputProbe:
		return "THROUGHPUT_PROBE"
	default:
		return "UNKNOWN"
	}
}
