// Package config loads benchmark settings from YAML.
//
// Every field is optional; omitted fields keep the values from Default.
//
//	host: localhost
//	tcp_port: 27003
//	udp_port: 26971
//	quic_port: 27004
//	seed: 123456789        # or: passphrase: "shared secret"
//	receive_timeout: 2s
//	rtt_sizes: [8, 64, 256, 512]
//	throughput:
//	  - {count: 1024, size: 1024}
//	samples: 5
//	log_level: info
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/TheusHen/rttbench/rttbench/cipher"
	"github.com/TheusHen/rttbench/rttbench/measure"
	"github.com/TheusHen/rttbench/rttbench/protocol"
	"github.com/TheusHen/rttbench/rttbench/transport/udp"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DefaultTCPPort        = 27003
	DefaultUDPPort        = 26971
	DefaultQUICPort       = 27004
	DefaultReceiveTimeout = 2 * time.Second
)

type Config struct {
	Host           string                     `yaml:"host"`
	TCPPort        int                        `yaml:"tcp_port"`
	UDPPort        int                        `yaml:"udp_port"`
	QUICPort       int                        `yaml:"quic_port"`
	SeedValue      uint64                     `yaml:"seed"`
	Passphrase     string                     `yaml:"passphrase"`
	ReceiveTimeout time.Duration              `yaml:"receive_timeout"`
	RTTSizes       []int                      `yaml:"rtt_sizes"`
	Throughput     []measure.ThroughputConfig `yaml:"throughput"`
	Samples        int                        `yaml:"samples"`
	LogLevel       string                     `yaml:"log_level"`
}

// Default mirrors the settings the benchmark has always used.
func Default() Config {
	return Config{
		Host:           "localhost",
		TCPPort:        DefaultTCPPort,
		UDPPort:        DefaultUDPPort,
		QUICPort:       DefaultQUICPort,
		SeedValue:      cipher.DefaultSeed,
		ReceiveTimeout: DefaultReceiveTimeout,
		RTTSizes:       []int{8, 64, 256, 512},
		Throughput: []measure.ThroughputConfig{
			{Count: 1024, Size: 1024},
			{Count: 512, Size: 2048},
			{Count: 256, Size: 4096},
		},
		Samples:  1,
		LogLevel: "info",
	}
}

// Load reads and validates a YAML file on top of Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges. Payload sizes are capped at udp.MaxDatagram
// because the same plan runs over every network.
func (c Config) Validate() error {
	for name, p := range map[string]int{"tcp_port": c.TCPPort, "udp_port": c.UDPPort, "quic_port": c.QUICPort} {
		if p < 0 || p > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, name, p)
		}
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: receive_timeout must be positive", ErrInvalidConfig)
	}
	if c.Samples <= 0 {
		return fmt.Errorf("%w: samples must be positive", ErrInvalidConfig)
	}
	for _, s := range c.RTTSizes {
		if s <= 0 || s > udp.MaxDatagram {
			return fmt.Errorf("%w: rtt size %d", ErrInvalidConfig, s)
		}
	}
	for _, tc := range c.Throughput {
		if tc.Count <= 0 {
			return fmt.Errorf("%w: throughput count %d", ErrInvalidConfig, tc.Count)
		}
		if tc.Size < len(protocol.ThroughputMarker) || tc.Size > udp.MaxDatagram {
			return fmt.Errorf("%w: throughput size %d", ErrInvalidConfig, tc.Size)
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Seed returns the initial keystream seed. A passphrase takes precedence
// over the numeric seed.
func (c Config) Seed() (uint64, error) {
	if c.Passphrase != "" {
		return cipher.SeedFromPassphrase(c.Passphrase)
	}
	return c.SeedValue, nil
}

// Plan returns the measurement plan described by c.
func (c Config) Plan() measure.Plan {
	return measure.Plan{
		RTTSizes:   append([]int(nil), c.RTTSizes...),
		Throughput: append([]measure.ThroughputConfig(nil), c.Throughput...),
		Samples:    c.Samples,
	}
}

// Level returns the configured log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c Config) TCPAddr() string  { return net.JoinHostPort(c.Host, strconv.Itoa(c.TCPPort)) }
func (c Config) UDPAddr() string  { return net.JoinHostPort(c.Host, strconv.Itoa(c.UDPPort)) }
func (c Config) QUICAddr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.QUICPort)) }
