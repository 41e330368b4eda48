package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheusHen/rttbench/rttbench/cipher"
	"github.com/TheusHen/rttbench/rttbench/measure"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	seed, err := cfg.Seed()
	require.NoError(t, err)
	assert.Equal(t, cipher.DefaultSeed, seed)
	assert.Equal(t, "localhost:27003", cfg.TCPAddr())
	assert.Equal(t, "localhost:26971", cfg.UDPAddr())
	assert.Equal(t, "localhost:27004", cfg.QUICAddr())

	plan := cfg.Plan()
	assert.Equal(t, []int{8, 64, 256, 512}, plan.RTTSizes)
	assert.Equal(t, measure.ThroughputConfig{Count: 1024, Size: 1024}, plan.Throughput[0])
	assert.Equal(t, 1, plan.Samples)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
host: 10.0.0.2
udp_port: 9000
receive_timeout: 250ms
rtt_sizes: [16, 32]
throughput:
  - {count: 10, size: 64}
samples: 7
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:9000", cfg.UDPAddr())
	assert.Equal(t, "10.0.0.2:27003", cfg.TCPAddr())
	assert.Equal(t, 250*time.Millisecond, cfg.ReceiveTimeout)
	assert.Equal(t, []int{16, 32}, cfg.RTTSizes)
	assert.Equal(t, []measure.ThroughputConfig{{Count: 10, Size: 64}}, cfg.Throughput)
	assert.Equal(t, 7, cfg.Samples)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestPassphraseWinsOverSeed(t *testing.T) {
	cfg, err := Parse([]byte("seed: 42\npassphrase: shared\n"))
	require.NoError(t, err)

	want, err := cipher.SeedFromPassphrase("shared")
	require.NoError(t, err)
	got, err := cfg.Seed()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "port", yaml: "tcp_port: 70000"},
		{name: "timeout", yaml: "receive_timeout: 0s"},
		{name: "samples", yaml: "samples: 0"},
		{name: "rtt size", yaml: "rtt_sizes: [0]"},
		{name: "rtt size above one datagram", yaml: "rtt_sizes: [100000]"},
		{name: "throughput size above one datagram", yaml: "throughput: [{count: 1, size: 65508}]"},
		{name: "throughput size below marker", yaml: "throughput: [{count: 1, size: 9}]"},
		{name: "throughput count", yaml: "throughput: [{count: 0, size: 64}]"},
		{name: "log level", yaml: "log_level: loud"},
		{name: "syntax", yaml: "samples: [oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("samples: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Samples)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
