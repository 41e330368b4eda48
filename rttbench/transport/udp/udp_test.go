package udp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceive(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Write([]byte("ping")))

	got, from, err := server.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	require.NoError(t, server.Send([]byte("pong"), from))
	got, _, err = client.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got)
}

func TestReceiveTimeout(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	// The request is sent but nobody answers it.
	require.NoError(t, client.Write([]byte("lost")))

	start := time.Now()
	_, _, err = client.Receive(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The socket stays usable after a timeout.
	_, from, err := server.Receive(time.Second)
	require.NoError(t, err)
	require.NoError(t, server.Send([]byte("late"), from))
	got, _, err := client.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), got)
}

func TestDatagramBoundariesPreserved(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	sizes := []int{1, 8, 512, 4096}
	for _, n := range sizes {
		require.NoError(t, client.Write(make([]byte, n)))
	}
	for _, n := range sizes {
		got, _, err := server.Receive(time.Second)
		require.NoError(t, err)
		assert.Len(t, got, n)
	}
}

func TestWriteWithoutDestination(t *testing.T) {
	c, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer c.Close()
	assert.Error(t, c.Write([]byte("x")))
}

func TestSendRejectsOversizePayload(t *testing.T) {
	client, err := Dial("127.0.0.1:9")
	require.NoError(t, err)
	defer client.Close()

	err = client.Write(make([]byte, MaxDatagram+1))
	assert.ErrorIs(t, err, ErrDatagramTooLarge)
}
