package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avtzis/blockchat/internal/clog"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	log := clog.New(nil, false, false)

	a, err := Listen("127.0.0.1", 0, 1, log)
	require.NoError(t, err)
	defer a.Close()

	b, err := Listen("127.0.0.1", 0, 1, log)
	require.NoError(t, err)
	defer b.Close()

	bHost, bPort := b.LocalAddr()
	require.NoError(t, a.SendTo([]byte("hello"), bHost, bPort))

	payload, _, err := b.Receive()
	require.NoError(t, err)
	require.Equal(t, "hello", string(payload))
}

func TestPingBootstrapSucceedsOnPong(t *testing.T) {
	log := clog.New(nil, false, false)

	bootstrap, err := Listen("127.0.0.1", 0, 1, log)
	require.NoError(t, err)
	defer bootstrap.Close()
	bHost, bPort := bootstrap.LocalAddr()

	go func() {
		payload, from, err := bootstrap.Receive()
		if err != nil {
			return
		}
		if string(payload) == "ping" {
			_ = bootstrap.SendTo([]byte("pong"), from.IP.String(), from.Port)
		}
	}()

	peer, err := Listen("127.0.0.1", 0, 1, log)
	require.NoError(t, err)
	defer peer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, PingBootstrap(ctx, peer, bHost, bPort, 50*time.Millisecond, log))
}

func TestSeenDeduplicates(t *testing.T) {
	log := clog.New(nil, false, false)
	e, err := Listen("127.0.0.1", 0, 1, log)
	require.NoError(t, err)
	defer e.Close()

	require.False(t, e.Seen("id-1"))
	require.True(t, e.Seen("id-1"))
}
