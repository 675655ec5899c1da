package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBootstrapAdmitsPeerAndCreditsGenesisCoins(t *testing.T) {
	b, err := NewBootstrap(Config{NodesCount: 1, Capacity: 2})
	require.NoError(t, err)
	require.NoError(t, b.Bind("127.0.0.1", 0))
	require.NoError(t, b.CreateGenesisAndSelf())
	b.Start()
	defer b.Stop()

	bHost, bPort := b.LocalAddr()

	peer, err := New(Config{
		BootstrapHost:  bHost,
		BootstrapPort:  bPort,
		PingRetryEvery: 20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, peer.Bind("127.0.0.1", 0))
	defer peer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, peer.Join(ctx))
	require.Equal(t, 1, peer.ID())

	peer.Start()

	require.Eventually(t, func() bool {
		return peer.LocalBalance() == 1000
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return b.Chain().Roster().Size() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestBootstrapRejectsAdmissionOnceFull(t *testing.T) {
	b, err := NewBootstrap(Config{NodesCount: 0, Capacity: 2})
	require.NoError(t, err)
	require.NoError(t, b.Bind("127.0.0.1", 0))
	require.NoError(t, b.CreateGenesisAndSelf())
	b.Start()
	defer b.Stop()

	bHost, bPort := b.LocalAddr()

	peer, err := New(Config{
		BootstrapHost:  bHost,
		BootstrapPort:  bPort,
		PingRetryEvery: 20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, peer.Bind("127.0.0.1", 0))
	defer peer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = peer.Join(ctx)
	require.Error(t, err)
	require.Equal(t, 1, b.Chain().Roster().Size())
}
