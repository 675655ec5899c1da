package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avtzis/blockchat/chain"
	"github.com/avtzis/blockchat/protocol"
)

func newTestNode(t *testing.T, id int, capacity int) *Node {
	t.Helper()
	n, err := New(Config{Capacity: capacity}, &id)
	require.NoError(t, err)
	require.NoError(t, n.Bind("127.0.0.1", 0))
	return n
}

func wireRoster(t *testing.T, nodes ...*Node) *chain.Chain {
	t.Helper()
	genesis, _ := chain.NewGenesisBlock(nodes[0].Wallet().Address(), len(nodes)-1, time.Unix(0, 0))
	c := chain.New(genesis, nodes[0].chainCapacity(), chain.DefaultFeeRate)
	for _, n := range nodes {
		host, port := n.LocalAddr()
		c.Roster().Add(chain.Participant{
			ID:        n.ID(),
			Host:      host,
			Port:      port,
			PublicKey: n.Wallet().Address(),
			Balance:   0,
		})
	}
	for _, n := range nodes {
		n.SetChain(c)
	}
	return c
}

func (n *Node) chainCapacity() int {
	if n.cfg.Capacity == 0 {
		return 2
	}
	return n.cfg.Capacity
}

func TestExecuteTransactionRejectsInsufficientFunds(t *testing.T) {
	bootstrap := newTestNode(t, 0, 2)
	peer := newTestNode(t, 1, 2)
	wireRoster(t, bootstrap, peer)

	bootstrap.SetLocalState(100, 0, 0)

	err := bootstrap.ExecuteTransaction(1, chain.TxCoins, 200.0)
	require.Error(t, err)
	require.Equal(t, 100.0, bootstrap.LocalBalance())
	require.Equal(t, uint64(0), bootstrap.localNonce)
}

func TestExecuteTransactionPreDebitsBeforeBroadcast(t *testing.T) {
	bootstrap := newTestNode(t, 0, 2)
	peer := newTestNode(t, 1, 2)
	wireRoster(t, bootstrap, peer)

	bootstrap.SetLocalState(1000, 0, 0)

	require.NoError(t, bootstrap.ExecuteTransaction(1, chain.TxCoins, 100.0))
	require.InDelta(t, 1000-103, bootstrap.LocalBalance(), 1e-9)
	require.Equal(t, uint64(1), bootstrap.localNonce)
}

func TestReceiveTransactionFillsPendingAndMines(t *testing.T) {
	bootstrap := newTestNode(t, 0, 1)
	peer := newTestNode(t, 1, 1)
	wireRoster(t, bootstrap, peer)

	bootstrap.ch.Lock()
	sender, _ := bootstrap.ch.Roster().ByPublicKey(bootstrap.Wallet().Address())
	sender.Balance = 1000
	sender.Stake = 5
	bootstrap.ch.Roster().Update(sender)
	bootstrap.ch.Unlock()
	bootstrap.SetLocalState(1000, 5, 0)

	bootstrap.Start()
	defer bootstrap.Stop()

	tx, err := chain.NewTransaction(bootstrap.Wallet(), peer.Wallet().Address(), chain.TxCoins, 10.0, 0, time.Now())
	require.NoError(t, err)

	env := protocol.Envelope{MessageType: protocol.MsgTransaction, Transaction: tx}
	wire, err := protocol.Encode(env)
	require.NoError(t, err)

	host, port := bootstrap.LocalAddr()
	require.NoError(t, bootstrap.Endpoint().SendTo(wire, host, port))

	require.Eventually(t, func() bool {
		return bootstrap.Chain().Len() == 2
	}, 3*time.Second, 10*time.Millisecond)

	block, ok := bootstrap.Chain().Block(1)
	require.True(t, ok)
	require.Equal(t, 0, block.Validator)
	require.Len(t, block.Transactions, 1)
}

func TestReceiveBlockRejectsBadPreviousHash(t *testing.T) {
	bootstrap := newTestNode(t, 0, 2)
	peer := newTestNode(t, 1, 2)
	wireRoster(t, bootstrap, peer)

	bootstrap.poolQueue.Push(chain.Pool{0})
	bootstrap.feeQueue.Push(0)

	bad := chain.Seal(1, 0, nil, "not-the-real-tail", time.Now())
	bootstrap.receiveBlock(bad)

	require.Equal(t, 1, bootstrap.Chain().Len())
}
