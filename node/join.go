package node

import (
	"context"
	"fmt"

	"github.com/avtzis/blockchat/chain"
	"github.com/avtzis/blockchat/network"
	"github.com/avtzis/blockchat/protocol"
)

// SetPendingBlock seeds the pending-block buffer from an activate
// envelope's current_block snapshot, so a newly admitted peer starts in
// step with whatever bootstrap had already accumulated.
func (n *Node) SetPendingBlock(txs []*chain.Transaction) {
	n.pendingBlock = append([]*chain.Transaction(nil), txs...)
}

// Join runs the peer-side admission handshake: ping bootstrap until it
// answers, send a key envelope advertising this node's address, then
// block for the activate envelope that assigns an id and a chain
// snapshot. It does not start the general receive loop;
// callers do that once Join returns so the node is ready to observe its
// own genesis-coin credit. If ctx is cancelled while waiting for
// activate, the endpoint is closed and Join returns ctx's error.
func (n *Node) Join(ctx context.Context) error {
	if err := network.PingBootstrap(ctx, n.ep, n.cfg.BootstrapHost, n.cfg.BootstrapPort, n.cfg.PingRetryEvery, n.log); err != nil {
		return fmt.Errorf("node: join: ping bootstrap: %w", err)
	}

	keyEnv := protocol.Envelope{
		MessageType: protocol.MsgKey,
		Key:         n.wallet.Address(),
		Stake:       n.cfg.InitialStake,
	}
	wire, err := protocol.Encode(keyEnv)
	if err != nil {
		return fmt.Errorf("node: join: encode key: %w", err)
	}
	if err := n.ep.SendTo(wire, n.cfg.BootstrapHost, n.cfg.BootstrapPort); err != nil {
		return fmt.Errorf("node: join: send key: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			n.ep.Close()
		case <-done:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, _, err := n.ep.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("node: join: receive: %w", err)
		}
		if string(payload) == "ping" {
			continue
		}
		env, err := protocol.Decode(payload)
		if err != nil {
			n.log.Warn("join: malformed envelope dropped", "err", err)
			continue
		}
		if env.MessageType != protocol.MsgActivate || env.Activate == nil {
			n.log.Debug("join: ignoring envelope before activation", "type", env.MessageType)
			continue
		}

		return n.applyActivation(env.Activate)
	}
}

func (n *Node) applyActivation(a *protocol.ActivatePayload) error {
	if len(a.Blockchain.Chain) == 0 {
		return fmt.Errorf("node: join: activate envelope carries an empty chain")
	}
	c := chain.New(a.Blockchain.Chain[0], a.Blockchain.Capacity, chain.DefaultFeeRate)
	for _, b := range a.Blockchain.Chain[1:] {
		if err := c.Append(b); err != nil {
			return fmt.Errorf("node: join: replay chain: %w", err)
		}
	}
	for _, np := range a.Blockchain.Nodes {
		c.Roster().Add(np.ToParticipant())
	}

	n.setID(a.ID)
	n.SetChain(c)
	n.SetPendingBlock(a.CurrentBlock)

	self, ok := c.Roster().Get(a.ID)
	if !ok {
		return fmt.Errorf("node: join: self %d missing from activated roster", a.ID)
	}
	n.SetLocalState(self.Balance, self.Stake, self.Nonce)

	n.log.Info("activated", "id", a.ID, "chain_len", c.Len())
	return nil
}
