package node

import (
	"fmt"
	"net"
	"time"

	"github.com/avtzis/blockchat/chain"
	"github.com/avtzis/blockchat/protocol"
)

// colorPalette cycles a display colour per admitted participant.
// clog already colourizes log lines by id; Bootstrap still advertises a
// name here because the activate envelope's wire contract carries one.
var colorPalette = []string{"red", "green", "yellow", "blue", "magenta", "cyan"}

// Bootstrap specialises Node with id fixed at 0 and the extra
// responsibilities of the genesis role: genesis block construction,
// admission, id assignment and the initial coin distribution.
type Bootstrap struct {
	*Node
}

// NewBootstrap constructs the bootstrap role.
func NewBootstrap(cfg Config) (*Bootstrap, error) {
	zero := 0
	n, err := New(cfg, &zero)
	if err != nil {
		return nil, fmt.Errorf("node: new bootstrap: %w", err)
	}
	b := &Bootstrap{Node: n}
	n.onPing = b.handlePing
	n.onKey = b.handleKey
	return b, nil
}

// CreateGenesisAndSelf builds the genesis block and registers bootstrap
// itself as participant 0, crediting the mint value to its own balance.
// Bind must already have been called so the roster entry carries a real
// host/port.
func (b *Bootstrap) CreateGenesisAndSelf() error {
	host, port := b.LocalAddr()
	genesis, mint := chain.NewGenesisBlock(b.Wallet().Address(), b.cfg.NodesCount, time.Now())
	c := chain.New(genesis, b.cfg.Capacity, chain.DefaultFeeRate)

	value, _ := mint.AmountValue()
	c.Roster().Add(chain.Participant{
		ID:        0,
		Host:      host,
		Port:      port,
		PublicKey: b.Wallet().Address(),
		Balance:   value,
	})

	b.SetChain(c)
	b.SetLocalState(value, 0, 0)
	b.log.Info("genesis block created", "mint", value)
	return nil
}

// handlePing answers every ping with the literal "pong", including pings
// that arrive after admission has closed over capacity; such a peer
// simply never gets an activate envelope.
func (b *Bootstrap) handlePing(from *net.UDPAddr) {
	if err := b.ep.SendTo([]byte(protocol.PongLiteral), from.IP.String(), from.Port); err != nil {
		b.log.Warn("pong send failed", "err", err)
	}
}

// handleKey admits a new participant: assigns the next sequential id,
// adds it to the roster, announces it to prior peers, activates the new
// peer with a chain snapshot, and originates its 1000-coin credit.
// Admission is rejected once the roster already holds NodesCount+1
// members.
func (b *Bootstrap) handleKey(env protocol.Envelope, from *net.UDPAddr) {
	if env.Key == "" {
		b.log.Warn("key envelope missing public key")
		return
	}

	b.ch.Lock()
	if b.ch.Roster().Size() >= b.cfg.NodesCount+1 {
		b.ch.Unlock()
		b.log.Warn("admission rejected: roster full", "from", from.String())
		return
	}

	id := b.ch.Roster().NextPeerID()
	b.ch.Roster().Add(chain.Participant{
		ID:        id,
		Host:      from.IP.String(),
		Port:      from.Port,
		PublicKey: env.Key,
		Stake:     0,
		Balance:   0,
	})

	priorPeers := make([]chain.Participant, 0, b.ch.Roster().Size()-1)
	for _, p := range b.ch.Roster().All() {
		if p.ID != id {
			priorPeers = append(priorPeers, p)
		}
	}

	blocks := make([]*chain.Block, 0, b.ch.Len())
	for i := 0; i < b.ch.Len(); i++ {
		blk, _ := b.ch.Block(i)
		blocks = append(blocks, blk)
	}
	allParticipants := b.ch.Roster().All()
	pendingSnapshot := make([]*chain.Transaction, len(b.pendingBlock))
	copy(pendingSnapshot, b.pendingBlock)
	capacity := b.ch.Capacity()
	tailIndex := b.ch.Len() - 1
	b.ch.Unlock()

	b.log.Info("admitted participant", "id", id, "from", from.String())

	nodePayloads := make([]protocol.NodePayload, 0, len(allParticipants))
	for _, p := range allParticipants {
		nodePayloads = append(nodePayloads, protocol.FromParticipant(p))
	}

	for _, p := range priorPeers {
		b.announceNode(p, id, allParticipants)
	}

	b.activate(from, id, blocks, capacity, tailIndex, nodePayloads, pendingSnapshot)

	if err := b.ExecuteTransaction(id, chain.TxCoins, 1000.0); err != nil {
		b.log.Error("genesis credit failed", "id", id, "err", err)
	}
}

func (b *Bootstrap) announceNode(to chain.Participant, newID int, all []chain.Participant) {
	var payload protocol.NodePayload
	for _, p := range all {
		if p.ID == newID {
			payload = protocol.FromParticipant(p)
			break
		}
	}
	env := protocol.Envelope{MessageType: protocol.MsgNode, Node: &payload}
	wire, err := protocol.Encode(env)
	if err != nil {
		b.log.Error("encode node announcement failed", "err", err)
		return
	}
	if err := b.ep.SendTo(wire, to.Host, to.Port); err != nil {
		b.log.Warn("node announcement send failed", "to", to.ID, "err", err)
	}
}

func (b *Bootstrap) activate(to *net.UDPAddr, id int, blocks []*chain.Block, capacity, tailIndex int, nodes []protocol.NodePayload, pending []*chain.Transaction) {
	env := protocol.Envelope{
		MessageType: protocol.MsgActivate,
		Activate: &protocol.ActivatePayload{
			ID:    id,
			Color: colorPalette[id%len(colorPalette)],
			Blockchain: protocol.ChainSnapshot{
				Capacity:   capacity,
				BlockIndex: tailIndex,
				Chain:      blocks,
				Nodes:      nodes,
			},
			CurrentBlock: pending,
		},
	}
	wire, err := protocol.Encode(env)
	if err != nil {
		b.log.Error("encode activate failed", "err", err)
		return
	}
	if err := b.ep.SendTo(wire, to.IP.String(), to.Port); err != nil {
		b.log.Warn("activate send failed", "err", err)
	}
}
