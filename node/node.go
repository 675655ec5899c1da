// Package node implements the peer node and bootstrap role: intake
// queues, validation, registration, mining and the admission handshake.
package node

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avtzis/blockchat/chain"
	"github.com/avtzis/blockchat/internal/clog"
	"github.com/avtzis/blockchat/network"
	"github.com/avtzis/blockchat/protocol"
	"github.com/avtzis/blockchat/wallet"
)

// Config carries the parameters a node process is launched with.
type Config struct {
	NodesCount     int
	Capacity       int
	InitialStake   float64
	BootstrapHost  string
	BootstrapPort  int
	Verbose        bool
	Debug          bool
	PingRetryEvery time.Duration
}

// queueDepth bounds the two intake channels.
const queueDepth = 256

// Node is one participant's local view of the protocol: socket, wallet,
// chain mirror, pending-block buffer and the two intake workers.
type Node struct {
	cfg    Config
	log    *clog.Logger
	wallet *wallet.Wallet
	ep     *network.Endpoint
	ch     *chain.Chain

	idMu sync.RWMutex
	id   *int

	balanceMu    sync.Mutex
	localBalance float64
	localStake   float64
	localNonce   uint64

	// pendingBlock and pendingFees are written only by the transaction
	// worker goroutine and read by the mining step it calls directly on
	// the same thread — no cross-thread sharing, no lock needed.
	pendingBlock []*chain.Transaction
	pendingFees  float64

	poolQueue *chain.PoolQueue
	feeQueue  *chain.FeeQueue

	txQueue    chan *chain.Transaction
	blockQueue chan *chain.Block

	sealMu      sync.Mutex
	sealWaiters map[int]chan struct{}

	// onPing/onKey let Bootstrap (the only role that ever receives these
	// message types) hook the shared receive loop without Node needing
	// any notion of subtype dispatch.
	onPing func(from *net.UDPAddr)
	onKey  func(env protocol.Envelope, from *net.UDPAddr)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a node with a fresh wallet. The chain is attached later,
// once either genesis (bootstrap) or the activate envelope (peer)
// supplies it.
func New(cfg Config, id *int) (*Node, error) {
	w, err := wallet.New()
	if err != nil {
		return nil, fmt.Errorf("node: new wallet: %w", err)
	}
	if cfg.PingRetryEvery == 0 {
		cfg.PingRetryEvery = 100 * time.Millisecond
	}

	n := &Node{
		cfg:         cfg,
		log:         clog.New(id, cfg.Verbose, cfg.Debug),
		wallet:      w,
		id:          id,
		poolQueue:   chain.NewPoolQueue(),
		feeQueue:    chain.NewFeeQueue(),
		txQueue:     make(chan *chain.Transaction, queueDepth),
		blockQueue:  make(chan *chain.Block, queueDepth),
		sealWaiters: make(map[int]chan struct{}),
		stopCh:      make(chan struct{}),
	}
	return n, nil
}

// ID returns the participant's assigned id, or -1 if not yet admitted.
func (n *Node) ID() int {
	n.idMu.RLock()
	defer n.idMu.RUnlock()
	if n.id == nil {
		return -1
	}
	return *n.id
}

func (n *Node) setID(id int) {
	n.idMu.Lock()
	defer n.idMu.Unlock()
	n.id = &id
	n.log.SetID(id)
}

// Wallet exposes the local keypair (address(), sign()).
func (n *Node) Wallet() *wallet.Wallet { return n.wallet }

// Chain exposes the local chain mirror.
func (n *Node) Chain() *chain.Chain { return n.ch }

// SetChain attaches the chain mirror, built from genesis (bootstrap) or
// from an activate envelope's snapshot (peer).
func (n *Node) SetChain(c *chain.Chain) { n.ch = c }

// SetLocalState seeds this node's own balance/stake/nonce cache, used
// once at startup (bootstrap after genesis, peer after admission).
func (n *Node) SetLocalState(balance, stake float64, nonce uint64) {
	n.balanceMu.Lock()
	defer n.balanceMu.Unlock()
	n.localBalance = balance
	n.localStake = stake
	n.localNonce = nonce
}

// LocalBalance returns this node's own balance cache.
func (n *Node) LocalBalance() float64 {
	n.balanceMu.Lock()
	defer n.balanceMu.Unlock()
	return n.localBalance
}

// LocalStake returns this node's own stake cache.
func (n *Node) LocalStake() float64 {
	n.balanceMu.Lock()
	defer n.balanceMu.Unlock()
	return n.localStake
}

// Log exposes the node's scoped logger for callers outside the package
// (cmd/blockchat wiring).
func (n *Node) Log() *clog.Logger { return n.log }

// Endpoint exposes the bound UDP endpoint, for callers outside the
// package that need to send raw datagrams.
func (n *Node) Endpoint() *network.Endpoint { return n.ep }

// Bind opens the UDP endpoint this node listens on. port 0 picks an
// ephemeral port (peers); bootstrap binds its fixed advertised port.
func (n *Node) Bind(host string, port int) error {
	ep, err := network.Listen(host, port, n.cfg.Capacity, n.log)
	if err != nil {
		return err
	}
	n.ep = ep
	host2, port2 := ep.LocalAddr()
	n.log.Info("listening", "addr", fmt.Sprintf("%s:%d", host2, port2))
	return nil
}

// LocalAddr returns the bound host/port.
func (n *Node) LocalAddr() (string, int) { return n.ep.LocalAddr() }

// Start launches the receive loop and the two worker goroutines. The
// node must already know its chain (genesis or activate-derived) and
// its id.
func (n *Node) Start() {
	n.wg.Add(3)
	go n.receiveLoop()
	go n.txWorker()
	go n.blockWorker()
}

// Stop closes the socket and waits for the workers to observe shutdown
// and terminate.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.ep != nil {
		n.ep.Close()
	}
	n.wg.Wait()
}

func (n *Node) broadcastTargets() []network.Address {
	var out []network.Address
	for _, p := range n.ch.Roster().All() {
		out = append(out, network.Address{Host: p.Host, Port: p.Port})
	}
	return out
}

// receiveLoop classifies inbound envelopes and feeds the two intake
// queues.
func (n *Node) receiveLoop() {
	defer n.wg.Done()
	for {
		payload, from, err := n.ep.Receive()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Warn("receive failed", "err", err)
				continue
			}
		}

		if string(payload) == "ping" {
			if n.onPing != nil {
				n.onPing(from)
			}
			continue
		}

		env, err := protocol.Decode(payload)
		if err != nil {
			n.log.Warn("malformed envelope dropped", "from", from.String(), "err", err)
			continue
		}

		switch env.MessageType {
		case protocol.MsgKey:
			if n.onKey != nil {
				n.onKey(env, from)
			}
		case protocol.MsgNode:
			n.handleNodeAnnouncement(env)
		case protocol.MsgTransaction:
			if env.Transaction == nil {
				n.log.Warn("transaction envelope missing payload")
				continue
			}
			if n.ep.Seen("tx:" + env.Transaction.UUID) {
				continue
			}
			select {
			case n.txQueue <- env.Transaction:
			case <-n.stopCh:
				return
			}
		case protocol.MsgBlock:
			if env.Block == nil {
				n.log.Warn("block envelope missing payload")
				continue
			}
			if n.ep.Seen("block:" + env.Block.Hash) {
				continue
			}
			select {
			case n.blockQueue <- env.Block:
			case <-n.stopCh:
				return
			}
		default:
			n.log.Warn("unexpected message_type", "type", env.MessageType)
		}
	}
}

// handleNodeAnnouncement adds a newly admitted participant to the local
// roster mirror.
func (n *Node) handleNodeAnnouncement(env protocol.Envelope) {
	if env.Node == nil {
		return
	}
	n.ch.Lock()
	n.ch.Roster().Add(env.Node.ToParticipant())
	n.ch.Unlock()
	n.log.Info("learned new participant", "id", env.Node.ID)
}

// ExecuteTransaction is the user-initiated send: looks up the receiver,
// pre-debits the local wallet under the balance lock to reserve funds
// against a concurrent send, then constructs, signs and broadcasts the
// transaction.
func (n *Node) ExecuteTransaction(receiverID int, typ chain.TxType, value interface{}) error {
	receiverAddress := chain.NoReceiver
	if receiverID != -1 {
		n.ch.RLock()
		receiver, ok := n.ch.Roster().Get(receiverID)
		n.ch.RUnlock()
		if !ok {
			return fmt.Errorf("node: execute transaction: unknown receiver %d", receiverID)
		}
		receiverAddress = receiver.PublicKey
	} else if typ != chain.TxStake {
		return fmt.Errorf("node: execute transaction: sentinel receiver only valid for stake")
	}

	n.balanceMu.Lock()
	available := n.localBalance - n.localStake
	switch typ {
	case chain.TxStake:
		amount, ok := value.(float64)
		if !ok || amount <= 0 || amount > available {
			n.balanceMu.Unlock()
			return fmt.Errorf("node: execute transaction: invalid stake amount %v", value)
		}
		n.localStake += amount
	case chain.TxCoins:
		amount, ok := value.(float64)
		totalCost := (1 + n.ch.FeeRate()) * amount
		if !ok || totalCost <= 0 || totalCost > available {
			n.balanceMu.Unlock()
			return fmt.Errorf("node: execute transaction: invalid coin amount %v", value)
		}
		n.localBalance -= totalCost
	case chain.TxMessage:
		text, ok := value.(string)
		cost := float64(len([]rune(text)))
		if !ok || cost > available {
			n.balanceMu.Unlock()
			return fmt.Errorf("node: execute transaction: invalid message value")
		}
		n.localBalance -= cost
	default:
		n.balanceMu.Unlock()
		return fmt.Errorf("node: execute transaction: unknown type %s", typ)
	}
	nonce := n.localNonce
	n.localNonce++
	// Released before signing/broadcasting: pre-debit under the lock,
	// then release before the slower network call.
	n.balanceMu.Unlock()

	tx, err := chain.NewTransaction(n.wallet, receiverAddress, typ, value, nonce, time.Now())
	if err != nil {
		return fmt.Errorf("node: execute transaction: %w", err)
	}

	n.log.Info("executing transaction", "uuid", tx.UUID, "type", typ, "value", value)
	n.broadcastTransaction(tx)
	return nil
}

func (n *Node) broadcastTransaction(tx *chain.Transaction) {
	env := protocol.Envelope{MessageType: protocol.MsgTransaction, Transaction: tx}
	b, err := protocol.Encode(env)
	if err != nil {
		n.log.Error("encode transaction failed", "err", err)
		return
	}
	n.ep.Broadcast(b, n.broadcastTargets())
}

func (n *Node) broadcastBlock(b *chain.Block) {
	env := protocol.Envelope{MessageType: protocol.MsgBlock, Block: b}
	wire, err := protocol.Encode(env)
	if err != nil {
		n.log.Error("encode block failed", "err", err)
		return
	}
	n.ep.Broadcast(wire, n.broadcastTargets())
}

// txWorker drains the transaction intake queue in FIFO order, validating
// and registering each transaction, mining whenever the pending buffer
// fills.
func (n *Node) txWorker() {
	defer n.wg.Done()
	for {
		select {
		case tx := <-n.txQueue:
			n.receiveTransaction(tx)
		case <-n.stopCh:
			return
		}
	}
}

func (n *Node) receiveTransaction(tx *chain.Transaction) {
	n.ch.Lock()
	err := chain.ValidateTransaction(tx, n.ch.Roster(), n.ch.FeeRate(), wallet.Verify)
	if err != nil {
		n.ch.Unlock()
		n.log.Warn("transaction rejected", "uuid", tx.UUID, "err", err)
		return
	}
	fee := chain.ApplyTransaction(tx, n.ch.Roster(), n.ch.FeeRate())
	n.ch.Unlock()

	n.reconcileLocalBalance(tx)

	n.pendingFees += fee
	n.pendingBlock = append(n.pendingBlock, tx)
	n.log.Info("transaction registered", "uuid", tx.UUID, "pending", len(n.pendingBlock))

	if len(n.pendingBlock) == n.ch.Capacity() {
		n.log.Info("pending block full, mining")
		n.mine()
	}
}

// reconcileLocalBalance applies the registration-time effect of tx to
// this node's own balance cache. The sender side is never applied here
// (a node's own sends were already reserved in ExecuteTransaction's
// pre-debit); a coin value is credited when this node is the receiver
// and not also the sender. Validator fee credit is applied in
// receiveBlock, not here.
func (n *Node) reconcileLocalBalance(tx *chain.Transaction) {
	myID := n.ID()
	if myID < 0 {
		return
	}
	n.ch.RLock()
	sender, _ := n.ch.Roster().ByPublicKey(tx.SenderAddress)
	receiver, hasReceiver := n.ch.Roster().ByPublicKey(tx.ReceiverAddress)
	n.ch.RUnlock()

	n.balanceMu.Lock()
	defer n.balanceMu.Unlock()

	isSender := sender.ID == myID
	switch tx.Type {
	case chain.TxCoins:
		value, _ := tx.AmountValue()
		if !isSender && hasReceiver && receiver.ID == myID {
			n.localBalance += value
		}
	case chain.TxMessage:
		// Only the sender's balance moves; already reserved if self.
	case chain.TxStake:
		// Only the sender's stake moves; already reserved if self.
	}
}

// mine runs the stake-weighted election: snapshots the pool, seals and
// broadcasts a block if elected, then waits for the block worker to
// confirm the matching block landed before returning control to the
// transaction worker. This barrier keeps pending-buffer mutation
// confined to the transaction worker goroutine even though the block
// that closes a round arrives back through the block worker.
func (n *Node) mine() {
	n.ch.RLock()
	pool := chain.BuildPool(n.ch.Roster())
	tail := n.ch.Tail()
	n.ch.RUnlock()

	targetIndex := tail.Index + 1

	n.poolQueue.Push(pool)
	n.feeQueue.Push(n.pendingFees)

	validatorID := chain.Elect(pool, tail.Hash)
	n.log.Info("validator elected", "id", validatorID, "block", targetIndex)

	waiter := n.registerSealWaiter(targetIndex)

	if validatorID == n.ID() {
		sealed := chain.Seal(targetIndex, n.ID(), n.pendingBlock, tail.Hash, time.Now())
		n.log.Info("sealing block", "index", sealed.Index)
		n.broadcastBlock(sealed)
	}

	n.pendingBlock = nil
	n.pendingFees = 0

	select {
	case <-waiter:
	case <-n.stopCh:
	}
}

func (n *Node) registerSealWaiter(index int) chan struct{} {
	ch := make(chan struct{})
	n.sealMu.Lock()
	n.sealWaiters[index] = ch
	n.sealMu.Unlock()
	return ch
}

func (n *Node) signalSealed(index int) {
	n.sealMu.Lock()
	ch, ok := n.sealWaiters[index]
	if ok {
		delete(n.sealWaiters, index)
	}
	n.sealMu.Unlock()
	if ok {
		close(ch)
	}
}

// blockWorker drains the block intake queue in FIFO order, validating
// against the past-pool snapshot, appending and crediting the validator.
func (n *Node) blockWorker() {
	defer n.wg.Done()
	for {
		select {
		case b := <-n.blockQueue:
			n.receiveBlock(b)
		case <-n.stopCh:
			return
		}
	}
}

func (n *Node) receiveBlock(b *chain.Block) {
	n.ch.Lock()
	tail := n.ch.Tail()
	if err := chain.ValidateBlock(b, tail.Hash); err != nil {
		n.ch.Unlock()
		n.log.Warn("block rejected", "index", b.Index, "err", err)
		return
	}

	pool, ok := n.poolQueue.Peek()
	if !ok {
		n.ch.Unlock()
		n.log.Error("past-pool queue empty validating block", "index", b.Index)
		return
	}
	if want := chain.Elect(pool, b.PreviousHash); want != b.Validator {
		n.ch.Unlock()
		n.log.Warn("block validator mismatch", "index", b.Index, "got", b.Validator, "want", want)
		return
	}

	if err := n.ch.Append(b); err != nil {
		n.ch.Unlock()
		n.log.Error("append block failed", "err", err)
		return
	}

	n.poolQueue.Pop()
	fee, _ := n.feeQueue.Pop()
	validator, ok := n.ch.Roster().Get(b.Validator)
	if ok {
		validator.Balance += fee
		n.ch.Roster().Update(validator)
	}
	n.ch.Unlock()

	if ok && validator.ID == n.ID() {
		n.balanceMu.Lock()
		n.localBalance = validator.Balance
		n.balanceMu.Unlock()
	}

	n.log.Info("block registered", "index", b.Index, "validator", b.Validator)
	n.signalSealed(b.Index)
}
