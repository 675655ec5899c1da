// Package chain implements the transaction, block, chain and
// validator-election core of BlockChat. It is the single owner of blocks
// and the participant roster; every node mirrors one of these locally
// and serialises mutation through Chain's lock.
package chain

import (
	"fmt"
	"sync"
)

// Chain is the append-only sequence of blocks plus the roster of
// admitted participants, guarded by a single RWMutex shared by every
// mutation of either.
type Chain struct {
	mu       sync.RWMutex
	blocks   []*Block
	roster   *Roster
	capacity int
	feeRate  float64
}

// DefaultFeeRate is the reference coin-transfer fee rate (3%).
const DefaultFeeRate = 0.03

// New builds a chain from its genesis block.
func New(genesis *Block, capacity int, feeRate float64) *Chain {
	return &Chain{
		blocks:   []*Block{genesis},
		roster:   NewRoster(),
		capacity: capacity,
		feeRate:  feeRate,
	}
}

// Capacity returns the fixed per-block transaction count.
func (c *Chain) Capacity() int { return c.capacity }

// FeeRate returns the fixed coin-transfer fee rate.
func (c *Chain) FeeRate() float64 { return c.feeRate }

// Len returns the number of blocks, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tail returns the most recently appended block.
func (c *Chain) Tail() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Append extends the chain. The caller must have already validated the
// block (index, linkage, validator, hash); Append only enforces the
// index invariant as a last line of defence.
func (c *Chain) Append(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.Index != len(c.blocks) {
		return fmt.Errorf("chain: append: block index %d does not extend chain of length %d", b.Index, len(c.blocks))
	}
	c.blocks = append(c.blocks, b)
	return nil
}

// Block returns the block at index i.
func (c *Chain) Block(i int) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return nil, false
	}
	return c.blocks[i], true
}

// Roster exposes the chain-owned participant set. Callers must hold the
// chain lock (Lock) before mutating it.
func (c *Chain) Roster() *Roster { return c.roster }

// Lock acquires the chain lock for a read-modify-write sequence spanning
// roster mutation and/or block append.
func (c *Chain) Lock()    { c.mu.Lock() }
func (c *Chain) Unlock()  { c.mu.Unlock() }
func (c *Chain) RLock()   { c.mu.RLock() }
func (c *Chain) RUnlock() { c.mu.RUnlock() }

// ValidateFull walks the whole chain re-verifying indices, linkage and
// hashes.
func (c *Chain) ValidateFull() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, b := range c.blocks {
		if b.Index != i {
			return fmt.Errorf("chain: block at position %d carries index %d", i, b.Index)
		}
		if i > 0 {
			prev := c.blocks[i-1]
			if b.PreviousHash != prev.Hash {
				return fmt.Errorf("chain: block %d previous_hash does not match block %d hash", i, i-1)
			}
		}
		if computeHash(b.hashBytes()) != b.Hash {
			return fmt.Errorf("chain: block %d hash mismatch", i)
		}
	}
	return nil
}

// ProjectedState is the per-participant balance/stake derived by folding
// every transaction in the chain.
type ProjectedState struct {
	Balance float64
	Stake   float64
}

// ProjectState recomputes every participant's (balance, stake) from
// scratch by folding all transactions across all blocks, and separately
// returns the accumulated fees of the last block. It reads the live
// roster only to map validator ids to addresses and never mutates it; it
// is a from-genesis recomputation used for
// verification, while the hot path keeps running balances incrementally
// via ApplyTransaction.
func (c *Chain) ProjectState(initial map[string]float64) (map[string]*ProjectedState, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := make(map[string]*ProjectedState)
	for addr, bal := range initial {
		state[addr] = &ProjectedState{Balance: bal}
	}
	ensure := func(addr string) *ProjectedState {
		s, ok := state[addr]
		if !ok {
			s = &ProjectedState{}
			state[addr] = s
		}
		return s
	}

	idToAddr := make(map[int]string)
	for _, p := range c.roster.All() {
		idToAddr[p.ID] = p.PublicKey
	}

	var lastBlockFees float64
	for bi, b := range c.blocks {
		var blockFees float64
		for _, tx := range b.Transactions {
			if tx.SenderAddress == GenesisSender {
				// The genesis mint credits bootstrap directly with no
				// sender debit and no fee (it is never run through
				// ApplyTransaction's generic coins path).
				value, _ := tx.AmountValue()
				ensure(tx.ReceiverAddress).Balance += value
				continue
			}
			sender := ensure(tx.SenderAddress)
			switch tx.Type {
			case TxCoins:
				value, _ := tx.AmountValue()
				totalCost := (1 + c.feeRate) * value
				sender.Balance -= totalCost
				blockFees += totalCost - value
				if tx.ReceiverAddress != NoReceiver {
					ensure(tx.ReceiverAddress).Balance += value
				}
			case TxMessage:
				text, _ := tx.TextValue()
				cost := float64(len([]rune(text)))
				sender.Balance -= cost
				blockFees += cost
			case TxStake:
				value, _ := tx.AmountValue()
				sender.Stake += value
			}
		}
		// A block's own transaction fees are credited to that same
		// block's validator once the block is accepted; the genesis
		// block (bi == 0) mints with no validator credit.
		if bi > 0 {
			if addr, ok := idToAddr[b.Validator]; ok {
				ensure(addr).Balance += blockFees
			}
		}
		lastBlockFees = blockFees
	}

	return state, lastBlockFees
}
