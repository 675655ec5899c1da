package chain

import (
	"encoding/binary"
	"math/rand"
	"sync"
)

// Pool is the stake-weighted multiset used to draw a validator: each
// participant's id appears floor(stake) times.
type Pool []int

// BuildPool snapshots the current roster into an election pool. The
// caller must do this at the moment the pending block buffer fills: the
// pool used to validate a block must be the one visible when that
// block's transactions were sealed, not the pool current at
// block-receive time.
func BuildPool(roster *Roster) Pool {
	var pool Pool
	for _, p := range roster.All() {
		weight := int(p.Stake)
		for i := 0; i < weight; i++ {
			pool = append(pool, p.ID)
		}
	}
	return pool
}

// Elect deterministically draws a validator id from pool, seeded by the
// hash of the previous block. An empty pool always elects bootstrap
// (id 0).
func Elect(pool Pool, seedHash string) int {
	if len(pool) == 0 {
		return 0
	}

	seed := seedFromHash(seedHash)
	r := rand.New(rand.NewSource(seed))
	return pool[r.Intn(len(pool))]
}

func seedFromHash(hash string) int64 {
	if len(hash) < 8 {
		padded := make([]byte, 8)
		copy(padded, hash)
		return int64(binary.BigEndian.Uint64(padded))
	}
	return int64(binary.BigEndian.Uint64([]byte(hash[:8])))
}

// PoolQueue is the FIFO of past election pools: one enqueue per sealed
// pending buffer, one dequeue per accepted block, shared between the
// transaction worker (producer) and the block worker (consumer).
type PoolQueue struct {
	mu    sync.Mutex
	items []Pool
}

// NewPoolQueue builds an empty past-pool FIFO.
func NewPoolQueue() *PoolQueue {
	return &PoolQueue{}
}

// Push enqueues a pool snapshot, called when the pending block buffer
// reaches capacity.
func (q *PoolQueue) Push(p Pool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// Peek returns the oldest pool snapshot without dequeuing it, used to
// check a candidate block's validator before the block is known to be
// acceptable.
func (q *PoolQueue) Peek() (Pool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Pop dequeues the oldest pool snapshot, called once a block has been
// appended. It returns false if the queue is empty, which should never
// happen in a correct run (every sealed buffer enqueues exactly once).
func (q *PoolQueue) Pop() (Pool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// FeeQueue is the matching FIFO of accumulated fees per sealed buffer,
// credited to the validator once the corresponding block is accepted.
type FeeQueue struct {
	mu    sync.Mutex
	items []float64
}

// NewFeeQueue builds an empty fee FIFO.
func NewFeeQueue() *FeeQueue {
	return &FeeQueue{}
}

// Push enqueues the fee total accrued by a sealed pending buffer.
func (q *FeeQueue) Push(fee float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, fee)
}

// Pop dequeues the oldest accrued fee total.
func (q *FeeQueue) Pop() (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}
