package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// GenesisPreviousHash is the fixed previous-hash value carried by the
// genesis block.
const GenesisPreviousHash = "1"

// Block is the immutable sealed batch of transactions forming one link
// in the chain.
type Block struct {
	Index        int            `json:"index"`
	Timestamp    string         `json:"timestamp"`
	Validator    int            `json:"validator"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
}

type blockHashedFields struct {
	Index        int            `json:"index"`
	Timestamp    string         `json:"timestamp"`
	Validator    int            `json:"validator"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
}

func (b *Block) hashBytes() []byte {
	bs, _ := json.Marshal(blockHashedFields{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Validator:    b.Validator,
		Transactions: b.Transactions,
		PreviousHash: b.PreviousHash,
	})
	return bs
}

// Seal assembles a sealed block: assigns index and validator, sorts
// transactions by timestamp (stable), sets previous_hash and computes
// the final hash.
func Seal(index, validatorID int, txs []*Transaction, previousHash string, now time.Time) *Block {
	sorted := make([]*Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	b := &Block{
		Index:        index,
		Timestamp:    now.Format(time.RFC3339Nano),
		Validator:    validatorID,
		Transactions: sorted,
		PreviousHash: previousHash,
	}
	b.Hash = computeHash(b.hashBytes())
	return b
}

// NewGenesisBlock builds the bootstrap's genesis block: a single coins
// mint from the sentinel sender to bootstrap's own address, value
// 1000*nodesCount.
func NewGenesisBlock(bootstrapAddress string, nodesCount int, now time.Time) (*Block, *Transaction) {
	mint := &Transaction{
		UUID:            "genesis",
		SenderAddress:   GenesisSender,
		ReceiverAddress: bootstrapAddress,
		Timestamp:       now.Format(time.RFC3339Nano),
		Type:            TxCoins,
		Value:           float64(1000 * nodesCount),
		Nonce:           0,
	}
	mint.Hash = computeHash(mint.hashBytes())

	b := &Block{
		Index:        0,
		Timestamp:    now.Format(time.RFC3339Nano),
		Validator:    0,
		Transactions: []*Transaction{mint},
		PreviousHash: GenesisPreviousHash,
	}
	b.Hash = computeHash(b.hashBytes())
	return b, mint
}

var (
	// ErrBlockMissingFields reports an incomplete envelope.
	ErrBlockMissingFields = errors.New("chain: block missing required fields")
	// ErrBadPreviousHash reports a block that does not extend the tail.
	ErrBadPreviousHash = errors.New("chain: previous_hash does not match chain tail")
	// ErrBadValidator reports a validator id that the election function
	// would not have produced from the snapshotted pool.
	ErrBadValidator = errors.New("chain: validator does not match election result")
	// ErrBadBlockHash reports a recomputed hash mismatch.
	ErrBadBlockHash = errors.New("chain: block hash mismatch")
)

// ValidateBlock checks the block's required fields, its linkage to the
// chain tail, and its own hash. The validator-versus-election check is
// left to the caller, which alone knows which past-pool snapshot
// corresponds to this block.
func ValidateBlock(b *Block, tailHash string) error {
	if b.PreviousHash == "" || b.Hash == "" {
		return ErrBlockMissingFields
	}
	if b.PreviousHash != tailHash {
		return fmt.Errorf("%w: got %s, want %s", ErrBadPreviousHash, b.PreviousHash, tailHash)
	}
	if computeHash(b.hashBytes()) != b.Hash {
		return ErrBadBlockHash
	}
	return nil
}
