package chain

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// TxType enumerates the three transaction kinds.
type TxType string

const (
	TxCoins   TxType = "coins"
	TxMessage TxType = "message"
	TxStake   TxType = "stake"
)

// NoReceiver is the sentinel receiver address denoting "no receiver",
// carried by stake-set transactions.
const NoReceiver = "0"

// GenesisSender is the sentinel sender address of the genesis mint
// transaction.
const GenesisSender = "0"

// Transaction is the immutable, signed record of a single ledger event.
// Field order below is the canonical encoding order. Signer and verifier
// marshal signedFields and hashedFields, which repeat these fields in the
// same order, so Go's struct-field-order JSON encoding gives every
// participant byte-identical canonical bytes.
type Transaction struct {
	UUID            string      `json:"uuid"`
	SenderAddress   string      `json:"sender_address"`
	ReceiverAddress string      `json:"receiver_address"`
	Timestamp       string      `json:"timestamp"`
	Type            TxType      `json:"type_of_transaction"`
	Value           interface{} `json:"value"`
	Nonce           uint64      `json:"nonce"`
	Signature       string      `json:"signature"`
	Hash            string      `json:"hash"`
}

// signedFields is the subset of Transaction covered by the signature: all
// fields preceding Signature, in canonical order.
type signedFields struct {
	UUID            string      `json:"uuid"`
	SenderAddress   string      `json:"sender_address"`
	ReceiverAddress string      `json:"receiver_address"`
	Timestamp       string      `json:"timestamp"`
	Type            TxType      `json:"type_of_transaction"`
	Value           interface{} `json:"value"`
	Nonce           uint64      `json:"nonce"`
}

// hashedFields additionally covers the signature: the hash is not
// included in the body it hashes, but the signature is.
type hashedFields struct {
	signedFields
	Signature string `json:"signature"`
}

func (tx *Transaction) signBytes() []byte {
	b, _ := json.Marshal(signedFields{
		UUID:            tx.UUID,
		SenderAddress:   tx.SenderAddress,
		ReceiverAddress: tx.ReceiverAddress,
		Timestamp:       tx.Timestamp,
		Type:            tx.Type,
		Value:           tx.Value,
		Nonce:           tx.Nonce,
	})
	return b
}

func (tx *Transaction) hashBytes() []byte {
	b, _ := json.Marshal(hashedFields{
		signedFields: signedFields{
			UUID:            tx.UUID,
			SenderAddress:   tx.SenderAddress,
			ReceiverAddress: tx.ReceiverAddress,
			Timestamp:       tx.Timestamp,
			Type:            tx.Type,
			Value:           tx.Value,
			Nonce:           tx.Nonce,
		},
		Signature: tx.Signature,
	})
	return b
}

func computeHash(b []byte) string {
	digest := sha3.Sum256(b)
	return hex.EncodeToString(digest[:])
}

// Signer signs canonical bytes (satisfied by *wallet.Wallet).
type Signer interface {
	Address() string
	Sign(message []byte) ([]byte, error)
}

// NewTransaction builds, signs and hashes a transaction on behalf of the
// sending participant. value must be float64 for coins/stake or string
// for message.
func NewTransaction(signer Signer, receiverAddress string, typ TxType, value interface{}, nonce uint64, now time.Time) (*Transaction, error) {
	tx := &Transaction{
		UUID:            uuid.NewString(),
		SenderAddress:   signer.Address(),
		ReceiverAddress: receiverAddress,
		Timestamp:       now.Format(time.RFC3339Nano),
		Type:            typ,
		Value:           value,
		Nonce:           nonce,
	}

	sig, err := signer.Sign(tx.signBytes())
	if err != nil {
		return nil, fmt.Errorf("chain: sign transaction: %w", err)
	}
	tx.Signature = base64.StdEncoding.EncodeToString(sig)
	tx.Hash = computeHash(tx.hashBytes())

	return tx, nil
}

// VerifySignature checks tx.Signature against tx.SenderAddress over the
// canonical signed body.
func VerifySignature(tx *Transaction, verify func(address string, message, signature []byte) error) error {
	sig, err := base64.StdEncoding.DecodeString(tx.Signature)
	if err != nil {
		return fmt.Errorf("chain: decode signature: %w", err)
	}
	return verify(tx.SenderAddress, tx.signBytes(), sig)
}

// RecomputeHash returns the hash this transaction should carry, for
// comparison against the wire-supplied Hash.
func RecomputeHash(tx *Transaction) string {
	return computeHash(tx.hashBytes())
}

// AmountValue returns Value as a float64, for coins/stake transactions.
func (tx *Transaction) AmountValue() (float64, bool) {
	switch v := tx.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// TextValue returns Value as a string, for message transactions.
func (tx *Transaction) TextValue() (string, bool) {
	s, ok := tx.Value.(string)
	return s, ok
}
