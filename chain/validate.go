package chain

import (
	"errors"
	"fmt"
)

// Sentinel validation errors covering each transaction validation check.
var (
	ErrMissingFields       = errors.New("chain: transaction missing required fields")
	ErrUnknownSender       = errors.New("chain: unknown sender")
	ErrUnknownReceiver     = errors.New("chain: unknown receiver")
	ErrUnknownType         = errors.New("chain: unknown transaction type")
	ErrBadNonce            = errors.New("chain: unexpected nonce")
	ErrBadSignature        = errors.New("chain: signature verification failed")
	ErrBadHash             = errors.New("chain: hash mismatch")
	ErrInvalidAmount       = errors.New("chain: invalid amount")
	ErrInvalidMessage      = errors.New("chain: invalid message value")
	ErrInsufficientBalance = errors.New("chain: insufficient available balance")
)

// VerifyFunc checks a detached signature against an address (satisfied by
// wallet.Verify).
type VerifyFunc func(address string, message, signature []byte) error

// ValidateTransaction checks a transaction against the roster's current
// state: required fields, known sender/receiver, type, nonce, signature,
// hash, and the economic constraint for its type. It never mutates
// roster; the caller applies effects separately via ApplyTransaction once
// validation passes.
func ValidateTransaction(tx *Transaction, roster *Roster, feeRate float64, verify VerifyFunc) error {
	if tx.UUID == "" || tx.SenderAddress == "" || tx.Timestamp == "" || tx.Signature == "" || tx.Hash == "" {
		return ErrMissingFields
	}

	sender, ok := roster.ByPublicKey(tx.SenderAddress)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSender, tx.SenderAddress)
	}

	switch tx.Type {
	case TxCoins, TxMessage, TxStake:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, tx.Type)
	}

	if !(tx.Type == TxStake && tx.ReceiverAddress == NoReceiver) {
		if _, ok := roster.ByPublicKey(tx.ReceiverAddress); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownReceiver, tx.ReceiverAddress)
		}
	}

	if tx.Nonce != sender.Nonce {
		return fmt.Errorf("%w: got %d, expected %d", ErrBadNonce, tx.Nonce, sender.Nonce)
	}

	if err := VerifySignature(tx, verify); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if RecomputeHash(tx) != tx.Hash {
		return ErrBadHash
	}

	available := sender.Available()
	switch tx.Type {
	case TxCoins:
		value, ok := tx.AmountValue()
		if !ok {
			return ErrInvalidAmount
		}
		totalCost := (1 + feeRate) * value
		if totalCost <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, value)
		}
		if available < totalCost {
			return fmt.Errorf("%w: %v < %v", ErrInsufficientBalance, available, totalCost)
		}
	case TxMessage:
		text, ok := tx.TextValue()
		if !ok {
			return ErrInvalidMessage
		}
		if available < float64(len([]rune(text))) {
			return fmt.Errorf("%w: %v < %v", ErrInsufficientBalance, available, len([]rune(text)))
		}
	case TxStake:
		value, ok := tx.AmountValue()
		if !ok {
			return ErrInvalidAmount
		}
		if value <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, value)
		}
		if value > sender.Balance {
			return fmt.Errorf("%w: %v > %v", ErrInsufficientBalance, value, sender.Balance)
		}
	}

	return nil
}

// ApplyTransaction applies the economic effect of an already-validated
// transaction to the roster, returning the fee accrued (coins surcharge
// or message-length burn) for the pending-block fee accumulator.
func ApplyTransaction(tx *Transaction, roster *Roster, feeRate float64) float64 {
	sender, _ := roster.ByPublicKey(tx.SenderAddress)
	sender.Nonce++

	fee := 0.0

	switch tx.Type {
	case TxCoins:
		value, _ := tx.AmountValue()
		totalCost := (1 + feeRate) * value
		sender.Balance -= totalCost
		fee = totalCost - value

		if receiver, ok := roster.ByPublicKey(tx.ReceiverAddress); ok {
			receiver.Balance += value
			roster.Update(receiver)
		}
	case TxMessage:
		text, _ := tx.TextValue()
		cost := float64(len([]rune(text)))
		sender.Balance -= cost
		fee = cost
	case TxStake:
		value, _ := tx.AmountValue()
		sender.Stake += value
	}

	roster.Update(sender)
	return fee
}
