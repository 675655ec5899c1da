package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRosterWith(t *testing.T, participants ...Participant) *Roster {
	t.Helper()
	r := NewRoster()
	for _, p := range participants {
		r.Add(p)
	}
	return r
}

func acceptAll(address string, message, signature []byte) error { return nil }

func TestValidateTransactionRejectsUnknownSender(t *testing.T) {
	r := newRosterWith(t, Participant{ID: 0, PublicKey: "bootstrap"})
	tx := &Transaction{
		UUID: "u", SenderAddress: "ghost", ReceiverAddress: "bootstrap",
		Timestamp: time.Now().Format(time.RFC3339Nano), Type: TxCoins, Value: 1.0,
		Signature: "sig", Hash: "hash",
	}
	err := ValidateTransaction(tx, r, DefaultFeeRate, acceptAll)
	require.ErrorIs(t, err, ErrUnknownSender)
}

func TestValidateTransactionRejectsBadNonce(t *testing.T) {
	r := newRosterWith(t,
		Participant{ID: 0, PublicKey: "bootstrap", Balance: 1000},
		Participant{ID: 1, PublicKey: "peer1", Balance: 100, Nonce: 2},
	)
	tx := &Transaction{
		UUID: "u", SenderAddress: "peer1", ReceiverAddress: "bootstrap",
		Timestamp: time.Now().Format(time.RFC3339Nano), Type: TxCoins, Value: 1.0, Nonce: 0,
		Signature: "sig", Hash: "hash",
	}
	err := ValidateTransaction(tx, r, DefaultFeeRate, acceptAll)
	require.ErrorIs(t, err, ErrBadNonce)
}

func TestValidateTransactionRejectsInsufficientBalance(t *testing.T) {
	r := newRosterWith(t,
		Participant{ID: 0, PublicKey: "bootstrap", Balance: 1000},
		Participant{ID: 1, PublicKey: "peer1", Balance: 100},
	)
	signer := &stubSigner{addr: "peer1"}
	tx, err := NewTransaction(signer, "bootstrap", TxCoins, 200.0, 0, time.Now())
	require.NoError(t, err)

	verr := ValidateTransaction(tx, r, DefaultFeeRate, acceptAll)
	require.ErrorIs(t, verr, ErrInsufficientBalance)
}

func TestValidateTransactionStakeAgainstFullBalanceNotAvailable(t *testing.T) {
	r := newRosterWith(t,
		Participant{ID: 0, PublicKey: "bootstrap", Balance: 1000},
		Participant{ID: 1, PublicKey: "peer1", Balance: 100, Stake: 50},
	)
	signer := &stubSigner{addr: "peer1"}
	tx, err := NewTransaction(signer, NoReceiver, TxStake, 80.0, 0, time.Now())
	require.NoError(t, err)

	// 80 <= full balance (100), even though available (100-50=50) < 80:
	// a stake amount is checked against the full balance, not the
	// available balance.
	require.NoError(t, ValidateTransaction(tx, r, DefaultFeeRate, acceptAll))
}

func TestApplyTransactionCoinsMovesBalanceAndAccruesFee(t *testing.T) {
	r := newRosterWith(t,
		Participant{ID: 0, PublicKey: "bootstrap", Balance: 1000},
		Participant{ID: 1, PublicKey: "peer1", Balance: 100},
	)
	tx := &Transaction{SenderAddress: "peer1", ReceiverAddress: "bootstrap", Type: TxCoins, Value: 10.0}
	fee := ApplyTransaction(tx, r, DefaultFeeRate)
	require.InDelta(t, 0.3, fee, 1e-9)

	sender, _ := r.ByPublicKey("peer1")
	require.InDelta(t, 100-10.3, sender.Balance, 1e-9)
	require.Equal(t, uint64(1), sender.Nonce)

	receiver, _ := r.ByPublicKey("bootstrap")
	require.InDelta(t, 1010, receiver.Balance, 1e-9)
}
