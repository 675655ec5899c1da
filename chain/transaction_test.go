package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSigner struct {
	addr string
}

func (s *stubSigner) Address() string { return s.addr }
func (s *stubSigner) Sign(message []byte) ([]byte, error) {
	return []byte("sig:" + string(message)), nil
}

func TestNewTransactionSignsAndHashes(t *testing.T) {
	signer := &stubSigner{addr: "addr-A"}
	tx, err := NewTransaction(signer, "addr-B", TxCoins, 10.0, 0, time.Unix(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, tx.Hash)
	require.Equal(t, RecomputeHash(tx), tx.Hash)
}

func TestHashCoversSignedValue(t *testing.T) {
	signer := &stubSigner{addr: "addr-A"}
	tx, err := NewTransaction(signer, "addr-B", TxCoins, 10.0, 0, time.Unix(0, 0))
	require.NoError(t, err)

	tampered := *tx
	tampered.Value = 11.0
	require.NotEqual(t, RecomputeHash(&tampered), tx.Hash)
}

func TestAmountAndTextValue(t *testing.T) {
	tx := &Transaction{Value: 5.0}
	v, ok := tx.AmountValue()
	require.True(t, ok)
	require.Equal(t, 5.0, v)

	_, ok = tx.TextValue()
	require.False(t, ok)

	tx2 := &Transaction{Value: "hello"}
	s, ok := tx2.TextValue()
	require.True(t, ok)
	require.Equal(t, "hello", s)
}
