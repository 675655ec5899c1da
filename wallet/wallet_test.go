package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	msg := []byte(`{"uuid":"abc","value":10}`)
	sig, err := w.Sign(msg)
	require.NoError(t, err)

	require.NoError(t, Verify(w.Address(), msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	msg := []byte(`{"value":10}`)
	sig, err := w.Sign(msg)
	require.NoError(t, err)

	tampered := []byte(`{"value":11}`)
	require.Error(t, Verify(w.Address(), tampered, sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	w1, err := New()
	require.NoError(t, err)
	w2, err := New()
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := w1.Sign(msg)
	require.NoError(t, err)

	require.Error(t, Verify(w2.Address(), msg, sig))
}
