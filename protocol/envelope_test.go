package protocol

import (
	"testing"

	"github.com/avtzis/blockchat/chain"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := Envelope{
		MessageType: MsgKey,
		Key:         "pem-key",
		Stake:       10,
	}
	b, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, env, decoded)
}

func TestDecodeRejectsMissingMessageType(t *testing.T) {
	_, err := Decode([]byte(`{"key":"x"}`))
	require.Error(t, err)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestNodePayloadRoundTripsParticipant(t *testing.T) {
	p := chain.Participant{ID: 2, Host: "127.0.0.1", Port: 9000, PublicKey: "pk", Balance: 5, Stake: 1, Nonce: 3}
	np := FromParticipant(p)
	require.Equal(t, p, np.ToParticipant())
}
