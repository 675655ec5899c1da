package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChainAppendEnforcesIndex(t *testing.T) {
	genesis, _ := NewGenesisBlock("addr", 3, time.Unix(0, 0))
	c := New(genesis, 5, DefaultFeeRate)

	bad := Seal(5, 0, nil, genesis.Hash, time.Unix(1, 0))
	require.Error(t, c.Append(bad))

	good := Seal(1, 0, nil, genesis.Hash, time.Unix(1, 0))
	require.NoError(t, c.Append(good))
	require.Equal(t, 2, c.Len())
}

func TestChainValidateFullDetectsBrokenLinkage(t *testing.T) {
	genesis, _ := NewGenesisBlock("addr", 3, time.Unix(0, 0))
	c := New(genesis, 5, DefaultFeeRate)

	b1 := Seal(1, 0, nil, "not-the-tail-hash", time.Unix(1, 0))
	c.blocks = append(c.blocks, b1)

	require.Error(t, c.ValidateFull())
}

func TestProjectStateFoldsGenesisMint(t *testing.T) {
	genesis, mint := NewGenesisBlock("bootstrap-addr", 3, time.Unix(0, 0))
	c := New(genesis, 5, DefaultFeeRate)
	c.Roster().Add(Participant{ID: 0, PublicKey: "bootstrap-addr"})

	state, lastFees := c.ProjectState(nil)
	require.Equal(t, 0.0, lastFees)
	require.Equal(t, 3000.0, state[mint.ReceiverAddress].Balance)
}
