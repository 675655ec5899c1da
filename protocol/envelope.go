// Package protocol implements the UDP wire envelope codec: a single
// message_type-tagged JSON object per datagram, covering the ping/pong
// handshake and the key/activate/node/transaction/block exchange.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/avtzis/blockchat/chain"
)

// MessageType tags the payload carried by an envelope.
type MessageType string

const (
	MsgPing        MessageType = "ping"
	MsgKey         MessageType = "key"
	MsgActivate    MessageType = "activate"
	MsgNode        MessageType = "node"
	MsgTransaction MessageType = "transaction"
	MsgBlock       MessageType = "block"
)

// PongLiteral is the literal byte string sent back by bootstrap in reply
// to a ping. It is not a JSON envelope, just a bare literal.
const PongLiteral = "pong"

// Envelope is the generic wire object every non-ping/pong datagram
// carries.
type Envelope struct {
	MessageType MessageType        `json:"message_type"`
	Key         string             `json:"key,omitempty"`
	Stake       float64            `json:"stake,omitempty"`
	Activate    *ActivatePayload   `json:"activate,omitempty"`
	Node        *NodePayload       `json:"node,omitempty"`
	Transaction *chain.Transaction `json:"transaction,omitempty"`
	Block       *chain.Block       `json:"block,omitempty"`
}

// ChainSnapshot is the embedded chain state sent inside an activate
// envelope.
type ChainSnapshot struct {
	Capacity   int                `json:"capacity"`
	BlockIndex int                `json:"block_index"`
	Chain      []*chain.Block     `json:"chain"`
	Nodes      []NodePayload      `json:"nodes"`
}

// ActivatePayload is the body of a {message_type: activate} envelope:
// bootstrap -> newly admitted peer.
type ActivatePayload struct {
	ID           int                  `json:"id"`
	Color        string               `json:"color"`
	Blockchain   ChainSnapshot        `json:"blockchain"`
	CurrentBlock []*chain.Transaction `json:"current_block"`
}

// NodePayload is the participant record broadcast in {message_type: node}
// envelopes and embedded in ChainSnapshot.Nodes.
type NodePayload struct {
	ID      int     `json:"id"`
	Address string  `json:"address"`
	Port    int     `json:"port"`
	Key     string  `json:"key"`
	Stake   float64 `json:"stake"`
	Balance float64 `json:"balance"`
	Nonce   uint64  `json:"nonce"`
}

// ToParticipant converts a wire NodePayload into a chain.Participant.
func (n NodePayload) ToParticipant() chain.Participant {
	return chain.Participant{
		ID:        n.ID,
		Host:      n.Address,
		Port:      n.Port,
		PublicKey: n.Key,
		Balance:   n.Balance,
		Stake:     n.Stake,
		Nonce:     n.Nonce,
	}
}

// FromParticipant converts a chain.Participant into its wire form.
func FromParticipant(p chain.Participant) NodePayload {
	return NodePayload{
		ID:      p.ID,
		Address: p.Host,
		Port:    p.Port,
		Key:     p.PublicKey,
		Stake:   p.Stake,
		Balance: p.Balance,
		Nonce:   p.Nonce,
	}
}

// Encode marshals an envelope to its wire bytes.
func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode envelope: %w", err)
	}
	return b, nil
}

// Decode unmarshals wire bytes into an envelope. A malformed or
// undecodable envelope is the caller's cue to drop and log.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if e.MessageType == "" {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: missing message_type")
	}
	return e, nil
}
