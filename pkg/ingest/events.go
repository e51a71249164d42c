// Package ingest turns ordered chain logs into store writes.
//
// The set of indexed events is fixed: every Event is one of ExecutingMessageEvent, SentMessageEvent,
// RelayedMessageEvent or FailedRelayedMessageEvent, and Handlers dispatches on its EventKind.
package ingest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/interop-labs/interop-indexer/pkg/db"
)

// EventKind enumerates the indexed events.
type EventKind uint8

const (
	KindExecutingMessage EventKind = iota + 1
	KindSentMessage
	KindRelayedMessage
	KindFailedRelayedMessage
)

func (k EventKind) String() string {
	switch k {
	case KindExecutingMessage:
		return "ExecutingMessage"
	case KindSentMessage:
		return "SentMessage"
	case KindRelayedMessage:
		return "RelayedMessage"
	case KindFailedRelayedMessage:
		return "FailedRelayedMessage"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Block locates the block an event was emitted in.
type Block struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// Transaction is the transaction that emitted an event, as delivered by the chain reader.
type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Envelope carries the position and origin shared by every event.
type Envelope struct {
	ChainID  uint64
	Block    Block
	LogIndex uint64
	Tx       Transaction
}

func (e *Envelope) Meta() *Envelope {
	return e
}

// LogID is the globally unique id of the log occurrence.
func (e *Envelope) LogID() string {
	return db.LogID(e.Block.Hash, e.LogIndex)
}

// before reports whether e is positioned strictly before other on the same chain.
func (e *Envelope) before(other *Envelope) bool {
	if e.Block.Number != other.Block.Number {
		return e.Block.Number < other.Block.Number
	}
	return e.LogIndex < other.LogIndex
}

// transaction returns the stored form of the envelope's transaction.
func (e *Envelope) transaction() *db.Transaction {
	value := e.Tx.Value
	if value == nil {
		value = new(big.Int)
	}
	return &db.Transaction{
		Hash:      e.Tx.Hash,
		Timestamp: e.Block.Timestamp,
		ChainID:   e.ChainID,
		From:      e.Tx.From,
		To:        e.Tx.To,
		Value:     value,
		Data:      e.Tx.Data,
	}
}

// Event is implemented only by the event types of this package.
type Event interface {
	Kind() EventKind
	Meta() *Envelope
	isEvent()
}

// IdentifierFields points at the source-chain log an ExecutingMessage executes. The numeric fields are full
// uint256 words supplied by the executing caller.
type IdentifierFields struct {
	Origin      common.Address
	BlockNumber *big.Int
	LogIndex    *big.Int
	Timestamp   *big.Int
	ChainID     *big.Int
}

// ExecutingMessageEvent is emitted by the CrossL2Inbox when a message is executed on the destination chain.
type ExecutingMessageEvent struct {
	Envelope
	// PayloadHash is the msgHash topic: the hash of the packed source-chain log.
	PayloadHash common.Hash
	Identifier  IdentifierFields
}

// SentMessageEvent is emitted by the messenger on the source chain.
type SentMessageEvent struct {
	Envelope
	Destination *big.Int
	Target      common.Address
	Nonce       *big.Int
	Sender      common.Address
	Message     []byte
}

// RelayedMessageEvent is emitted by the messenger on the destination chain when a message executed successfully.
type RelayedMessageEvent struct {
	Envelope
	Source      *big.Int
	Nonce       *big.Int
	MessageHash common.Hash
}

// FailedRelayedMessageEvent is emitted by the messenger on the destination chain when a message execution reverted.
type FailedRelayedMessageEvent struct {
	Envelope
	Source      *big.Int
	Nonce       *big.Int
	MessageHash common.Hash
}

func (*ExecutingMessageEvent) Kind() EventKind     { return KindExecutingMessage }
func (*SentMessageEvent) Kind() EventKind          { return KindSentMessage }
func (*RelayedMessageEvent) Kind() EventKind       { return KindRelayedMessage }
func (*FailedRelayedMessageEvent) Kind() EventKind { return KindFailedRelayedMessage }

func (*ExecutingMessageEvent) isEvent()     {}
func (*SentMessageEvent) isEvent()          {}
func (*RelayedMessageEvent) isEvent()       {}
func (*FailedRelayedMessageEvent) isEvent() {}
