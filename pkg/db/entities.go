package db

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MessageStatus is the lifecycle state of a CrossChainMessage.
type MessageStatus string

const (
	StatusSent          MessageStatus = "SENT"
	StatusFailedRelayed MessageStatus = "FAILED_RELAYED"
	StatusRelayed       MessageStatus = "RELAYED"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusFailedRelayed, StatusRelayed:
		return true
	}
	return false
}

// EventName records which messenger event linked a transaction to a message.
type EventName string

const (
	EventSentMessage          EventName = "SentMessage"
	EventRelayedMessage       EventName = "RelayedMessage"
	EventFailedRelayedMessage EventName = "FailedRelayedMessage"
)

// Identifier points at a log entry on a specific chain. It is never modified after creation.
// The numeric fields are copied from an untrusted uint256 tuple and may exceed 64 bits.
type Identifier struct {
	ID          string         `json:"id"`
	ChainID     *big.Int       `json:"chainId"`
	Origin      common.Address `json:"origin"`
	BlockNumber *big.Int       `json:"blockNumber"`
	LogIndex    *big.Int       `json:"logIndex"`
	Timestamp   *big.Int       `json:"timestamp"`
}

// ExecutingMessage is one observed attempt to execute a message on the destination chain.
// ID is the log occurrence id, so the same payload hash may appear several times in a block.
type ExecutingMessage struct {
	ID                 string      `json:"id" db:"id"`
	BlockHash          common.Hash `json:"blockHash" db:"block_hash"`
	BlockNumber        uint64      `json:"blockNumber" db:"block_number"`
	LogIndex           uint64      `json:"logIndex" db:"log_index"`
	ChainID            uint64      `json:"chainId" db:"chain_id"`
	MessagePayloadHash common.Hash `json:"messagePayloadHash" db:"message_payload_hash"`
	IdentifierID       string      `json:"identifierId" db:"identifier_id"`
	TransactionID      common.Hash `json:"transactionId" db:"transaction_id"`
}

// CrossChainMessage is keyed by its message hash. Only Status and LastUpdatedAt change after creation.
type CrossChainMessage struct {
	MessageHash        common.Hash    `json:"messageHash"`
	SourceChainID      *big.Int       `json:"sourceChainId"`
	DestinationChainID *big.Int       `json:"destinationChainId"`
	Target             common.Address `json:"target"`
	Nonce              *big.Int       `json:"messageNonce"`
	Sender             common.Address `json:"sender"`
	Payload            hexutil.Bytes  `json:"message"`
	Status             MessageStatus  `json:"status"`
	LastUpdatedAt      uint64         `json:"lastUpdatedAt"`
}

// Transaction is the envelope of an on-chain transaction. The hash determines the content.
type Transaction struct {
	Hash      common.Hash     `json:"hash"`
	Timestamp uint64          `json:"timestamp"`
	ChainID   uint64          `json:"chainId"`
	From      common.Address  `json:"from"`
	To        *common.Address `json:"to,omitempty"`
	Value     *big.Int        `json:"value"`
	Data      hexutil.Bytes   `json:"data"`
}

// MessageTransactionLink records one event occurrence of a message within a transaction.
// ExecutingMessageID is empty for SentMessage links.
type MessageTransactionLink struct {
	ID                 string      `json:"id" db:"id"`
	EventName          EventName   `json:"eventName" db:"event_name"`
	MessageHash        common.Hash `json:"messageId" db:"message_id"`
	TransactionID      common.Hash `json:"transactionId" db:"transaction_id"`
	ExecutingMessageID string      `json:"executingMessageId,omitempty" db:"executing_message_id"`
}

// IdentifierID returns the `${chainId}-${blockNumber}-${logIndex}` key of an Identifier, with every
// component in full decimal.
func IdentifierID(chainID, blockNumber, logIndex *big.Int) string {
	return fmt.Sprintf("%s-%s-%s", chainID.String(), blockNumber.String(), logIndex.String())
}

// LinkID returns the `${messageHash}-${transactionHash}` key of a MessageTransactionLink.
func LinkID(messageHash, txHash common.Hash) string {
	return fmt.Sprintf("%s-%s", messageHash.Hex(), txHash.Hex())
}

// LogID returns the globally unique id of a log occurrence, `${blockHash}-${logIndex}` with the
// log index in hex.
func LogID(blockHash common.Hash, logIndex uint64) string {
	return fmt.Sprintf("%s-%s", blockHash.Hex(), hexutil.EncodeUint64(logIndex))
}
