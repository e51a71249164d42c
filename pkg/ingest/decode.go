package ingest

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/interop-labs/interop-indexer/pkg/interop"
)

var (
	// ErrUnknownLog is returned for logs that are not one of the indexed events. Callers skip them.
	ErrUnknownLog = errors.New("ingest: log is not an indexed event")
	// ErrRemovedLog is returned for logs dropped by a reorg.
	ErrRemovedLog = errors.New("ingest: log was removed")
	// ErrMalformedLog is returned when an indexed event has the wrong shape.
	ErrMalformedLog = errors.New("ingest: malformed log")
)

const wordSize = 32

// executingMessageWords is the size of the static (origin, blockNumber, logIndex, timestamp, chainId) tuple.
const executingMessageWords = 5

// Decoder turns raw logs of the messenger and inbox predeploys into typed events.
type Decoder struct {
	messenger common.Address
	inbox     common.Address
}

func NewDecoder(messenger common.Address, inbox common.Address) *Decoder {
	return &Decoder{messenger: messenger, inbox: inbox}
}

// Decode builds the event for l, emitted on chainID in a block with the given timestamp by tx.
func (d *Decoder) Decode(chainID uint64, l types.Log, blockTimestamp uint64, tx Transaction) (Event, error) {
	if l.Removed {
		return nil, ErrRemovedLog
	}
	if len(l.Topics) == 0 {
		return nil, ErrUnknownLog
	}

	env := Envelope{
		ChainID: chainID,
		Block: Block{
			Number:    l.BlockNumber,
			Hash:      l.BlockHash,
			Timestamp: blockTimestamp,
		},
		LogIndex: uint64(l.Index),
		Tx:       tx,
	}
	if env.Tx.Hash == (common.Hash{}) {
		env.Tx.Hash = l.TxHash
	}
	if env.Tx.Hash != l.TxHash {
		return nil, fmt.Errorf("%w: transaction %s does not match log transaction %s", ErrMalformedLog, env.Tx.Hash, l.TxHash)
	}

	switch {
	case l.Address == d.inbox && l.Topics[0] == interop.ExecutingMessageTopic:
		return decodeExecutingMessage(env, l)
	case l.Address == d.messenger && l.Topics[0] == interop.SentMessageTopic:
		return decodeSentMessage(env, l)
	case l.Address == d.messenger && l.Topics[0] == interop.RelayedMessageTopic:
		source, nonce, messageHash, err := decodeRelayTopics(l)
		if err != nil {
			return nil, err
		}
		return &RelayedMessageEvent{Envelope: env, Source: source, Nonce: nonce, MessageHash: messageHash}, nil
	case l.Address == d.messenger && l.Topics[0] == interop.FailedRelayedMessageTopic:
		source, nonce, messageHash, err := decodeRelayTopics(l)
		if err != nil {
			return nil, err
		}
		return &FailedRelayedMessageEvent{Envelope: env, Source: source, Nonce: nonce, MessageHash: messageHash}, nil
	}

	return nil, ErrUnknownLog
}

func decodeExecutingMessage(env Envelope, l types.Log) (*ExecutingMessageEvent, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("%w: ExecutingMessage has %d topics", ErrMalformedLog, len(l.Topics))
	}
	if len(l.Data) != executingMessageWords*wordSize {
		return nil, fmt.Errorf("%w: ExecutingMessage data is %d bytes", ErrMalformedLog, len(l.Data))
	}

	origin, err := addressWord(l.Data[0:wordSize])
	if err != nil {
		return nil, fmt.Errorf("identifier origin: %w", err)
	}
	var fields [executingMessageWords - 1]*big.Int
	for i := range fields {
		start := (i + 1) * wordSize
		fields[i] = bigWord(common.BytesToHash(l.Data[start : start+wordSize]))
	}

	return &ExecutingMessageEvent{
		Envelope:    env,
		PayloadHash: l.Topics[1],
		Identifier: IdentifierFields{
			Origin:      origin,
			BlockNumber: fields[0],
			LogIndex:    fields[1],
			Timestamp:   fields[2],
			ChainID:     fields[3],
		},
	}, nil
}

func decodeSentMessage(env Envelope, l types.Log) (*SentMessageEvent, error) {
	if len(l.Topics) != 4 {
		return nil, fmt.Errorf("%w: SentMessage has %d topics", ErrMalformedLog, len(l.Topics))
	}
	target, err := addressWord(l.Topics[2].Bytes())
	if err != nil {
		return nil, fmt.Errorf("SentMessage target: %w", err)
	}

	values, err := interop.MessengerABI.Events["SentMessage"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: SentMessage data: %v", ErrMalformedLog, err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: SentMessage data has %d values", ErrMalformedLog, len(values))
	}
	sender, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: SentMessage sender is %T", ErrMalformedLog, values[0])
	}
	message, ok := values[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: SentMessage message is %T", ErrMalformedLog, values[1])
	}

	return &SentMessageEvent{
		Envelope:    env,
		Destination: bigWord(l.Topics[1]),
		Target:      target,
		Nonce:       bigWord(l.Topics[3]),
		Sender:      sender,
		Message:     message,
	}, nil
}

func decodeRelayTopics(l types.Log) (source *big.Int, nonce *big.Int, messageHash common.Hash, err error) {
	if len(l.Topics) != 4 {
		return nil, nil, common.Hash{}, fmt.Errorf("%w: relay outcome has %d topics", ErrMalformedLog, len(l.Topics))
	}
	return bigWord(l.Topics[1]), bigWord(l.Topics[2]), l.Topics[3], nil
}

func bigWord(h common.Hash) *big.Int {
	return new(uint256.Int).SetBytes32(h.Bytes()).ToBig()
}

// addressWord reads a left-padded address and rejects dirty upper bytes.
func addressWord(b []byte) (common.Address, error) {
	for _, c := range b[:wordSize-common.AddressLength] {
		if c != 0 {
			return common.Address{}, fmt.Errorf("%w: address word has dirty upper bytes", ErrMalformedLog)
		}
	}
	return common.BytesToAddress(b[wordSize-common.AddressLength:]), nil
}
