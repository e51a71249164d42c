package ingest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/interop-labs/interop-indexer/pkg/interop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	target = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	origin = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	sourceBlock = common.HexToHash("0xa1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1")
	destBlock   = common.HexToHash("0xb2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2")
	tx1         = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	tx2         = common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
)

func testMessage(nonce int64) interop.Message {
	return interop.Message{
		Source:      big.NewInt(901),
		Destination: big.NewInt(902),
		Nonce:       big.NewInt(nonce),
		Sender:      sender,
		Target:      target,
		Payload:     []byte{0xde, 0xad, 0xbe, 0xef, 0x01},
	}
}

func uintWord(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

// sentMessageLog is the log the messenger on the source chain emits for m.
func sentMessageLog(t *testing.T, m interop.Message, blockNumber uint64, logIndex uint) types.Log {
	t.Helper()
	topics, err := interop.SentMessageTopics(m)
	require.NoError(t, err)
	data, err := interop.MessengerABI.Events["SentMessage"].Inputs.NonIndexed().Pack(m.Sender, m.Payload)
	require.NoError(t, err)
	return types.Log{
		Address:     interop.MessengerAddress,
		Topics:      topics,
		Data:        data,
		BlockNumber: blockNumber,
		BlockHash:   sourceBlock,
		TxHash:      tx1,
		Index:       logIndex,
	}
}

// executingMessageLog is the log the inbox on the destination chain emits when it executes the given source log.
func executingMessageLog(payloadHash common.Hash, id IdentifierFields, blockNumber uint64, logIndex uint) types.Log {
	data := make([]byte, 0, executingMessageWords*wordSize)
	data = append(data, common.BytesToHash(id.Origin.Bytes()).Bytes()...)
	for _, v := range []*big.Int{id.BlockNumber, id.LogIndex, id.Timestamp, id.ChainID} {
		data = append(data, common.BigToHash(v).Bytes()...)
	}
	return types.Log{
		Address:     interop.InboxAddress,
		Topics:      []common.Hash{interop.ExecutingMessageTopic, payloadHash},
		Data:        data,
		BlockNumber: blockNumber,
		BlockHash:   destBlock,
		TxHash:      tx2,
		Index:       logIndex,
	}
}

func relayLog(topic common.Hash, source uint64, nonce uint64, messageHash common.Hash, blockNumber uint64, logIndex uint) types.Log {
	return types.Log{
		Address:     interop.MessengerAddress,
		Topics:      []common.Hash{topic, uintWord(source), uintWord(nonce), messageHash},
		BlockNumber: blockNumber,
		BlockHash:   destBlock,
		TxHash:      tx2,
		Index:       logIndex,
	}
}

func testIdentifier(origin common.Address, blockNumber, logIndex, timestamp, chainID int64) IdentifierFields {
	return IdentifierFields{
		Origin:      origin,
		BlockNumber: big.NewInt(blockNumber),
		LogIndex:    big.NewInt(logIndex),
		Timestamp:   big.NewInt(timestamp),
		ChainID:     big.NewInt(chainID),
	}
}

func assertIdentifier(t *testing.T, expected, actual IdentifierFields) {
	t.Helper()
	assert.Equal(t, expected.Origin, actual.Origin)
	assert.Equal(t, expected.BlockNumber.String(), actual.BlockNumber.String())
	assert.Equal(t, expected.LogIndex.String(), actual.LogIndex.String())
	assert.Equal(t, expected.Timestamp.String(), actual.Timestamp.String())
	assert.Equal(t, expected.ChainID.String(), actual.ChainID.String())
}

func newTestDecoder() *Decoder {
	return NewDecoder(interop.MessengerAddress, interop.InboxAddress)
}

func TestDecodeSentMessage(t *testing.T) {
	for _, nonce := range []int64{0, 1, 1 << 40} {
		m := testMessage(nonce)
		l := sentMessageLog(t, m, 10, 2)

		ev, err := newTestDecoder().Decode(901, l, 1700000000, Transaction{Hash: tx1, From: origin})
		require.NoError(t, err)
		require.Equal(t, KindSentMessage, ev.Kind())

		sent := ev.(*SentMessageEvent)
		assert.Equal(t, uint64(901), sent.ChainID)
		assert.Equal(t, uint64(10), sent.Block.Number)
		assert.Equal(t, sourceBlock, sent.Block.Hash)
		assert.Equal(t, uint64(1700000000), sent.Block.Timestamp)
		assert.Equal(t, uint64(2), sent.LogIndex)
		assert.Equal(t, origin, sent.Tx.From)
		assert.Equal(t, 0, sent.Destination.Cmp(big.NewInt(902)))
		assert.Equal(t, 0, sent.Nonce.Cmp(big.NewInt(nonce)))
		assert.Equal(t, target, sent.Target)
		assert.Equal(t, sender, sent.Sender)
		assert.Equal(t, m.Payload, sent.Message)
	}
}

func TestDecodeExecutingMessage(t *testing.T) {
	id := testIdentifier(interop.MessengerAddress, 10, 2, 1700000000, 901)
	payloadHash := common.HexToHash("0x1234")
	l := executingMessageLog(payloadHash, id, 20, 5)

	ev, err := newTestDecoder().Decode(902, l, 1700000100, Transaction{Hash: tx2})
	require.NoError(t, err)
	require.Equal(t, KindExecutingMessage, ev.Kind())

	exec := ev.(*ExecutingMessageEvent)
	assert.Equal(t, payloadHash, exec.PayloadHash)
	assertIdentifier(t, id, exec.Identifier)
	assert.Equal(t, uint64(902), exec.ChainID)
	assert.Equal(t, uint64(5), exec.LogIndex)
}

func TestDecodeExecutingMessageWideIdentifier(t *testing.T) {
	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	id := IdentifierFields{
		Origin:      origin,
		BlockNumber: new(big.Int).Lsh(big.NewInt(1), 64),
		LogIndex:    new(big.Int).Lsh(big.NewInt(1), 64),
		Timestamp:   maxWord,
		ChainID:     new(big.Int).Lsh(big.NewInt(1), 128),
	}
	l := executingMessageLog(common.HexToHash("0x1234"), id, 20, 5)

	ev, err := newTestDecoder().Decode(902, l, 1700000100, Transaction{Hash: tx2})
	require.NoError(t, err)
	assertIdentifier(t, id, ev.(*ExecutingMessageEvent).Identifier)
}

func TestDecodeRelayOutcomes(t *testing.T) {
	messageHash := common.HexToHash("0xabcd")

	ev, err := newTestDecoder().Decode(902, relayLog(interop.RelayedMessageTopic, 901, 3, messageHash, 20, 6), 1, Transaction{})
	require.NoError(t, err)
	relayed, ok := ev.(*RelayedMessageEvent)
	require.True(t, ok)
	assert.Equal(t, messageHash, relayed.MessageHash)
	assert.Equal(t, int64(901), relayed.Source.Int64())
	assert.Equal(t, int64(3), relayed.Nonce.Int64())
	// The log's transaction hash fills an empty transaction.
	assert.Equal(t, tx2, relayed.Tx.Hash)

	ev, err = newTestDecoder().Decode(902, relayLog(interop.FailedRelayedMessageTopic, 901, 3, messageHash, 20, 6), 1, Transaction{})
	require.NoError(t, err)
	assert.Equal(t, KindFailedRelayedMessage, ev.Kind())
	assert.Equal(t, messageHash, ev.(*FailedRelayedMessageEvent).MessageHash)
}

func TestDecodeSkipsUnrelatedLogs(t *testing.T) {
	d := newTestDecoder()

	// Right event, wrong contract.
	l := sentMessageLog(t, testMessage(1), 10, 2)
	l.Address = common.HexToAddress("0x01")
	_, err := d.Decode(901, l, 1, Transaction{})
	assert.ErrorIs(t, err, ErrUnknownLog)

	// Messenger event emitted from the inbox address.
	l = sentMessageLog(t, testMessage(1), 10, 2)
	l.Address = interop.InboxAddress
	_, err = d.Decode(901, l, 1, Transaction{})
	assert.ErrorIs(t, err, ErrUnknownLog)

	_, err = d.Decode(901, types.Log{Address: interop.MessengerAddress}, 1, Transaction{})
	assert.ErrorIs(t, err, ErrUnknownLog)

	l = sentMessageLog(t, testMessage(1), 10, 2)
	l.Removed = true
	_, err = d.Decode(901, l, 1, Transaction{})
	assert.ErrorIs(t, err, ErrRemovedLog)
}

func TestDecodeMalformedLogs(t *testing.T) {
	d := newTestDecoder()
	id := testIdentifier(origin, 1, 1, 1, 901)

	tests := []struct {
		name   string
		mutate func(l *types.Log)
		base   func() types.Log
		tx     Transaction
	}{
		{
			name:   "executing message short data",
			base:   func() types.Log { return executingMessageLog(common.Hash{}, id, 1, 1) },
			mutate: func(l *types.Log) { l.Data = l.Data[:4*wordSize] },
		},
		{
			name:   "executing message dirty origin",
			base:   func() types.Log { return executingMessageLog(common.Hash{}, id, 1, 1) },
			mutate: func(l *types.Log) { l.Data[0] = 0x01 },
		},
		{
			name:   "executing message missing topic",
			base:   func() types.Log { return executingMessageLog(common.Hash{}, id, 1, 1) },
			mutate: func(l *types.Log) { l.Topics = l.Topics[:1] },
		},
		{
			name:   "sent message missing nonce topic",
			base:   func() types.Log { return sentMessageLog(t, testMessage(0), 1, 1) },
			mutate: func(l *types.Log) { l.Topics = l.Topics[:3] },
		},
		{
			name:   "sent message truncated data",
			base:   func() types.Log { return sentMessageLog(t, testMessage(0), 1, 1) },
			mutate: func(l *types.Log) { l.Data = l.Data[:40] },
		},
		{
			name:   "relayed message missing hash",
			base:   func() types.Log { return relayLog(interop.RelayedMessageTopic, 901, 1, common.Hash{}, 1, 1) },
			mutate: func(l *types.Log) { l.Topics = l.Topics[:3] },
		},
		{
			name:   "transaction mismatch",
			base:   func() types.Log { return relayLog(interop.RelayedMessageTopic, 901, 1, common.Hash{}, 1, 1) },
			mutate: func(l *types.Log) { l.TxHash = tx1 },
			tx:     Transaction{Hash: tx2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := tc.base()
			tc.mutate(&l)
			_, err := d.Decode(902, l, 1, tc.tx)
			assert.ErrorIs(t, err, ErrMalformedLog)
		})
	}
}

func TestZeroNonceTopicIsFullWord(t *testing.T) {
	l := sentMessageLog(t, testMessage(0), 10, 2)
	require.Len(t, l.Topics, 4)
	assert.Equal(t, common.Hash{}, l.Topics[3])

	// The payload hash the inbox records for this log matches the one recomputed from the message fields.
	fromLog := interop.PayloadHashFromLog(l.Topics, l.Data)
	fromFields, err := interop.PayloadHash(testMessage(0))
	require.NoError(t, err)
	assert.Equal(t, fromLog, fromFields)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "ExecutingMessage", KindExecutingMessage.String())
	assert.Equal(t, "SentMessage", KindSentMessage.String())
	assert.Equal(t, "RelayedMessage", KindRelayedMessage.String())
	assert.Equal(t, "FailedRelayedMessage", KindFailedRelayedMessage.String())
	assert.Equal(t, "EventKind(9)", EventKind(9).String())
}
