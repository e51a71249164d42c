package interop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// sentMessageIndexedCount is the number of indexed SentMessage fields: destination, target, messageNonce.
const sentMessageIndexedCount = 3

// SentMessageTopics rebuilds the topics of the SentMessage log the source chain emitted for m.
// Topic 0 is the event signature, followed by destination, target and nonce as 32-byte words.
func SentMessageTopics(m Message) ([]common.Hash, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	indexed, err := abi.MakeTopics(
		[]interface{}{m.Destination},
		[]interface{}{m.Target},
		[]interface{}{m.Nonce},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: make topics: %v", ErrEncoding, err)
	}

	// A zero value can come back as an absent topic. Every topic of the emitted log is a full word,
	// so absent entries are replaced with the zero-padded encoding of the field.
	words := [sentMessageIndexedCount]common.Hash{
		uint256Word(m.Destination),
		common.BytesToHash(m.Target.Bytes()),
		uint256Word(m.Nonce),
	}

	topics := make([]common.Hash, 0, 1+sentMessageIndexedCount)
	topics = append(topics, SentMessageTopic)
	for i := 0; i < sentMessageIndexedCount; i++ {
		if i >= len(indexed) || len(indexed[i]) == 0 {
			topics = append(topics, words[i])
			continue
		}
		topics = append(topics, indexed[i][0])
	}

	return topics, nil
}

// EncodeSentMessageEvent returns the packed encoding of the SentMessage log for m: the four topics
// followed by abi.encode(sender, message). This is the byte string the CrossL2Inbox hashes into
// the msgHash of an ExecutingMessage.
func EncodeSentMessageEvent(m Message) ([]byte, error) {
	topics, err := SentMessageTopics(m)
	if err != nil {
		return nil, err
	}

	data, err := sentMessageData.Pack(m.Sender, m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: pack SentMessage data: %v", ErrEncoding, err)
	}

	if len(topics) != 1+sentMessageIndexedCount {
		return nil, fmt.Errorf("%w: expected %d topics, got %d", ErrEncoding, 1+sentMessageIndexedCount, len(topics))
	}

	return packLog(topics, data), nil
}

// PayloadHash is the hash a destination chain records when the SentMessage log for m is executed.
func PayloadHash(m Message) (common.Hash, error) {
	encoded, err := EncodeSentMessageEvent(m)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// PayloadHashFromLog hashes the packed topics and data of an arbitrary log.
func PayloadHashFromLog(topics []common.Hash, data []byte) common.Hash {
	return crypto.Keccak256Hash(packLog(topics, data))
}

// packLog is abi.encodePacked(bytes32[] topics, bytes data). Packed arrays carry no length prefix.
func packLog(topics []common.Hash, data []byte) []byte {
	out := make([]byte, 0, len(topics)*common.HashLength+len(data))
	for _, t := range topics {
		out = append(out, t.Bytes()...)
	}
	return append(out, data...)
}

// uint256Word must only be called on values that passed checkUint256.
func uint256Word(v *big.Int) common.Hash {
	u, _ := uint256.FromBig(v)
	return common.Hash(u.Bytes32())
}
