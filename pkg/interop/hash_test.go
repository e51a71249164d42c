package interop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		Source:      big.NewInt(901),
		Destination: big.NewInt(902),
		Nonce:       big.NewInt(0),
		Sender:      common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Target:      common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		Payload:     []byte{0xde, 0xad, 0xbe, 0xef, 0x01},
	}
}

func word(v uint64) []byte {
	return common.BigToHash(new(big.Int).SetUint64(v)).Bytes()
}

func padRight(b []byte) []byte {
	n := (len(b) + 31) / 32 * 32
	out := make([]byte, n)
	copy(out, b)
	return out
}

func TestMessageHashMatchesManualTupleEncoding(t *testing.T) {
	m := testMessage()

	var expected []byte
	expected = append(expected, word(902)...)
	expected = append(expected, word(901)...)
	expected = append(expected, word(0)...)
	expected = append(expected, common.LeftPadBytes(m.Sender.Bytes(), 32)...)
	expected = append(expected, common.LeftPadBytes(m.Target.Bytes(), 32)...)
	// offset of the dynamic bytes field: six head words
	expected = append(expected, word(6*32)...)
	expected = append(expected, word(uint64(len(m.Payload)))...)
	expected = append(expected, padRight(m.Payload)...)

	hash, err := MessageHash(m)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(expected), hash)
}

func TestMessageHashIsDeterministic(t *testing.T) {
	first, err := MessageHash(testMessage())
	require.NoError(t, err)
	second, err := MessageHash(testMessage())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMessageHashChangesWithEveryField(t *testing.T) {
	base, err := MessageHash(testMessage())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(m *Message)
	}{
		{"source", func(m *Message) { m.Source = big.NewInt(903) }},
		{"destination", func(m *Message) { m.Destination = big.NewInt(903) }},
		{"nonce", func(m *Message) { m.Nonce = big.NewInt(1) }},
		{"sender", func(m *Message) { m.Sender = common.HexToAddress("0x01") }},
		{"target", func(m *Message) { m.Target = common.HexToAddress("0x02") }},
		{"payload", func(m *Message) { m.Payload = []byte{0xde, 0xad} }},
		{"empty payload", func(m *Message) { m.Payload = nil }},
		{"swapped chains", func(m *Message) { m.Source, m.Destination = m.Destination, m.Source }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := testMessage()
			tc.mutate(&m)
			hash, err := MessageHash(m)
			require.NoError(t, err)
			assert.NotEqual(t, base, hash)
		})
	}
}

func TestMessageHashRejectsInvalidIntegers(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)

	tests := []struct {
		name   string
		mutate func(m *Message)
	}{
		{"nil source", func(m *Message) { m.Source = nil }},
		{"nil destination", func(m *Message) { m.Destination = nil }},
		{"nil nonce", func(m *Message) { m.Nonce = nil }},
		{"negative nonce", func(m *Message) { m.Nonce = big.NewInt(-1) }},
		{"nonce overflow", func(m *Message) { m.Nonce = tooBig }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := testMessage()
			tc.mutate(&m)
			_, err := MessageHash(m)
			assert.ErrorIs(t, err, ErrEncoding)
		})
	}
}

// Digests of testMessage computed with an independent keccak256 implementation.
func TestFixedVectors(t *testing.T) {
	messageHash, err := MessageHash(testMessage())
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xba6f79e963554142bb28d84f46d0210db9026d14d1c8012e9b17dae8ac106a69"), messageHash)

	payloadHash, err := PayloadHash(testMessage())
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xb1cefc8c283bf2e474ec5657962d46fac27a0aae905bb693e2058ff7eb935c73"), payloadHash)

	assert.Equal(t, common.HexToHash("0x382409ac69001e11931a28435afef442cbfd20d9891907e8fa373ba7d351f320"), SentMessageTopic)
	assert.Equal(t, common.HexToHash("0x5948076590932b9d173029c7df03fe386e755a61c86c7fe2671011a2faa2a379"), RelayedMessageTopic)
	assert.Equal(t, common.HexToHash("0x5c37832d2e8d10e346e55ad62071a6a2f9fa5130614ef2ec6617555c6f467ba7"), ExecutingMessageTopic)
}
