package interop

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	// ABI arguments layout: (uint256 destination, uint256 source, uint256 nonce, address sender, address target, bytes message)
	messageHashArgs = abi.Arguments{
		{Type: uint256Type},
		{Type: uint256Type},
		{Type: uint256Type},
		{Type: addressType},
		{Type: addressType},
		{Type: bytesType},
	}
)

// MessageHash returns the chain independent identity of a cross-chain message. The destination
// precedes the source in the encoded tuple, matching the messenger contract.
func MessageHash(m Message) (common.Hash, error) {
	if err := m.validate(); err != nil {
		return common.Hash{}, err
	}

	encoded, err := messageHashArgs.Pack(m.Destination, m.Source, m.Nonce, m.Sender, m.Target, m.Payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack message hash args: %v", ErrEncoding, err)
	}

	return crypto.Keccak256Hash(encoded), nil
}
