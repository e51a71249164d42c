package interop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrEncoding is returned when the topics or data of a message cannot be produced.
// It is fatal for the event being processed.
var ErrEncoding = errors.New("interop: encoding failure")

// Message holds the fields that identify a cross-chain message independently of the chain it is viewed from.
type Message struct {
	Source      *big.Int
	Destination *big.Int
	Nonce       *big.Int
	Sender      common.Address
	Target      common.Address
	Payload     []byte
}

func (m *Message) validate() error {
	if err := checkUint256("source", m.Source); err != nil {
		return err
	}
	if err := checkUint256("destination", m.Destination); err != nil {
		return err
	}
	return checkUint256("nonce", m.Nonce)
}

func checkUint256(field string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is nil", ErrEncoding, field)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrEncoding, field)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("%w: %s does not fit in 256 bits", ErrEncoding, field)
	}
	return nil
}
