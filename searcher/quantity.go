package searcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrQuantityOverflow = errors.New("quantity overflows target width")
	ErrInvalidAddress   = errors.New("expected a hexadecimal address string")
)

// parseQuantity decodes a JSON number, a decimal string or a 0x-prefixed hex string.
// The literal "0x" is zero.
func parseQuantity(data []byte) (*uint256.Int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrInvalidQuantity
	}

	var text string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, err
		}
	} else {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return nil, err
		}
		text = num.String()
	}

	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text = text[2:]
		if text == "" {
			return new(uint256.Int), nil
		}
		base = 16
	}

	value, ok := new(big.Int).SetString(text, base)
	if !ok || value.Sign() < 0 {
		return nil, ErrInvalidQuantity
	}
	result, overflow := uint256.FromBig(value)
	if overflow {
		return nil, ErrQuantityOverflow
	}
	return result, nil
}

// Quantity is a 64-bit value tolerant to the number encodings relays use.
type Quantity uint64

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(q))
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	value, err := parseQuantity(data)
	if err != nil {
		return err
	}
	if !value.IsUint64() {
		return ErrQuantityOverflow
	}
	*q = Quantity(value.Uint64())
	return nil
}

// BigQuantity is a 256-bit value tolerant to the number encodings relays use.
type BigQuantity uint256.Int

// NewBigQuantity is a convenience for tests and literals.
func NewBigQuantity(v uint64) BigQuantity {
	return BigQuantity(*uint256.NewInt(v))
}

func (q *BigQuantity) Int() *uint256.Int {
	return (*uint256.Int)(q)
}

func (q *BigQuantity) ToBig() *big.Int {
	return q.Int().ToBig()
}

func (q *BigQuantity) String() string {
	return q.Int().ToBig().String()
}

func (q BigQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

func (q *BigQuantity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	value, err := parseQuantity(data)
	if err != nil {
		return err
	}
	*q = BigQuantity(*value)
	return nil
}

// decodeOptionalAddress treats "0x" as no address, which is how relays report contract creation.
func decodeOptionalAddress(data []byte) (*common.Address, error) {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return nil, ErrInvalidAddress
	}
	if text == "0x" {
		return nil, nil
	}
	if !common.IsHexAddress(text) {
		return nil, ErrInvalidAddress
	}
	address := common.HexToAddress(text)
	return &address, nil
}
