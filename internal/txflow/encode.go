package txflow

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Args is a pre-encoded argument list: one 32-byte word per value.
type Args [][]byte

// U256 encodes a non-negative integer argument.
func U256(v *big.Int) ([]byte, error) {
	if v == nil {
		return nil, errors.New("value is nil")
	}
	if v.Sign() < 0 {
		return nil, errors.New("value must be non-negative")
	}
	if v.BitLen() > 256 {
		return nil, errors.New("value does not fit in 256 bits")
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

// Addr encodes an address argument.
func Addr(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

// Bytes32 encodes a fixed 32-byte argument.
func Bytes32(v [32]byte) []byte {
	out := make([]byte, 32)
	copy(out, v[:])
	return out
}

// Selector derives the 4-byte method selector from a canonical
// signature such as "deposit(uint256)".
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// Calldata assembles selector plus argument words.
func Calldata(signature string, args Args) []byte {
	data := append([]byte{}, Selector(signature)...)
	for _, arg := range args {
		data = append(data, arg...)
	}
	return data
}

// DecodeHexBig parses a 0x-prefixed or bare hex quantity.
func DecodeHexBig(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("hex value is empty")
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		value = value[2:]
	}
	value = strings.TrimLeft(value, "0")
	if value == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(value, 16)
	if !ok {
		return nil, errors.New("invalid hex number")
	}
	return v, nil
}

// DecodeReturnBig interprets return bytes as an unsigned integer word.
func DecodeReturnBig(data []byte) *big.Int {
	if len(data) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(data)
}
