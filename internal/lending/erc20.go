package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"remitlend/internal/txflow"
)

// RPCCaller is the raw JSON-RPC surface used for token reads.
// *rpc.Client satisfies it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

func readBalanceOf(ctx context.Context, caller RPCCaller, token, owner common.Address) (*big.Int, error) {
	return readWord(ctx, caller, token, txflow.Calldata("balanceOf(address)", txflow.Args{txflow.Addr(owner)}))
}

func readAllowance(ctx context.Context, caller RPCCaller, token, owner, spender common.Address) (*big.Int, error) {
	args := txflow.Args{txflow.Addr(owner), txflow.Addr(spender)}
	return readWord(ctx, caller, token, txflow.Calldata("allowance(address,address)", args))
}

func readDecimals(ctx context.Context, caller RPCCaller, token common.Address) (uint8, error) {
	v, err := readWord(ctx, caller, token, txflow.Calldata("decimals()", nil))
	if err != nil {
		return 0, err
	}
	if v.Sign() < 0 || v.BitLen() > 8 {
		return 0, fmt.Errorf("decimals out of range: %s", v.String())
	}
	return uint8(v.Uint64()), nil
}

func readWord(ctx context.Context, caller RPCCaller, to common.Address, data []byte) (*big.Int, error) {
	if caller == nil {
		return nil, errors.New("rpc caller is nil")
	}
	call := map[string]string{
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}
	var out string
	if err := caller.CallContext(ctx, &out, "eth_call", call, "latest"); err != nil {
		return nil, err
	}
	return txflow.DecodeHexBig(out)
}

// ParseUnits converts a decimal string to an integer amount in the
// token's smallest unit.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, errors.New("amount is empty")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, errors.New("amount must be non-negative")
	}
	parts := strings.SplitN(amount, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > int(decimals) {
		return nil, fmt.Errorf("too many decimal places: %d > %d", len(fracPart), decimals)
	}
	fracPart = fracPart + strings.Repeat("0", int(decimals)-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, errors.New("invalid number format")
	}
	return v, nil
}
