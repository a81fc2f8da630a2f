package activity

import (
	"encoding/hex"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Decoder turns raw logs from the platform contracts into feed events.
// The ABI is optional: without one, events are reported with their raw
// topics only.
type Decoder struct {
	hasABI bool
	abi    abi.ABI
}

func NewDecoder(abiPath string) (*Decoder, error) {
	d := &Decoder{}
	if abiPath == "" {
		return d, nil
	}
	b, err := os.ReadFile(abiPath)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(string(b)))
	if err != nil {
		return nil, err
	}
	d.abi = parsed
	d.hasABI = true
	return d, nil
}

func (d *Decoder) Decode(l types.Log) Event {
	ev := Event{
		Block:    l.BlockNumber,
		TxHash:   l.TxHash.Hex(),
		Contract: l.Address.Hex(),
		Topics:   topicsToHex(l.Topics),
	}
	if !d.hasABI || len(l.Topics) == 0 {
		return ev
	}
	for _, candidate := range d.abi.Events {
		if candidate.ID != l.Topics[0] {
			continue
		}
		args := map[string]interface{}{}
		if err := candidate.Inputs.UnpackIntoMap(args, l.Data); err != nil {
			break
		}
		if err := abi.ParseTopicsIntoMap(args, indexedInputs(candidate), l.Topics[1:]); err != nil {
			break
		}
		ev.Name = candidate.Name
		ev.Args = normalizeMap(args)
		break
	}
	return ev
}

func indexedInputs(event abi.Event) abi.Arguments {
	out := make(abi.Arguments, 0, len(event.Inputs))
	for _, in := range event.Inputs {
		if in.Indexed {
			out = append(out, in)
		}
	}
	return out
}

func topicsToHex(topics []common.Hash) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, t.Hex())
	}
	return out
}

func normalizeMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case *big.Int:
		if t == nil {
			return "0"
		}
		return t.String()
	case []byte:
		return "0x" + hex.EncodeToString(t)
	case [32]byte:
		return "0x" + hex.EncodeToString(t[:])
	default:
		return t
	}
}
