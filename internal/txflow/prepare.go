package txflow

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Preparer annotates a simulated call with gas and fee parameters,
// producing the unsigned transaction handed to the signer.
type Preparer struct {
	client             NodeClient
	oracle             *FeeOracle
	chainID            *big.Int
	gasLimitMultiplier float64
}

func NewPreparer(client NodeClient, oracle *FeeOracle, chainID *big.Int, gasLimitMultiplier float64) *Preparer {
	if gasLimitMultiplier <= 0 {
		gasLimitMultiplier = 1.2
	}
	return &Preparer{
		client:             client,
		oracle:             oracle,
		chainID:            new(big.Int).Set(chainID),
		gasLimitMultiplier: gasLimitMultiplier,
	}
}

func (p *Preparer) Prepare(ctx context.Context, call *UnsignedCall, sim SimulationResult) (*PreparedTx, error) {
	if p.client == nil {
		return nil, errors.New("node client is required")
	}
	if call == nil {
		return nil, errors.New("call is nil")
	}
	fees, err := p.fees(ctx, call.Request.FeeHint)
	if err != nil {
		return nil, &PreparationError{Err: err}
	}
	msg := call.callMsg()
	msg.GasFeeCap = fees.MaxFeePerGas
	msg.GasTipCap = fees.MaxPriorityFeePerGas
	gas, err := p.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, &PreparationError{Err: err}
	}
	gas = applyGasMultiplier(gas, p.gasLimitMultiplier)

	to := call.Request.Contract
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     call.Nonce,
		Gas:       gas,
		GasFeeCap: fees.MaxFeePerGas,
		GasTipCap: fees.MaxPriorityFeePerGas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      call.Data,
	})
	return &PreparedTx{
		Tx:        tx,
		Call:      call,
		GasLimit:  gas,
		Fees:      fees,
		Return:    sim.Return,
		ExpiresAt: call.ExpiresAt,
	}, nil
}

func (p *Preparer) ChainID() *big.Int {
	return new(big.Int).Set(p.chainID)
}

func (p *Preparer) fees(ctx context.Context, hint *FeeParams) (FeeParams, error) {
	if hint != nil {
		if hint.MaxFeePerGas == nil || hint.MaxPriorityFeePerGas == nil {
			return FeeParams{}, errors.New("fee hint is incomplete")
		}
		return *hint, nil
	}
	if p.oracle == nil {
		return FeeParams{}, errors.New("fee oracle is not configured")
	}
	return p.oracle.Fees(ctx)
}

func applyGasMultiplier(gas uint64, mult float64) uint64 {
	if mult <= 0 {
		return gas
	}
	adjusted := uint64(float64(gas) * mult)
	if adjusted < gas {
		return gas
	}
	return adjusted
}
