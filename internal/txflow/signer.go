package txflow

import (
	"context"
	"math/big"
)

// Signer is the externally supplied signing capability. It receives the
// RLP encoding of an unsigned transaction together with the network
// context and returns the signed encoding. The pipeline performs no key
// handling itself.
type Signer interface {
	SignTransaction(ctx context.Context, rawTx []byte, chainID *big.Int) ([]byte, error)
}

// SignerFunc adapts a function to the Signer capability.
type SignerFunc func(ctx context.Context, rawTx []byte, chainID *big.Int) ([]byte, error)

func (f SignerFunc) SignTransaction(ctx context.Context, rawTx []byte, chainID *big.Int) ([]byte, error) {
	return f(ctx, rawTx, chainID)
}
