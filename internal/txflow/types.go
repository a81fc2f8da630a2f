package txflow

import (
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is the terminal state of a submission.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// CallRequest describes one contract invocation. A request is built fresh
// for every attempt; it is never reused because the prepared transaction
// derived from it is time-boxed and single-use.
type CallRequest struct {
	Contract common.Address
	// Method is the canonical signature, e.g. "deposit(uint256)".
	Method string
	Args   Args
	Caller common.Address
	// FeeHint, when set, bypasses the fee oracle.
	FeeHint *FeeParams
}

type FeeParams struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// UnsignedCall is a built but not yet simulated invocation.
type UnsignedCall struct {
	Request   CallRequest
	Nonce     uint64
	Data      []byte
	ExpiresAt time.Time
}

func (u *UnsignedCall) callMsg() ethereum.CallMsg {
	to := u.Request.Contract
	return ethereum.CallMsg{
		From: u.Request.Caller,
		To:   &to,
		Data: u.Data,
	}
}

// SimulationResult holds the raw return bytes of a dry run. It is
// discarded once decoded by the caller.
type SimulationResult struct {
	Return []byte
}

// PreparedTx is an unsigned transaction annotated with gas and fee data.
// It expires with its call's window and may be submitted at most once.
type PreparedTx struct {
	Tx        *types.Transaction
	Call      *UnsignedCall
	GasLimit  uint64
	Fees      FeeParams
	Return    []byte
	ExpiresAt time.Time

	consumed atomic.Bool
}

// consume marks the transaction used. Returns false if it already was.
func (p *PreparedTx) consume() bool {
	return p.consumed.CompareAndSwap(false, true)
}

// Encoded returns the RLP encoding handed to the signing capability.
func (p *PreparedTx) Encoded() ([]byte, error) {
	return p.Tx.MarshalBinary()
}

// SubmissionOutcome is what the caller gets back once a send reaches a
// terminal state (or the bounded wait runs out). Not persisted.
type SubmissionOutcome struct {
	Hash        common.Hash
	Status      Status
	GasUsed     uint64
	BlockNumber uint64
	// Return carries the simulation's decoded return bytes; execution
	// records on the wire do not expose return data.
	Return []byte
	// Duplicate is set when the node reported the transaction as
	// already known and the outcome was resolved from the existing
	// record.
	Duplicate bool
	// Polls is the number of receipt fetches it took to reach this
	// outcome, including the final fetch after an exhausted wait.
	Polls int
}
