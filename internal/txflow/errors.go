package txflow

import (
	"github.com/ethereum/go-ethereum/common"
)

// AccountLookupError reports that the caller identity is unknown to the
// network or its sequence state could not be fetched.
type AccountLookupError struct {
	Account common.Address
	Err     error
}

func (e *AccountLookupError) Error() string {
	if e == nil || e.Err == nil {
		return "account lookup failed"
	}
	return "account lookup failed for " + e.Account.Hex() + ": " + e.Err.Error()
}

func (e *AccountLookupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SimulationError carries the node-provided diagnostic from a failed dry
// run, including contract-level revert reasons.
type SimulationError struct {
	Diagnostic string
	Err        error
}

func (e *SimulationError) Error() string {
	if e == nil {
		return "simulation failed"
	}
	if e.Diagnostic != "" {
		return "simulation failed: " + e.Diagnostic
	}
	if e.Err != nil {
		return "simulation failed: " + e.Err.Error()
	}
	return "simulation failed"
}

func (e *SimulationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PreparationError reports that the node rejected resource estimation.
type PreparationError struct {
	Err error
}

func (e *PreparationError) Error() string {
	if e == nil || e.Err == nil {
		return "preparation failed"
	}
	return "preparation failed: " + e.Err.Error()
}

func (e *PreparationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WalletUnavailableError means no signing capability is connected.
type WalletUnavailableError struct{}

func (e *WalletUnavailableError) Error() string {
	return "no wallet connected"
}

// SubmissionError reports a send or finalization failure, including
// duplicate and timeout cases.
type SubmissionError struct {
	Hash       common.Hash
	Status     Status
	Diagnostic string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e == nil {
		return "submission failed"
	}
	msg := "submission failed"
	if e.Status != "" {
		msg = "submission " + string(e.Status)
	}
	if e.Diagnostic != "" {
		return msg + ": " + e.Diagnostic
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
