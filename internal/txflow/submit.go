package txflow

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Submitter sends a signed transaction and waits for a terminal state.
//
// State machine: an immediate send error fails the submission, except a
// duplicate response, which resolves from the existing record. A pending
// transaction is polled at a fixed interval for a bounded number of
// attempts, then one final unconditional fetch decides the outcome. A
// submission that still has no terminal record is reported as a timeout
// together with a SubmissionError; the transaction cannot be withdrawn
// at that point.
type Submitter struct {
	client   NodeClient
	interval time.Duration
	attempts int
}

func NewSubmitter(client NodeClient, interval time.Duration, attempts int) *Submitter {
	if interval <= 0 {
		interval = time.Second
	}
	if attempts <= 0 {
		attempts = 20
	}
	return &Submitter{client: client, interval: interval, attempts: attempts}
}

// Submit sends the signed encoding of prepared and polls to a terminal
// state. On a failed or timed-out transaction both the outcome and a
// *SubmissionError are returned so the caller keeps the hash.
func (s *Submitter) Submit(ctx context.Context, prepared *PreparedTx, signedRaw []byte) (*SubmissionOutcome, error) {
	if s.client == nil {
		return nil, errors.New("node client is required")
	}
	if prepared == nil {
		return nil, errors.New("prepared transaction is nil")
	}
	if !prepared.consume() {
		return nil, &SubmissionError{Diagnostic: "prepared transaction already submitted"}
	}
	if !prepared.ExpiresAt.IsZero() && time.Now().After(prepared.ExpiresAt) {
		return nil, &SubmissionError{Diagnostic: "prepared transaction expired"}
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signedRaw); err != nil {
		return nil, &SubmissionError{Diagnostic: "invalid signed transaction encoding", Err: err}
	}
	hash := tx.Hash()

	duplicate := false
	polls := 0
	if err := s.client.SendTransaction(ctx, tx); err != nil {
		if !isAlreadyKnown(err) {
			return nil, &SubmissionError{Hash: hash, Status: StatusFailed, Diagnostic: err.Error(), Err: err}
		}
		// Already in the pool or already mined: the existing record
		// decides the outcome, same as the original send would.
		duplicate = true
		polls++
		if receipt, err := s.fetchReceipt(ctx, hash); err == nil && receipt != nil {
			return s.terminal(ctx, prepared, hash, receipt, true, polls)
		}
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		polls++
		receipt, err := s.fetchReceipt(ctx, hash)
		if err != nil {
			return nil, &SubmissionError{Hash: hash, Diagnostic: err.Error(), Err: err}
		}
		if receipt != nil {
			return s.terminal(ctx, prepared, hash, receipt, duplicate, polls)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	}

	// Bounded wait exhausted: one last look before giving up.
	polls++
	if receipt, err := s.fetchReceipt(ctx, hash); err == nil && receipt != nil {
		return s.terminal(ctx, prepared, hash, receipt, duplicate, polls)
	}
	outcome := &SubmissionOutcome{Hash: hash, Status: StatusTimeout, Return: prepared.Return, Duplicate: duplicate, Polls: polls}
	return outcome, &SubmissionError{Hash: hash, Status: StatusTimeout, Diagnostic: "no terminal state within poll window"}
}

func (s *Submitter) terminal(ctx context.Context, prepared *PreparedTx, hash common.Hash, receipt *types.Receipt, duplicate bool, polls int) (*SubmissionOutcome, error) {
	outcome := &SubmissionOutcome{
		Hash:      hash,
		GasUsed:   receipt.GasUsed,
		Return:    prepared.Return,
		Duplicate: duplicate,
		Polls:     polls,
	}
	if receipt.BlockNumber != nil {
		outcome.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		outcome.Status = StatusConfirmed
		return outcome, nil
	}
	outcome.Status = StatusFailed
	diag := s.revertReason(ctx, prepared, receipt.BlockNumber)
	return outcome, &SubmissionError{Hash: hash, Status: StatusFailed, Diagnostic: diag}
}

// revertReason replays the call at the failing block to recover the
// node's diagnostic; execution records do not carry one.
func (s *Submitter) revertReason(ctx context.Context, prepared *PreparedTx, block *big.Int) string {
	if prepared.Call == nil {
		return "execution reverted"
	}
	_, err := s.client.CallContract(ctx, prepared.Call.callMsg(), block)
	if err == nil {
		return "execution reverted"
	}
	return err.Error()
}

func (s *Submitter) fetchReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := s.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) || isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return receipt, nil
}

func isAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate transaction")
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}
