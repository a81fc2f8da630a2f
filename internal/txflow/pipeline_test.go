package txflow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeNode struct {
	mu           sync.Mutex
	nonce        uint64
	nonceErr     error
	callFn       func(msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	estimateErr  error
	sendErr      error
	receiptFn    func(call int) (*types.Receipt, error)
	sends        int
	estimates    int
	receiptCalls int
}

func (f *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return f.nonce, nil
}

func (f *fakeNode) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeNode) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	f.estimates++
	f.mu.Unlock()
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100000, nil
}

func (f *fakeNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callFn != nil {
		return f.callFn(msg, blockNumber)
	}
	return nil, nil
}

func (f *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	f.sends++
	f.mu.Unlock()
	return f.sendErr
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	f.receiptCalls++
	call := f.receiptCalls
	f.mu.Unlock()
	if f.receiptFn != nil {
		return f.receiptFn(call)
	}
	return nil, ethereum.NotFound
}

func (f *fakeNode) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func keySigner(t *testing.T) (Signer, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := SignerFunc(func(_ context.Context, rawTx []byte, chainID *big.Int) ([]byte, error) {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(rawTx); err != nil {
			return nil, err
		}
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
		if err != nil {
			return nil, err
		}
		return signed.MarshalBinary()
	})
	return signer, key
}

func newTestPipeline(node *fakeNode, attempts int) *Pipeline {
	chainID := big.NewInt(1337)
	builder := NewBuilder(node, time.Minute)
	simulator := NewSimulator(node)
	preparer := NewPreparer(node, nil, chainID, 1.0)
	submitter := NewSubmitter(node, time.Millisecond, attempts)
	return NewPipeline(builder, simulator, preparer, submitter, nil)
}

func feeHint() *FeeParams {
	return &FeeParams{
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}
}

func testRequest() CallRequest {
	arg, _ := U256(big.NewInt(100))
	return CallRequest{
		Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Method:   "deposit(uint256)",
		Args:     Args{arg},
		Caller:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		FeeHint:  feeHint(),
	}
}

func successReceipt(call int) (*types.Receipt, error) {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		GasUsed:     90000,
		BlockNumber: big.NewInt(42),
	}, nil
}

func TestSimulationFailureShortCircuits(t *testing.T) {
	node := &fakeNode{
		callFn: func(msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
			return nil, errors.New("contract revert")
		},
	}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, 3)

	_, err := p.Execute(context.Background(), testRequest(), signer)
	var simErr *SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected SimulationError, got %v", err)
	}
	if !strings.Contains(simErr.Error(), "contract revert") {
		t.Fatalf("diagnostic not carried: %v", simErr)
	}
	if node.sendCount() != 0 {
		t.Fatalf("expected zero sends, got %d", node.sends)
	}
	if node.estimates != 0 {
		t.Fatalf("expected no gas estimation after failed simulation, got %d", node.estimates)
	}
}

func TestExecuteConfirmed(t *testing.T) {
	node := &fakeNode{receiptFn: successReceipt}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, 3)

	outcome, err := p.Execute(context.Background(), testRequest(), signer)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if outcome.Status != StatusConfirmed {
		t.Fatalf("unexpected status %q", outcome.Status)
	}
	if outcome.GasUsed != 90000 || outcome.BlockNumber != 42 {
		t.Fatalf("receipt fields not propagated: %+v", outcome)
	}
	if outcome.Polls != 1 {
		t.Fatalf("outcome polls = %d", outcome.Polls)
	}
	if node.sendCount() != 1 {
		t.Fatalf("expected one send, got %d", node.sends)
	}
}

func TestExecuteWithoutSigner(t *testing.T) {
	node := &fakeNode{}
	p := newTestPipeline(node, 3)

	_, err := p.Execute(context.Background(), testRequest(), nil)
	var walletErr *WalletUnavailableError
	if !errors.As(err, &walletErr) {
		t.Fatalf("expected WalletUnavailableError, got %v", err)
	}
	if node.sendCount() != 0 {
		t.Fatalf("expected zero sends, got %d", node.sends)
	}
}

func TestAccountLookupFailure(t *testing.T) {
	node := &fakeNode{nonceErr: errors.New("unknown account")}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, 3)

	_, err := p.Execute(context.Background(), testRequest(), signer)
	var lookupErr *AccountLookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected AccountLookupError, got %v", err)
	}
}

func TestPreparationFailure(t *testing.T) {
	node := &fakeNode{estimateErr: errors.New("gas required exceeds allowance")}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, 3)

	_, err := p.Execute(context.Background(), testRequest(), signer)
	var prepErr *PreparationError
	if !errors.As(err, &prepErr) {
		t.Fatalf("expected PreparationError, got %v", err)
	}
	if node.sendCount() != 0 {
		t.Fatalf("expected zero sends, got %d", node.sends)
	}
}

func TestDuplicateSendResolvesFromRecord(t *testing.T) {
	node := &fakeNode{
		sendErr:   errors.New("already known"),
		receiptFn: successReceipt,
	}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, 3)

	outcome, err := p.Execute(context.Background(), testRequest(), signer)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if outcome.Status != StatusConfirmed {
		t.Fatalf("duplicate should resolve to the record's status, got %q", outcome.Status)
	}
	if !outcome.Duplicate {
		t.Fatalf("expected duplicate flag")
	}
}

func TestPollBoundedThenFinalFetch(t *testing.T) {
	attempts := 5
	node := &fakeNode{}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, attempts)

	outcome, err := p.Execute(context.Background(), testRequest(), signer)
	if outcome == nil || outcome.Status != StatusTimeout {
		t.Fatalf("expected timeout outcome, got %+v", outcome)
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Status != StatusTimeout {
		t.Fatalf("expected timeout SubmissionError, got %v", err)
	}
	// attempts bounded polls plus exactly one final fetch
	if node.receiptCalls != attempts+1 {
		t.Fatalf("expected %d receipt fetches, got %d", attempts+1, node.receiptCalls)
	}
	if outcome.Polls != attempts+1 {
		t.Fatalf("outcome polls = %d, want %d", outcome.Polls, attempts+1)
	}
}

func TestFailedReceiptCarriesDiagnostic(t *testing.T) {
	var sent bool
	var mu sync.Mutex
	node := &fakeNode{}
	node.callFn = func(msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if sent {
			return nil, errors.New("insufficient balance")
		}
		return nil, nil
	}
	node.receiptFn = func(call int) (*types.Receipt, error) {
		mu.Lock()
		sent = true
		mu.Unlock()
		if call < 5 {
			return nil, ethereum.NotFound
		}
		return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(7)}, nil
	}
	signer, _ := keySigner(t)
	p := newTestPipeline(node, 20)

	outcome, err := p.Execute(context.Background(), testRequest(), signer)
	if outcome == nil || outcome.Status != StatusFailed {
		t.Fatalf("expected failed outcome, got %+v", outcome)
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if !strings.Contains(subErr.Error(), "insufficient balance") {
		t.Fatalf("diagnostic not carried: %v", subErr)
	}
}

func TestPreparedTxSingleUse(t *testing.T) {
	node := &fakeNode{receiptFn: successReceipt}
	builder := NewBuilder(node, time.Minute)
	simulator := NewSimulator(node)
	preparer := NewPreparer(node, nil, big.NewInt(1337), 1.0)
	submitter := NewSubmitter(node, time.Millisecond, 3)
	signer, _ := keySigner(t)

	call, err := builder.Build(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sim, err := simulator.Simulate(context.Background(), call)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	prepared, err := preparer.Prepare(context.Background(), call, sim)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	raw, err := prepared.Encoded()
	if err != nil {
		t.Fatalf("Encoded: %v", err)
	}
	signed, err := signer.SignTransaction(context.Background(), raw, big.NewInt(1337))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := submitter.Submit(context.Background(), prepared, signed); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err = submitter.Submit(context.Background(), prepared, signed)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || !strings.Contains(subErr.Error(), "already submitted") {
		t.Fatalf("expected single-use rejection, got %v", err)
	}
}

func TestPreparedTxExpiry(t *testing.T) {
	node := &fakeNode{receiptFn: successReceipt}
	past := func() time.Time { return time.Now().Add(-time.Hour) }
	builder := NewBuilderWithClock(node, time.Minute, past)
	simulator := NewSimulator(node)
	preparer := NewPreparer(node, nil, big.NewInt(1337), 1.0)
	submitter := NewSubmitter(node, time.Millisecond, 3)
	signer, _ := keySigner(t)

	call, err := builder.Build(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sim, err := simulator.Simulate(context.Background(), call)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	prepared, err := preparer.Prepare(context.Background(), call, sim)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	raw, _ := prepared.Encoded()
	signed, err := signer.SignTransaction(context.Background(), raw, big.NewInt(1337))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = submitter.Submit(context.Background(), prepared, signed)
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || !strings.Contains(subErr.Error(), "expired") {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
	if node.sendCount() != 0 {
		t.Fatalf("expired transaction must not be sent")
	}
}

func TestQueryShortCircuits(t *testing.T) {
	ret, _ := U256(big.NewInt(777))
	node := &fakeNode{
		callFn: func(msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
			return ret, nil
		},
	}
	p := newTestPipeline(node, 3)

	sim, err := p.Query(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if DecodeReturnBig(sim.Return).Int64() != 777 {
		t.Fatalf("unexpected return: %x", sim.Return)
	}
	if node.sendCount() != 0 || node.estimates != 0 {
		t.Fatalf("query must stop after simulation")
	}
}
