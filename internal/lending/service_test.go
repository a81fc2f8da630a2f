package lending

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"remitlend/internal/txflow"
)

type stubNode struct {
	mu     sync.Mutex
	sends  int
	nonces int
	sent   []*types.Transaction
	callFn func(msg ethereum.CallMsg) ([]byte, error)
}

func (f *stubNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	f.nonces++
	f.mu.Unlock()
	return 3, nil
}

func (f *stubNode) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *stubNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *stubNode) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *stubNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 80000, nil
}

func (f *stubNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callFn != nil {
		return f.callFn(msg)
	}
	return nil, nil
}

func (f *stubNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	f.sends++
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return nil
}

func (f *stubNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		GasUsed:     70000,
		BlockNumber: big.NewInt(9),
	}, nil
}

// stubRPC answers eth_call by ERC-20 selector.
type stubRPC struct {
	allowance *big.Int
	balance   *big.Int
	err       error
}

func (f *stubRPC) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	if method != "eth_call" {
		return fmt.Errorf("unexpected method %s", method)
	}
	call, ok := args[0].(map[string]string)
	if !ok {
		return errors.New("unexpected call shape")
	}
	out, ok := result.(*string)
	if !ok {
		return errors.New("unexpected result shape")
	}
	data, err := hexutil.Decode(call["data"])
	if err != nil {
		return err
	}
	var value *big.Int
	switch {
	case bytes.HasPrefix(data, txflow.Selector("allowance(address,address)")):
		value = f.allowance
	case bytes.HasPrefix(data, txflow.Selector("balanceOf(address)")):
		value = f.balance
	case bytes.HasPrefix(data, txflow.Selector("decimals()")):
		value = big.NewInt(18)
	default:
		return fmt.Errorf("unexpected calldata %x", data[:4])
	}
	if value == nil {
		value = big.NewInt(0)
	}
	*out = hexutil.EncodeBig(value)
	return nil
}

type stubSigners struct {
	signer txflow.Signer
}

func (s *stubSigners) SignerFor(addr common.Address) txflow.Signer { return s.signer }

func testContracts() Contracts {
	return Contracts{
		OracleVerifier: common.HexToAddress("0x1000000000000000000000000000000000000001"),
		LoanManager:    common.HexToAddress("0x1000000000000000000000000000000000000002"),
		LendingPool:    common.HexToAddress("0x1000000000000000000000000000000000000003"),
		RemittanceNFT:  common.HexToAddress("0x1000000000000000000000000000000000000004"),
		TestToken:      common.HexToAddress("0x1000000000000000000000000000000000000005"),
	}
}

func newTestService(t *testing.T, node *stubNode, rpc RPCCaller) *Service {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	chainID := big.NewInt(1337)
	signer := txflow.SignerFunc(func(_ context.Context, rawTx []byte, id *big.Int) ([]byte, error) {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(rawTx); err != nil {
			return nil, err
		}
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(id), key)
		if err != nil {
			return nil, err
		}
		return signed.MarshalBinary()
	})
	oracle := txflow.NewFeeOracle(node, txflow.FeeOracleConfig{})
	pipeline := txflow.NewPipeline(
		txflow.NewBuilder(node, time.Minute),
		txflow.NewSimulator(node),
		txflow.NewPreparer(node, oracle, chainID, 1.2),
		txflow.NewSubmitter(node, time.Millisecond, 3),
		nil,
	)
	return NewService(pipeline, rpc, testContracts(), &stubSigners{signer: signer}, nil, nil)
}

const caller = "0x2222222222222222222222222222222222222222"

func TestDepositInsufficientAllowance(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{allowance: big.NewInt(50)})

	_, err := svc.Deposit(context.Background(), DepositRequest{From: caller, AmountWei: "100"})
	var allowErr *AllowanceInsufficientError
	if !errors.As(err, &allowErr) {
		t.Fatalf("expected AllowanceInsufficientError, got %v", err)
	}
	if allowErr.Allowance.Int64() != 50 || allowErr.Required.Int64() != 100 {
		t.Fatalf("unexpected error detail: %v", allowErr)
	}
	if node.nonces != 0 || node.sends != 0 {
		t.Fatalf("rejected deposit must not touch the node: nonces=%d sends=%d", node.nonces, node.sends)
	}
}

func TestDepositAllowanceLookupFailureTreatedAsZero(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{err: errors.New("rpc unreachable")})

	_, err := svc.Deposit(context.Background(), DepositRequest{From: caller, AmountWei: "1"})
	var allowErr *AllowanceInsufficientError
	if !errors.As(err, &allowErr) {
		t.Fatalf("expected AllowanceInsufficientError, got %v", err)
	}
	if allowErr.Allowance.Sign() != 0 {
		t.Fatalf("failed lookup should degrade to zero, got %v", allowErr.Allowance)
	}
}

func TestDepositConfirmed(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{allowance: big.NewInt(1000)})

	res, err := svc.Deposit(context.Background(), DepositRequest{From: caller, AmountWei: "100"})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if res.Status != string(txflow.StatusConfirmed) {
		t.Fatalf("unexpected status %q", res.Status)
	}
	if node.sends != 1 {
		t.Fatalf("expected one send, got %d", node.sends)
	}
	tx := node.sent[0]
	if tx.To() == nil || *tx.To() != testContracts().LendingPool {
		t.Fatalf("deposit sent to %v", tx.To())
	}
	if !bytes.HasPrefix(tx.Data(), txflow.Selector("deposit(uint256)")) {
		t.Fatalf("unexpected calldata %x", tx.Data())
	}
}

func TestMintDefaultsRecipientToCaller(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{})

	if _, err := svc.MintTestToken(context.Background(), MintRequest{From: caller, AmountWei: "5"}); err != nil {
		t.Fatalf("MintTestToken: %v", err)
	}
	tx := node.sent[0]
	if *tx.To() != testContracts().TestToken {
		t.Fatalf("mint sent to %v", tx.To())
	}
	want := txflow.Addr(common.HexToAddress(caller))
	if !bytes.Equal(tx.Data()[4:36], want) {
		t.Fatalf("recipient word %x, want %x", tx.Data()[4:36], want)
	}
}

func TestApproveDefaultsSpenderToPool(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{})

	if _, err := svc.Approve(context.Background(), ApproveRequest{From: caller, AmountWei: "25"}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	tx := node.sent[0]
	want := txflow.Addr(testContracts().LendingPool)
	if !bytes.Equal(tx.Data()[4:36], want) {
		t.Fatalf("spender word %x, want %x", tx.Data()[4:36], want)
	}
}

func TestPortfolio(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{allowance: big.NewInt(7), balance: big.NewInt(11)})

	view, err := svc.Portfolio(context.Background(), caller)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if view.AllowanceWei != "7" || view.TokenWei != "11" {
		t.Fatalf("unexpected view %+v", view)
	}
	if node.sends != 0 {
		t.Fatalf("portfolio must be read-only, sends=%d", node.sends)
	}
}

func TestLoanReadsStatusAndOutstanding(t *testing.T) {
	node := &stubNode{}
	node.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		var v *big.Int
		switch {
		case bytes.HasPrefix(msg.Data, txflow.Selector("loanStatus(uint256)")):
			v = big.NewInt(2)
		case bytes.HasPrefix(msg.Data, txflow.Selector("loanOutstanding(uint256)")):
			v = big.NewInt(500)
		default:
			return nil, fmt.Errorf("unexpected calldata %x", msg.Data[:4])
		}
		word, err := txflow.U256(v)
		return word, err
	}
	svc := newTestService(t, node, &stubRPC{})

	view, err := svc.Loan(context.Background(), caller, 7)
	if err != nil {
		t.Fatalf("Loan: %v", err)
	}
	if view.LoanID != 7 || view.Status != 2 || view.Outstanding != "500" {
		t.Fatalf("unexpected view %+v", view)
	}
	if node.sends != 0 {
		t.Fatalf("loan reads must not submit, sends=%d", node.sends)
	}
}

func TestTokenBalance(t *testing.T) {
	node := &stubNode{}
	svc := newTestService(t, node, &stubRPC{balance: big.NewInt(900)})

	v, err := svc.TokenBalance(context.Background(), caller)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if v.Int64() != 900 {
		t.Fatalf("balance = %v", v)
	}
	if _, err := svc.TokenBalance(context.Background(), "nonsense"); err == nil {
		t.Fatal("invalid address accepted")
	}
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
		want     string
		ok       bool
	}{
		{"1", 18, "1000000000000000000", true},
		{"0.5", 18, "500000000000000000", true},
		{"1.25", 2, "125", true},
		{"0", 18, "0", true},
		{".5", 2, "50", true},
		{"1.234", 2, "", false},
		{"-1", 18, "", false},
		{"", 18, "", false},
		{"abc", 18, "", false},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.amount, tc.decimals)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseUnits(%q, %d) err = %v", tc.amount, tc.decimals, err)
		}
		if err == nil && got.String() != tc.want {
			t.Fatalf("ParseUnits(%q, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestToBytes32(t *testing.T) {
	ref, err := toBytes32("MTCN-12345")
	if err != nil {
		t.Fatalf("toBytes32: %v", err)
	}
	if string(bytes.TrimRight(ref[:], "\x00")) != "MTCN-12345" {
		t.Fatalf("utf8 reference mangled: %x", ref)
	}

	hexRef, err := toBytes32("0xdeadbeef")
	if err != nil {
		t.Fatalf("toBytes32 hex: %v", err)
	}
	if !bytes.Equal(hexRef[:4], []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("hex reference mangled: %x", hexRef)
	}

	if _, err := toBytes32(""); err == nil {
		t.Fatal("empty reference accepted")
	}
	long := make([]byte, 33)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := toBytes32(string(long)); err == nil {
		t.Fatal("33-byte reference accepted")
	}
}
