package lending

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"remitlend/internal/tokencache"
	"remitlend/internal/txflow"
)

// SignerSource resolves the signing capability for a caller identity.
// keys.Manager satisfies it; a web deployment would adapt the connected
// wallet instead.
type SignerSource interface {
	SignerFor(addr common.Address) txflow.Signer
}

// Service exposes the platform operations. Every state-changing call
// runs the full pipeline; reads stop after simulation or use eth_call
// directly.
type Service struct {
	pipeline  *txflow.Pipeline
	rpc       RPCCaller
	contracts Contracts
	signers   SignerSource
	cache     *tokencache.Store
	logger    *slog.Logger
}

func NewService(pipeline *txflow.Pipeline, rpc RPCCaller, contracts Contracts, signers SignerSource, cache *tokencache.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pipeline:  pipeline,
		rpc:       rpc,
		contracts: contracts,
		signers:   signers,
		cache:     cache,
		logger:    logger,
	}
}

// Deposit moves tokens into the lending pool. The token allowance is
// checked locally first; an insufficient allowance never reaches the
// network. The allowance read itself is best-effort and degrades to
// zero on failure.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	allowance, err := readAllowance(ctx, s.rpc, s.contracts.TestToken, from, s.contracts.LendingPool)
	if err != nil {
		s.logger.Warn("allowance lookup failed, assuming zero", "error", err)
		allowance = big.NewInt(0)
	}
	if allowance.Cmp(amount) < 0 {
		return nil, &AllowanceInsufficientError{Allowance: allowance, Required: amount}
	}
	arg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.LendingPool,
		Method:   "deposit(uint256)",
		Args:     txflow.Args{arg},
		Caller:   from,
	})
}

func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	arg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.LendingPool,
		Method:   "withdraw(uint256)",
		Args:     txflow.Args{arg},
		Caller:   from,
	})
}

func (s *Service) Approve(ctx context.Context, req ApproveRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	spender := s.contracts.LendingPool
	if strings.TrimSpace(req.Spender) != "" {
		spender, err = parseAddress(req.Spender)
		if err != nil {
			return nil, err
		}
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	arg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	s.rememberToken(s.contracts.TestToken)
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.TestToken,
		Method:   "approve(address,uint256)",
		Args:     txflow.Args{txflow.Addr(spender), arg},
		Caller:   from,
	})
}

func (s *Service) RequestLoan(ctx context.Context, req LoanRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	amountArg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	collateralArg, err := txflow.U256(new(big.Int).SetUint64(req.CollateralID))
	if err != nil {
		return nil, err
	}
	durationArg, err := txflow.U256(new(big.Int).SetUint64(uint64(req.DurationMonths)))
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.LoanManager,
		Method:   "requestLoan(uint256,uint256,uint256)",
		Args:     txflow.Args{amountArg, collateralArg, durationArg},
		Caller:   from,
	})
}

func (s *Service) Repay(ctx context.Context, req RepayRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	loanArg, err := txflow.U256(new(big.Int).SetUint64(req.LoanID))
	if err != nil {
		return nil, err
	}
	amountArg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.LoanManager,
		Method:   "repayLoan(uint256,uint256)",
		Args:     txflow.Args{loanArg, amountArg},
		Caller:   from,
	})
}

func (s *Service) VerifyRemittance(ctx context.Context, req VerifyRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	reference, err := toBytes32(req.Reference)
	if err != nil {
		return nil, err
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	amountArg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.OracleVerifier,
		Method:   "verifyRemittance(bytes32,uint256)",
		Args:     txflow.Args{txflow.Bytes32(reference), amountArg},
		Caller:   from,
	})
}

func (s *Service) MintTestToken(ctx context.Context, req MintRequest) (*TxResult, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return nil, err
	}
	recipient := from
	if strings.TrimSpace(req.Recipient) != "" {
		recipient, err = parseAddress(req.Recipient)
		if err != nil {
			return nil, err
		}
	}
	amount, err := s.parseAmount(ctx, req.Amount, req.AmountWei, req.TokenDecimals)
	if err != nil {
		return nil, err
	}
	amountArg, err := txflow.U256(amount)
	if err != nil {
		return nil, err
	}
	s.rememberToken(s.contracts.TestToken)
	return s.execute(ctx, from, txflow.CallRequest{
		Contract: s.contracts.TestToken,
		Method:   "mint(address,uint256)",
		Args:     txflow.Args{txflow.Addr(recipient), amountArg},
		Caller:   from,
	})
}

// Loan reads a loan's status and outstanding balance. Both views run as
// read-only simulations; nothing is signed or submitted.
func (s *Service) Loan(ctx context.Context, caller string, loanID uint64) (*LoanView, error) {
	from, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	loanArg, err := txflow.U256(new(big.Int).SetUint64(loanID))
	if err != nil {
		return nil, err
	}

	var status, outstanding *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sim, err := s.pipeline.Query(gctx, txflow.CallRequest{
			Contract: s.contracts.LoanManager,
			Method:   "loanStatus(uint256)",
			Args:     txflow.Args{loanArg},
			Caller:   from,
		})
		if err != nil {
			return err
		}
		status = txflow.DecodeReturnBig(sim.Return)
		return nil
	})
	g.Go(func() error {
		sim, err := s.pipeline.Query(gctx, txflow.CallRequest{
			Contract: s.contracts.LoanManager,
			Method:   "loanOutstanding(uint256)",
			Args:     txflow.Args{loanArg},
			Caller:   from,
		})
		if err != nil {
			return err
		}
		outstanding = txflow.DecodeReturnBig(sim.Return)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &LoanView{
		LoanID:      loanID,
		Status:      uint8(status.Uint64()),
		Outstanding: outstanding.String(),
	}, nil
}

// Portfolio gathers a caller's balances in parallel.
func (s *Service) Portfolio(ctx context.Context, owner string) (*PortfolioView, error) {
	addr, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	view := &PortfolioView{Address: addr.Hex()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := readBalanceOf(gctx, s.rpc, s.contracts.TestToken, addr)
		if err != nil {
			return err
		}
		view.TokenWei = v.String()
		return nil
	})
	g.Go(func() error {
		v, err := readAllowance(gctx, s.rpc, s.contracts.TestToken, addr, s.contracts.LendingPool)
		if err != nil {
			return err
		}
		view.AllowanceWei = v.String()
		return nil
	})
	g.Go(func() error {
		v, err := readBalanceOf(gctx, s.rpc, s.contracts.RemittanceNFT, addr)
		if err != nil {
			return err
		}
		view.NFTCount = v.String()
		return nil
	})
	g.Go(func() error {
		sim, err := s.pipeline.Query(gctx, txflow.CallRequest{
			Contract: s.contracts.LendingPool,
			Method:   "depositOf(address)",
			Args:     txflow.Args{txflow.Addr(addr)},
			Caller:   addr,
		})
		if err != nil {
			return err
		}
		view.PoolWei = txflow.DecodeReturnBig(sim.Return).String()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	addr, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	return readAllowance(ctx, s.rpc, s.contracts.TestToken, addr, s.contracts.LendingPool)
}

func (s *Service) TokenBalance(ctx context.Context, owner string) (*big.Int, error) {
	addr, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	return readBalanceOf(ctx, s.rpc, s.contracts.TestToken, addr)
}

func (s *Service) LastToken() string {
	if s.cache == nil {
		return ""
	}
	return s.cache.Last()
}

func (s *Service) execute(ctx context.Context, from common.Address, req txflow.CallRequest) (*TxResult, error) {
	var signer txflow.Signer
	if s.signers != nil {
		signer = s.signers.SignerFor(from)
	}
	outcome, err := s.pipeline.Execute(ctx, req, signer)
	if err != nil {
		if outcome != nil {
			return outcomeToResult(outcome), err
		}
		return nil, err
	}
	return outcomeToResult(outcome), nil
}

func (s *Service) rememberToken(token common.Address) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(token.Hex()); err != nil {
		s.logger.Debug("token cache save failed", "error", err)
	}
}

func (s *Service) parseAmount(ctx context.Context, amount, amountWei string, override *uint8) (*big.Int, error) {
	if amountWei != "" {
		return parseBigInt(amountWei)
	}
	if amount == "" {
		return nil, errors.New("amount is required")
	}
	decimals := uint8(18)
	if override != nil {
		decimals = *override
	} else if s.rpc != nil {
		d, err := readDecimals(ctx, s.rpc, s.contracts.TestToken)
		if err == nil {
			decimals = d
		}
	}
	return ParseUnits(amount, decimals)
}

func outcomeToResult(outcome *txflow.SubmissionOutcome) *TxResult {
	res := &TxResult{
		Hash:      outcome.Hash.Hex(),
		Status:    string(outcome.Status),
		GasUsed:   outcome.GasUsed,
		Block:     outcome.BlockNumber,
		Duplicate: outcome.Duplicate,
	}
	if len(outcome.Return) > 0 {
		res.Return = hexutil.Encode(outcome.Return)
	}
	return res
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, errors.New("address is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(value), nil
}

func parseBigInt(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("value is empty")
	}
	if strings.HasPrefix(value, "0x") {
		return txflow.DecodeHexBig(value)
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, errors.New("invalid integer")
	}
	return v, nil
}

func toBytes32(value string) ([32]byte, error) {
	var out [32]byte
	value = strings.TrimSpace(value)
	if value == "" {
		return out, errors.New("reference is required")
	}
	if strings.HasPrefix(value, "0x") {
		b, err := hex.DecodeString(value[2:])
		if err != nil {
			return out, errors.New("invalid hex reference")
		}
		if len(b) > 32 {
			return out, errors.New("reference longer than 32 bytes")
		}
		copy(out[:], b)
		return out, nil
	}
	if len(value) > 32 {
		return out, errors.New("reference longer than 32 bytes")
	}
	copy(out[:], value)
	return out, nil
}
