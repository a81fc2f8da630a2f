package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"remitlend/internal/config"
)

// Contracts holds the five fixed platform contract addresses.
type Contracts struct {
	OracleVerifier common.Address
	LoanManager    common.Address
	LendingPool    common.Address
	RemittanceNFT  common.Address
	TestToken      common.Address
}

func ContractsFromConfig(cfg *config.Config) (Contracts, error) {
	var out Contracts
	fields := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"oracle_verifier", cfg.Contracts.OracleVerifier, &out.OracleVerifier},
		{"loan_manager", cfg.Contracts.LoanManager, &out.LoanManager},
		{"lending_pool", cfg.Contracts.LendingPool, &out.LendingPool},
		{"remittance_nft", cfg.Contracts.RemittanceNFT, &out.RemittanceNFT},
		{"test_token", cfg.Contracts.TestToken, &out.TestToken},
	}
	for _, f := range fields {
		addr, err := parseAddress(f.value)
		if err != nil {
			return Contracts{}, &badAddressError{field: f.name, err: err}
		}
		*f.dst = addr
	}
	return out, nil
}

type badAddressError struct {
	field string
	err   error
}

func (e *badAddressError) Error() string {
	return "invalid " + e.field + " address: " + e.err.Error()
}

func (e *badAddressError) Unwrap() error { return e.err }

// AllowanceInsufficientError is raised locally before a deposit ever
// reaches the network.
type AllowanceInsufficientError struct {
	Allowance *big.Int
	Required  *big.Int
}

func (e *AllowanceInsufficientError) Error() string {
	if e == nil {
		return "allowance insufficient"
	}
	return "allowance insufficient: have " + e.Allowance.String() + ", need " + e.Required.String()
}

type DepositRequest struct {
	From          string `json:"from"`
	Amount        string `json:"amount,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	TokenDecimals *uint8 `json:"token_decimals,omitempty"`
}

type WithdrawRequest struct {
	From          string `json:"from"`
	Amount        string `json:"amount,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	TokenDecimals *uint8 `json:"token_decimals,omitempty"`
}

type ApproveRequest struct {
	From          string `json:"from"`
	Spender       string `json:"spender,omitempty"`
	Amount        string `json:"amount,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	TokenDecimals *uint8 `json:"token_decimals,omitempty"`
}

type LoanRequest struct {
	From           string `json:"from"`
	Amount         string `json:"amount,omitempty"`
	AmountWei      string `json:"amount_wei,omitempty"`
	CollateralID   uint64 `json:"collateral_id"`
	DurationMonths uint32 `json:"duration_months"`
	TokenDecimals  *uint8 `json:"token_decimals,omitempty"`
}

type RepayRequest struct {
	From          string `json:"from"`
	LoanID        uint64 `json:"loan_id"`
	Amount        string `json:"amount,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	TokenDecimals *uint8 `json:"token_decimals,omitempty"`
}

type VerifyRequest struct {
	From          string `json:"from"`
	Reference     string `json:"reference"`
	Amount        string `json:"amount,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	TokenDecimals *uint8 `json:"token_decimals,omitempty"`
}

type MintRequest struct {
	From          string `json:"from"`
	Recipient     string `json:"recipient,omitempty"`
	Amount        string `json:"amount,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	TokenDecimals *uint8 `json:"token_decimals,omitempty"`
}

// TxResult is the JSON shape of a finished submission.
type TxResult struct {
	Hash      string `json:"hash"`
	Status    string `json:"status"`
	GasUsed   uint64 `json:"gas_used,omitempty"`
	Block     uint64 `json:"block,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Return    string `json:"return,omitempty"`
}

type LoanView struct {
	LoanID      uint64 `json:"loan_id"`
	Status      uint8  `json:"status"`
	Outstanding string `json:"outstanding_wei"`
}

type PortfolioView struct {
	Address      string `json:"address"`
	TokenWei     string `json:"token_wei"`
	AllowanceWei string `json:"allowance_wei"`
	NFTCount     string `json:"nft_count"`
	PoolWei      string `json:"pool_wei"`
}
