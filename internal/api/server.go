package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"remitlend/internal/activity"
	"remitlend/internal/config"
	"remitlend/internal/lending"
	"remitlend/internal/metrics"
	"remitlend/internal/txflow"
)

// LendingService is the slice of the domain service the API depends on.
type LendingService interface {
	Deposit(ctx context.Context, req lending.DepositRequest) (*lending.TxResult, error)
	Withdraw(ctx context.Context, req lending.WithdrawRequest) (*lending.TxResult, error)
	Approve(ctx context.Context, req lending.ApproveRequest) (*lending.TxResult, error)
	RequestLoan(ctx context.Context, req lending.LoanRequest) (*lending.TxResult, error)
	Repay(ctx context.Context, req lending.RepayRequest) (*lending.TxResult, error)
	VerifyRemittance(ctx context.Context, req lending.VerifyRequest) (*lending.TxResult, error)
	MintTestToken(ctx context.Context, req lending.MintRequest) (*lending.TxResult, error)
	Loan(ctx context.Context, caller string, loanID uint64) (*lending.LoanView, error)
	Portfolio(ctx context.Context, owner string) (*lending.PortfolioView, error)
	Allowance(ctx context.Context, owner string) (*big.Int, error)
	TokenBalance(ctx context.Context, owner string) (*big.Int, error)
	LastToken() string
}

// KeyManager is the account surface exposed over HTTP.
type KeyManager interface {
	Accounts() []common.Address
	CreateAccount() (common.Address, error)
}

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	keys    KeyManager
	lending LendingService
	feed    *activity.Feed
	metrics *metrics.Metrics
}

func NewServer(cfg *config.Config, logger *slog.Logger, keys KeyManager, svc LendingService, feed *activity.Feed, m *metrics.Metrics) *Server {
	return &Server{cfg: cfg, logger: logger, keys: keys, lending: svc, feed: feed, metrics: m}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/keys", s.withAuth(s.handleKeys))
	mux.HandleFunc("/pool/deposit", s.withAuth(s.handleDeposit))
	mux.HandleFunc("/pool/withdraw", s.withAuth(s.handleWithdraw))
	mux.HandleFunc("/token/approve", s.withAuth(s.handleApprove))
	mux.HandleFunc("/token/mint", s.withAuth(s.handleMint))
	mux.HandleFunc("/token/last", s.withAuth(s.handleLastToken))
	mux.HandleFunc("/loans/request", s.withAuth(s.handleRequestLoan))
	mux.HandleFunc("/loans/repay", s.withAuth(s.handleRepay))
	mux.HandleFunc("/loans", s.withAuth(s.handleLoan))
	mux.HandleFunc("/verify", s.withAuth(s.handleVerify))
	mux.HandleFunc("/portfolio", s.withAuth(s.handlePortfolio))
	mux.HandleFunc("/allowance", s.withAuth(s.handleAllowance))
	mux.HandleFunc("/balances", s.withAuth(s.handleBalances))
	mux.HandleFunc("/activity", s.withAuth(s.handleActivity))
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxTimeout)
	}()
	return server.ListenAndServe()
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.API.AuthToken != "" {
			token := r.Header.Get("X-API-Key")
			if token == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					token = strings.TrimSpace(auth[7:])
				}
			}
			if token != s.cfg.API.AuthToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		addrs := s.keys.Accounts()
		out := make([]string, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, a.Hex())
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"keys": out})
	case http.MethodPost:
		addr, err := s.keys.CreateAccount()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr.Hex()})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req lending.DepositRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.Deposit(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req lending.WithdrawRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.Withdraw(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req lending.ApproveRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.Approve(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req lending.MintRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.MintTestToken(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleLastToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.lending.LastToken()})
}

func (s *Server) handleRequestLoan(w http.ResponseWriter, r *http.Request) {
	var req lending.LoanRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.RequestLoan(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req lending.RepayRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.Repay(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req lending.VerifyRequest
	if !s.readPost(w, r, &req) {
		return
	}
	res, err := s.lending.VerifyRemittance(r.Context(), req)
	s.writeTx(w, res, err)
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller := r.URL.Query().Get("caller")
	idStr := r.URL.Query().Get("id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	view, err := s.lending.Loan(r.Context(), caller, id)
	if err != nil {
		s.writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	view, err := s.lending.Portfolio(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	v, err := s.lending.Allowance(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"allowance_wei": v.String()})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	v, err := s.lending.TokenBalance(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.writeLendingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance_wei": v.String()})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.feed == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": []activity.Event{}})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.feed.Recent(limit)})
}

func (s *Server) readPost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := readJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// writeTx maps a submission result and error to a response. A failed or
// timed-out submission still carries a result with the hash.
func (s *Server) writeTx(w http.ResponseWriter, res *lending.TxResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	status := s.errorStatus(err)
	body := map[string]interface{}{"error": err.Error()}
	if res != nil {
		body["result"] = res
	}
	writeJSON(w, status, body)
}

func (s *Server) writeLendingError(w http.ResponseWriter, err error) {
	writeJSON(w, s.errorStatus(err), map[string]string{"error": err.Error()})
}

func (s *Server) errorStatus(err error) int {
	var allowanceErr *lending.AllowanceInsufficientError
	if errors.As(err, &allowanceErr) {
		if s.metrics != nil {
			s.metrics.IncAllowanceRejection()
		}
		return http.StatusUnprocessableEntity
	}
	var walletErr *txflow.WalletUnavailableError
	if errors.As(err, &walletErr) {
		return http.StatusServiceUnavailable
	}
	var submitErr *txflow.SubmissionError
	if errors.As(err, &submitErr) {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(b, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
