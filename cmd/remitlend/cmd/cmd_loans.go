package cmd

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"remitlend/internal/lending"
)

var borrowCollateral uint64
var borrowMonths uint32

var cmdBorrow = &cobra.Command{
	Use:   "borrow <from> <amount>",
	Short: "Request a loan against a remittance NFT.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: borrow <from> <amount> --collateral <nft-id> --months <n>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.RequestLoan(c.Context(), lending.LoanRequest{
			From:           args[0],
			Amount:         args[1],
			CollateralID:   borrowCollateral,
			DurationMonths: borrowMonths,
		})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}

var cmdRepay = &cobra.Command{
	Use:   "repay <from> <loan-id> <amount>",
	Short: "Repay part of an active loan.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 3 {
			return errors.New("usage: repay <from> <loan-id> <amount>")
		}
		loanID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return errors.New("invalid loan id")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.Repay(c.Context(), lending.RepayRequest{
			From:   args[0],
			LoanID: loanID,
			Amount: args[2],
		})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}

var cmdLoan = &cobra.Command{
	Use:   "loan <caller> <loan-id>",
	Short: "Show a loan's status and outstanding balance.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: loan <caller> <loan-id>")
		}
		loanID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return errors.New("invalid loan id")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		view, err := rt.svc.Loan(c.Context(), args[0], loanID)
		if err != nil {
			return err
		}
		return dumpJSON(view)
	},
}

func init() {
	cmdBorrow.Flags().Uint64Var(&borrowCollateral, "collateral", 0, "remittance NFT id used as collateral")
	cmdBorrow.Flags().Uint32Var(&borrowMonths, "months", 12, "loan duration in months")
}
