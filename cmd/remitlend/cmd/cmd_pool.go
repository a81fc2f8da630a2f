package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"remitlend/internal/lending"
)

var cmdDeposit = &cobra.Command{
	Use:   "deposit <from> <amount>",
	Short: "Deposit tokens into the lending pool.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: deposit <from> <amount>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.Deposit(c.Context(), lending.DepositRequest{From: args[0], Amount: args[1]})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}

var cmdWithdraw = &cobra.Command{
	Use:   "withdraw <from> <amount>",
	Short: "Withdraw tokens from the lending pool.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: withdraw <from> <amount>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.Withdraw(c.Context(), lending.WithdrawRequest{From: args[0], Amount: args[1]})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}

var cmdApprove = &cobra.Command{
	Use:   "approve <from> <amount>",
	Short: "Approve the lending pool to spend tokens.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: approve <from> <amount>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.Approve(c.Context(), lending.ApproveRequest{From: args[0], Amount: args[1]})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}
