package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"remitlend/internal/lending"
)

var mintRecipient string

var cmdMint = &cobra.Command{
	Use:   "mint <from> <amount>",
	Short: "Mint test tokens (faucet).",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: mint <from> <amount> [--to <recipient>]")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.MintTestToken(c.Context(), lending.MintRequest{
			From:      args[0],
			Amount:    args[1],
			Recipient: mintRecipient,
		})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}

var cmdVerify = &cobra.Command{
	Use:   "verify <from> <reference> <amount>",
	Short: "Submit a remittance reference to the oracle verifier.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 3 {
			return errors.New("usage: verify <from> <reference> <amount>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.svc.VerifyRemittance(c.Context(), lending.VerifyRequest{
			From:      args[0],
			Reference: args[1],
			Amount:    args[2],
		})
		if res != nil {
			_ = dumpJSON(res)
		}
		return err
	},
}

var cmdBalance = &cobra.Command{
	Use:   "balance <address>",
	Short: "Show a token balance.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: balance <address>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		v, err := rt.svc.TokenBalance(c.Context(), args[0])
		if err != nil {
			return err
		}
		return dumpJSON(map[string]string{"address": args[0], "balance_wei": v.String()})
	},
}

var cmdPortfolio = &cobra.Command{
	Use:   "portfolio <address>",
	Short: "Show balances, allowance and pool position.",
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("usage: portfolio <address>")
		}
		rt, err := bootstrap(c.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		view, err := rt.svc.Portfolio(c.Context(), args[0])
		if err != nil {
			return err
		}
		return dumpJSON(view)
	},
}

func init() {
	cmdMint.Flags().StringVar(&mintRecipient, "to", "", "recipient address (defaults to sender)")
}
