package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "remitlend",
	Short: "Remittance lending platform CLI",
}

var configPath string

func Execute() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(cmdDeposit)
	rootCmd.AddCommand(cmdWithdraw)
	rootCmd.AddCommand(cmdApprove)
	rootCmd.AddCommand(cmdBorrow)
	rootCmd.AddCommand(cmdRepay)
	rootCmd.AddCommand(cmdMint)
	rootCmd.AddCommand(cmdVerify)
	rootCmd.AddCommand(cmdBalance)
	rootCmd.AddCommand(cmdLoan)
	rootCmd.AddCommand(cmdPortfolio)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
