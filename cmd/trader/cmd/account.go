package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show wallet balance and open positions",
	Args:  cobra.NoArgs,
	RunE:  runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func runAccount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	info, err := newClient(cfg).Account(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	acct := info.Account(time.Now())

	fmt.Printf("Wallet:        %.4f USDT\n", acct.WalletBalance)
	fmt.Printf("Margin:        %.4f USDT\n", acct.TotalMarginBalance)
	fmt.Printf("Used margin:   %.4f USDT\n", acct.UsedMargin)
	fmt.Printf("Free margin:   %.4f USDT\n", acct.FreeMargin)
	fmt.Printf("Unrealized:    %.4f USDT\n\n", acct.TotalUnrealizedPnL)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tAMOUNT\tENTRY\tLEVERAGE\tUNREALIZED")
	for _, p := range info.Positions {
		pos := p.Position(time.Now())
		if pos.IsFlat() {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%g\t%.5f\t%gx\t%.4f\n",
			pos.Symbol, pos.Side(), pos.Amount, pos.AvgEntryPrice, pos.Leverage, pos.UnrealizedPnL)
	}
	return w.Flush()
}
