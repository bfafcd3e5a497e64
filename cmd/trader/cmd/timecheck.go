package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var timecheckCmd = &cobra.Command{
	Use:   "timecheck",
	Short: "Compare the local clock with the exchange server time",
	Long: `Measure local time minus exchange server time. Signed requests are
rejected when the difference exceeds the receive window, so offsets above
exchange.max_clock_skew are reported as a warning.`,
	Args: cobra.NoArgs,
	RunE: runTimecheck,
}

func init() {
	rootCmd.AddCommand(timecheckCmd)
}

func runTimecheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	off, err := newClient(cfg).ClockOffset(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	skew := cfg.Exchange.MaxClockSkew.Duration
	if off > skew || off < -skew {
		fmt.Printf("⚠ Clock offset %s exceeds %s, sync the system clock\n", off, skew)
		return nil
	}
	fmt.Printf("✓ Clock offset %s (limit %s)\n", off, skew)
	return nil
}
