package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perps/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display trade journal records from the SQLite journal.

Subcommands:
  trade    - Show one trade by ID
  list     - List recent trades
  summary  - Realized results over a period

Examples:
  trader journal trade 01HQ...
  trader journal list --symbol XRPUSDT --limit 20
  trader journal summary --since 24h`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent trades, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize realized results",
	Args:  cobra.NoArgs,
	RunE:  runJournalSummary,
}

var (
	journalDBPath string
	journalSymbol string
	journalSince  time.Duration
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalSummaryCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default from config)")
	journalCmd.PersistentFlags().StringVarP(&journalSymbol, "symbol", "s", "", "only this symbol")
	journalCmd.PersistentFlags().DurationVar(&journalSince, "since", 0, "only trades newer than this, e.g. 24h")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "maximum number of trades")
}

func openJournalDB() (*journal.SQLite, *time.Location, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return j, cfg.Location(), nil
}

func filter() journal.TradeFilter {
	f := journal.TradeFilter{Symbol: journalSymbol, Limit: journalLimit}
	if journalSince > 0 {
		f.Since = time.Now().Add(-journalSince)
	}
	return f
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, _, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Println(rec.Text)
	return nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTrades(filter())
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSYMBOL\tACTION\tPRICE\tQTY\tPNL\tPNL%\tSTRATEGY\tID")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.5f\t%g\t%.4f\t%.2f\t%s\t%s\n",
			r.Time.In(loc).Format(time.DateTime), r.Symbol, r.Action, r.Price, r.Qty,
			r.RealizedPnL, r.PnLPct, r.Strategy, r.ID)
	}
	return w.Flush()
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	j, _, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	f := filter()
	f.Limit = 0
	recs, err := j.ListTrades(f)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	s := journal.Summarize(recs)
	fmt.Printf("Trades:        %d (%d wins, %d losses)\n", s.Trades, s.Wins, s.Losses)
	fmt.Printf("Gross profit:  %.4f USDT\n", s.GrossProfit)
	fmt.Printf("Gross loss:    %.4f USDT\n", s.GrossLoss)
	fmt.Printf("Commission:    %.4f USDT\n", s.Commission)
	fmt.Printf("Net:           %.4f USDT\n", s.Net())
	fmt.Printf("Profit factor: %.2f\n", s.ProfitFactor())
	return nil
}
