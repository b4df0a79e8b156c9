package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/di"
	"github.com/aristath/tradeguard/pkg/logger"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <account-id>",
		Short: "Print an account's compliance status from the local ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if riskConfigFile != "" {
				if cfg.Risk, err = loadRiskSettings(); err != nil {
					return err
				}
			}

			container, err := di.Wire(cfg, logger.Nop())
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			status, err := container.ComplianceManager.GetStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to read status: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Account\t%s\n", status.AccountID)
			fmt.Fprintf(w, "As of\t%s\n", status.AsOf)
			fmt.Fprintf(w, "Day trades\t%d / %d in %d business days (%d remaining)\n",
				status.DayTradesInWindow, status.DayTradeLimit, status.LookbackDays, status.RemainingDayTrades)
			fmt.Fprintf(w, "Settled cash\t%s\n", status.SettledCash.StringFixed(2))
			fmt.Fprintf(w, "Pending settlement\t%s\n", status.PendingSettlement.StringFixed(2))
			fmt.Fprintf(w, "Trades today\t%d / %d\n", status.DailyCount, status.DailyLimit)
			fmt.Fprintf(w, "Trades this week\t%d / %d\n", status.WeeklyCount, status.WeeklyLimit)
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
