package cmd

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/market_hours"
	"github.com/spf13/cobra"
)

func newSettlementDateCmd() *cobra.Command {
	var skipHolidays bool

	cmd := &cobra.Command{
		Use:   "settlement-date <YYYY-MM-DD>",
		Short: "Print the settlement date of a trade executed on the given date",
		Long: `Adds the configured settlement lag in business days to a trade date.

Example:
  riskctl settlement-date 2025-07-03 --skip-holidays`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadRiskSettings()
			if err != nil {
				return err
			}
			cfg, err := settings.ComplianceConfig()
			if err != nil {
				return err
			}

			tradeDate, err := domain.ParseDate(args[0])
			if err != nil {
				return err
			}

			skip := cfg.SkipMarketHolidays
			if cmd.Flags().Changed("skip-holidays") {
				skip = skipHolidays
			}
			cal := market_hours.NewCalendar(skip)

			settles := compliance.SettlementDate(cal, tradeDate, cfg.SettlementDays)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", domain.FormatDate(settles))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipHolidays, "skip-holidays", false, "skip US market holidays as well as weekends")
	return cmd
}
