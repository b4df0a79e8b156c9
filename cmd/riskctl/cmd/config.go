package cmd

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate risk settings files",
		Long: `Manage risk settings files.

Subcommands:
  init     - Write the default risk settings
  validate - Validate an existing risk settings file

Examples:
  riskctl config init -o risk.yaml
  riskctl config validate -f risk.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default risk settings to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DefaultRiskSettings().SaveToFile(output); err != nil {
				return fmt.Errorf("save risk settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created default risk settings: %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "risk.yaml", "output file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a risk settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadRiskSettings(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Risk settings valid: %s\n", path)
			fmt.Fprintf(out, "  Cash account threshold: %.2f\n", settings.Account.CashAccountThreshold)
			fmt.Fprintf(out, "  PDT: %s, %d day trades per %d business days\n",
				settings.Compliance.PDT.Mode, settings.Compliance.PDT.Limit, settings.Compliance.PDT.LookbackDays)
			fmt.Fprintf(out, "  Frequency: %s, %d daily / %d weekly\n",
				settings.Compliance.Frequency.Mode, settings.Compliance.Frequency.DailyLimit, settings.Compliance.Frequency.WeeklyLimit)
			fmt.Fprintf(out, "  Max position size: %.1f%%\n", settings.Sizing.MaxPositionSizePct*100)
			fmt.Fprintf(out, "  Profit levels: %d\n", len(settings.ProfitTaking.Levels))
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to risk settings file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	configCmd.AddCommand(initCmd, validateCmd)
	return configCmd
}
