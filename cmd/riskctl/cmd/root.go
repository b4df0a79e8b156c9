package cmd

import (
	"github.com/aristath/tradeguard/internal/config"
	"github.com/spf13/cobra"
)

var riskConfigFile string

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "riskctl",
		Short: "Operator tooling for the tradeguard risk engine",
		Long: `riskctl inspects the tradeguard compliance ledger and risk settings.

It provides tools for:
  - Computing settlement dates for a trade date
  - Printing an account's PDT, settled-cash and frequency status
  - Generating and validating risk settings files`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&riskConfigFile, "config", "c", "", "risk settings file (defaults to RISK_CONFIG_FILE or built-in defaults)")

	root.AddCommand(
		newSettlementDateCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadRiskSettings reads --config when given, otherwise the defaults
func loadRiskSettings() (*config.RiskSettings, error) {
	if riskConfigFile == "" {
		return config.DefaultRiskSettings(), nil
	}
	return config.LoadRiskSettings(riskConfigFile)
}
