// Command riskctl is the operator CLI for tradeguard: settlement dates,
// account compliance status and risk settings files.
package main

import (
	"os"

	"github.com/aristath/tradeguard/cmd/riskctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
