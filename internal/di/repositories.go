package di

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the ledger repositories
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.AccountRepo = account.NewRepository(log)
	container.SettlementRepo = compliance.NewSettlementRepository(log)
	container.DayTradeRepo = compliance.NewDayTradeRepository(log)
	container.FrequencyRepo = compliance.NewFrequencyRepository(log)
	container.ExitPlanRepo = profit_taking.NewRepository(log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
