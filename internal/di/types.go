/**
 * Package di provides dependency injection type definitions.
 *
 * The Container is the single source of truth for every service instance. It is
 * built by Wire() and handed to the HTTP server and the scheduler.
 */
package di

import (
	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/market_hours"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/aristath/tradeguard/internal/modules/risk"
	riskhandlers "github.com/aristath/tradeguard/internal/modules/risk/handlers"
	"github.com/aristath/tradeguard/internal/modules/sizing"
	"github.com/aristath/tradeguard/internal/reliability"
	"github.com/aristath/tradeguard/internal/scheduler"
)

// Container holds all dependencies for the application.
// BrokerClient, Clock and Strategy may be set before InitializeServices to
// replace the defaults.
type Container struct {
	// Database
	LedgerDB *database.DB // Compliance ledger (accounts, settlements, day trades, counters, exit plans)

	// Collaborators
	BrokerClient domain.BrokerClient // Broker gateway (resty client unless overridden)
	Clock        domain.Clock        // Wall clock unless overridden
	Strategy     domain.Strategy     // Optional external strategy
	Calendar     market_hours.BusinessCalendar
	Metrics      *metrics.Collector

	// Repositories
	AccountRepo    *account.Repository
	SettlementRepo *compliance.SettlementRepository
	DayTradeRepo   *compliance.DayTradeRepository
	FrequencyRepo  *compliance.FrequencyRepository
	ExitPlanRepo   *profit_taking.Repository

	// Services
	AccountMonitor      *account.Monitor
	ComplianceManager   *compliance.Manager
	SizingManager       *sizing.Manager
	ProfitTakingManager *profit_taking.Manager
	RiskManager         *risk.Manager
	RiskHandler         *riskhandlers.Handler
	BackupService       *reliability.BackupService // nil when backups are disabled

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c == nil || c.LedgerDB == nil {
		return nil
	}
	return c.LedgerDB.Close()
}
