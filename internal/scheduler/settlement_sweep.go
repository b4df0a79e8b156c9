package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SettlementSweeper settles due ledger records
type SettlementSweeper interface {
	SweepSettlements(ctx context.Context) (int64, error)
}

// SettlementSweepJob moves matured pending settlements to settled
type SettlementSweepJob struct {
	sweeper SettlementSweeper
	timeout time.Duration
	log     zerolog.Logger
}

// NewSettlementSweepJob creates a new SettlementSweepJob
func NewSettlementSweepJob(sweeper SettlementSweeper, log zerolog.Logger) *SettlementSweepJob {
	return &SettlementSweepJob{
		sweeper: sweeper,
		timeout: 30 * time.Second,
		log:     log.With().Str("job", "settlement_sweep").Logger(),
	}
}

// Name returns the job name
func (j *SettlementSweepJob) Name() string {
	return "settlement_sweep"
}

// Run executes the settlement sweep
func (j *SettlementSweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	settled, err := j.sweeper.SweepSettlements(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep settlements: %w", err)
	}

	if settled > 0 {
		j.log.Info().Int64("settled", settled).Msg("Settled due records")
	}
	return nil
}
