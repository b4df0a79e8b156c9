package compliance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// settlementColumns must match scanSettlement
const settlementColumns = `trade_id, account_id, symbol, side, trade_date, settlement_date, amount, status,
	funded_by_unsettled, funding_settles_on, created_at, settled_at`

// SettlementRepository handles settlement_records operations
type SettlementRepository struct {
	log zerolog.Logger
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(log zerolog.Logger) *SettlementRepository {
	return &SettlementRepository{
		log: log.With().Str("repo", "settlement").Logger(),
	}
}

// Insert stores a new settlement record
func (r *SettlementRepository) Insert(ctx context.Context, q database.Querier, rec SettlementRecord) error {
	query := `
		INSERT INTO settlement_records
		(trade_id, account_id, symbol, side, trade_date, settlement_date, amount, status,
		 funded_by_unsettled, funding_settles_on, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var fundingSettlesOn sql.NullString
	if rec.FundingSettlesOn != nil {
		fundingSettlesOn = sql.NullString{String: domain.FormatDate(*rec.FundingSettlesOn), Valid: true}
	}
	var settledAt sql.NullInt64
	if rec.SettledAt != nil {
		settledAt = sql.NullInt64{Int64: rec.SettledAt.Unix(), Valid: true}
	}

	_, err := q.ExecContext(ctx, query,
		rec.TradeID,
		rec.AccountID,
		rec.Symbol,
		string(rec.Side),
		domain.FormatDate(rec.TradeDate),
		domain.FormatDate(rec.SettlementDate),
		rec.Amount.String(),
		string(rec.Status),
		boolToInt(rec.FundedByUnsettled),
		fundingSettlesOn,
		rec.CreatedAt.Unix(),
		settledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement record: %w", err)
	}

	r.log.Debug().
		Str("trade_id", rec.TradeID).
		Str("account_id", rec.AccountID).
		Str("side", string(rec.Side)).
		Str("amount", rec.Amount.String()).
		Str("settlement_date", domain.FormatDate(rec.SettlementDate)).
		Msg("Settlement record created")
	return nil
}

// Exists reports whether a record with this trade id was already stored
func (r *SettlementRepository) Exists(ctx context.Context, q database.Querier, tradeID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlement_records WHERE trade_id = ?`, tradeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check settlement record: %w", err)
	}
	return count > 0, nil
}

// SettleDue marks pending records whose settlement date has been reached as settled.
// An empty accountID settles every account.
func (r *SettlementRepository) SettleDue(ctx context.Context, q database.Querier, accountID string, today, now time.Time) (int64, error) {
	query := `
		UPDATE settlement_records
		SET status = 'settled', settled_at = ?
		WHERE status = 'pending' AND settlement_date <= ?
	`
	args := []any{now.Unix(), domain.FormatDate(today)}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to settle due records: %w", err)
	}
	settled, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count settled records: %w", err)
	}
	if settled > 0 {
		r.log.Debug().Int64("settled", settled).Str("account_id", accountID).Msg("Settled due records")
	}
	return settled, nil
}

// ListByAccount returns every record for an account, oldest first
func (r *SettlementRepository) ListByAccount(ctx context.Context, q database.Querier, accountID string) ([]SettlementRecord, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_records WHERE account_id = ? ORDER BY trade_date, created_at`
	return r.query(ctx, q, query, accountID)
}

// ListBuys returns the BUY records of one symbol
func (r *SettlementRepository) ListBuys(ctx context.Context, q database.Querier, accountID, symbol string) ([]SettlementRecord, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_records
		WHERE account_id = ? AND symbol = ? AND side = 'BUY'
		ORDER BY trade_date, created_at`
	return r.query(ctx, q, query, accountID, symbol)
}

// HasBuyOn reports whether the account bought symbol on date, ignoring excludeTradeID
func (r *SettlementRepository) HasBuyOn(ctx context.Context, q database.Querier, accountID, symbol string, date time.Time, excludeTradeID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM settlement_records
		WHERE account_id = ? AND symbol = ? AND side = 'BUY' AND trade_date = ? AND trade_id != ?
	`, accountID, symbol, domain.FormatDate(date), excludeTradeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up same-day buy: %w", err)
	}
	return count > 0, nil
}

// Balances returns settled cash (settled SELL/DEPOSIT minus every BUY) and the
// amount of SELL/DEPOSIT proceeds still pending
func (r *SettlementRepository) Balances(ctx context.Context, q database.Querier, accountID string) (settled, pending decimal.Decimal, err error) {
	rows, err := q.QueryContext(ctx, `SELECT side, amount, status FROM settlement_records WHERE account_id = ?`, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	settled, pending = decimal.Zero, decimal.Zero
	for rows.Next() {
		var side, status string
		var amount decimal.Decimal
		if err := rows.Scan(&side, &amount, &status); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("failed to scan balance row: %w", err)
		}

		switch EntrySide(side) {
		case EntryBuy:
			settled = settled.Sub(amount)
		case EntrySell, EntryDeposit:
			if SettlementStatus(status) == StatusSettled {
				settled = settled.Add(amount)
			} else {
				pending = pending.Add(amount)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("error iterating balances: %w", err)
	}
	return settled, pending, nil
}

// LatestPendingProceeds returns the latest settlement date of pending SELL/DEPOSIT
// proceeds, or nil when nothing is pending
func (r *SettlementRepository) LatestPendingProceeds(ctx context.Context, q database.Querier, accountID string) (*time.Time, error) {
	var latest sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT MAX(settlement_date) FROM settlement_records
		WHERE account_id = ? AND status = 'pending' AND side IN ('SELL', 'DEPOSIT')
	`, accountID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending proceeds: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	d, err := domain.ParseDate(latest.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement date: %w", err)
	}
	return &d, nil
}

func (r *SettlementRepository) query(ctx context.Context, q database.Querier, query string, args ...any) ([]SettlementRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement records: %w", err)
	}
	defer rows.Close()

	records := make([]SettlementRecord, 0)
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlement records: %w", err)
	}
	return records, nil
}

func scanSettlement(rows *sql.Rows) (SettlementRecord, error) {
	var rec SettlementRecord
	var side, status, tradeDate, settlementDate string
	var fundedByUnsettled int
	var fundingSettlesOn sql.NullString
	var createdAt int64
	var settledAt sql.NullInt64

	err := rows.Scan(
		&rec.TradeID,
		&rec.AccountID,
		&rec.Symbol,
		&side,
		&tradeDate,
		&settlementDate,
		&rec.Amount,
		&status,
		&fundedByUnsettled,
		&fundingSettlesOn,
		&createdAt,
		&settledAt,
	)
	if err != nil {
		return SettlementRecord{}, fmt.Errorf("failed to scan settlement record: %w", err)
	}

	rec.Side = EntrySide(side)
	rec.Status = SettlementStatus(status)
	rec.FundedByUnsettled = fundedByUnsettled != 0
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()

	if rec.TradeDate, err = domain.ParseDate(tradeDate); err != nil {
		return SettlementRecord{}, fmt.Errorf("failed to parse trade date: %w", err)
	}
	if rec.SettlementDate, err = domain.ParseDate(settlementDate); err != nil {
		return SettlementRecord{}, fmt.Errorf("failed to parse settlement date: %w", err)
	}
	if fundingSettlesOn.Valid {
		d, err := domain.ParseDate(fundingSettlesOn.String)
		if err != nil {
			return SettlementRecord{}, fmt.Errorf("failed to parse funding date: %w", err)
		}
		rec.FundingSettlesOn = &d
	}
	if settledAt.Valid {
		t := time.Unix(settledAt.Int64, 0).UTC()
		rec.SettledAt = &t
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
