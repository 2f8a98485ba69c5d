package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"SealedAuction/internal/core"
	"SealedAuction/internal/event"
	"SealedAuction/internal/ledger"
)

// SettlementWAL makes a round durable before the engine applies it. The whole
// round goes in one transaction: record, trades, per-order results and the
// custody releases.
//
// A round re-settled after a restart replaces its earlier rows; the engine
// only applies what was last written.
type SettlementWAL struct {
	db *sql.DB
}

func NewSettlementWAL(db *sql.DB) *SettlementWAL {
	return &SettlementWAL{db: db}
}

var _ core.SettlementLog = (*SettlementWAL)(nil)

func (w *SettlementWAL) AppendSettlement(ctx context.Context, rec *core.SettlementRecord, results []event.OrderResult, batch *ledger.Batch) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"settlement.journal_entries", "settlement.order_results", "settlement.trades"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE record_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlement.records
			(record_id, round_id, clearing_price, matched_volume, trade_count, state_hash, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (record_id) DO UPDATE SET
			round_id = EXCLUDED.round_id,
			clearing_price = EXCLUDED.clearing_price,
			matched_volume = EXCLUDED.matched_volume,
			trade_count = EXCLUDED.trade_count,
			state_hash = EXCLUDED.state_hash,
			settled_at = EXCLUDED.settled_at
	`, rec.ID, rec.RoundID, rec.ClearingPrice, rec.MatchedVolume, rec.TradeCount, rec.StateHash[:], rec.Timestamp); err != nil {
		return fmt.Errorf("insert record %d: %w", rec.ID, err)
	}

	for i, tr := range rec.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement.trades (record_id, trade_index, buy_order_id, sell_order_id, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.ID, i, tr.BuyOrderID, tr.SellOrderID, tr.Price, tr.Quantity); err != nil {
			return fmt.Errorf("insert trade %d: %w", i, err)
		}
	}

	for _, r := range results {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement.order_results (record_id, order_id, status, settled_price, settled_amount, refunded)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.ID, r.OrderID, r.Status, r.SettledPrice, r.SettledAmount, r.Refunded); err != nil {
			return fmt.Errorf("insert result for order %d: %w", r.OrderID, err)
		}
	}

	for _, j := range batch.Journals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement.journal_entries
				(journal_id, record_id, debit_account, credit_account, asset, amount, journal_type, order_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, j.JournalID, rec.ID, j.DebitAccount.AccountPath(), j.CreditAccount.AccountPath(),
			assetName(j.AssetID), j.Amount, j.JournalType.String(), j.OrderID); err != nil {
			return fmt.Errorf("insert journal %s: %w", j.JournalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement %d: %w", rec.ID, err)
	}
	return nil
}
