package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no durable settlement matches the query.
var ErrNotFound = errors.New("not found")

// AuditService reads the durable settlement tables written ahead of every
// in-memory settlement. It is independent of the live engine, so auditors can
// query it against a replica.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// GetSettlementRecord returns the record with its trades and order results.
func (as *AuditService) GetSettlementRecord(ctx context.Context, recordID int64) (*SettlementRecord, error) {
	var rec SettlementRecord
	var hash []byte
	err := as.db.QueryRowContext(ctx, `
		SELECT record_id, round_id, clearing_price, matched_volume, trade_count, state_hash, settled_at
		FROM settlement.records
		WHERE record_id = $1
	`, recordID).Scan(
		&rec.RecordID, &rec.RoundID, &rec.ClearingPrice, &rec.MatchedVolume,
		&rec.TradeCount, &hash, &rec.SettledAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("settlement %d: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query settlement %d: %w", recordID, err)
	}
	rec.StateHash = hex.EncodeToString(hash)

	rec.Trades, err = as.queryTrades(ctx, `
		SELECT record_id, trade_index, buy_order_id, sell_order_id, price, quantity
		FROM settlement.trades
		WHERE record_id = $1
		ORDER BY trade_index
	`, recordID)
	if err != nil {
		return nil, err
	}

	rows, err := as.db.QueryContext(ctx, `
		SELECT order_id, status, settled_price, settled_amount, refunded
		FROM settlement.order_results
		WHERE record_id = $1
		ORDER BY order_id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query order results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r OrderResult
		if err := rows.Scan(&r.OrderID, &r.Status, &r.SettledPrice, &r.SettledAmount, &r.Refunded); err != nil {
			return nil, err
		}
		rec.Orders = append(rec.Orders, r)
	}
	return &rec, rows.Err()
}

// TradesByOrder returns every fill the order took part in, on either side,
// in settlement order.
func (as *AuditService) TradesByOrder(ctx context.Context, orderID int64) ([]Trade, error) {
	return as.queryTrades(ctx, `
		SELECT record_id, trade_index, buy_order_id, sell_order_id, price, quantity
		FROM settlement.trades
		WHERE buy_order_id = $1 OR sell_order_id = $1
		ORDER BY record_id, trade_index
	`, orderID)
}

// VerifyIntegrity cross-checks each record's header against its trade rows.
func (as *AuditService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if err := as.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlement.records`).Scan(&report.Records); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	rows, err := as.db.QueryContext(ctx, `
		SELECT r.record_id,
		       r.trade_count <> COUNT(t.trade_index),
		       r.matched_volume <> COALESCE(SUM(t.quantity), 0)
		FROM settlement.records r
		LEFT JOIN settlement.trades t ON t.record_id = r.record_id
		GROUP BY r.record_id, r.trade_count, r.matched_volume
		HAVING r.trade_count <> COUNT(t.trade_index)
		    OR r.matched_volume <> COALESCE(SUM(t.quantity), 0)
		ORDER BY r.record_id
	`)
	if err != nil {
		return nil, fmt.Errorf("verify records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var countBad, volumeBad bool
		if err := rows.Scan(&id, &countBad, &volumeBad); err != nil {
			return nil, err
		}
		if countBad {
			report.TradeCountBreaks = append(report.TradeCountBreaks, id)
		}
		if volumeBad {
			report.VolumeBreaks = append(report.VolumeBreaks, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.TradeCountBreaks) == 0 && len(report.VolumeBreaks) == 0
	return report, nil
}

func (as *AuditService) queryTrades(ctx context.Context, q string, arg int64) ([]Trade, error) {
	rows, err := as.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	trades := []Trade{}
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.RecordID, &t.Index, &t.BuyOrderID, &t.SellOrderID, &t.Price, &t.Quantity); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
