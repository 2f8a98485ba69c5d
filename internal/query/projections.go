package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AccountBalances lists the owner's projected ledger accounts.
func (as *AuditService) AccountBalances(ctx context.Context, owner uuid.UUID) ([]AccountBalance, error) {
	rows, err := as.db.QueryContext(ctx, `
		SELECT account_path, asset, balance, last_sequence
		FROM projections.balances
		WHERE account_path LIKE 'user:' || $1 || ':%'
		ORDER BY account_path
	`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountPath, &b.Asset, &b.Balance, &b.LastSequence); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// OrderHistory returns every order the owner has submitted, newest first,
// including cancelled and settled ones.
func (as *AuditService) OrderHistory(ctx context.Context, owner uuid.UUID) ([]OrderState, error) {
	rows, err := as.db.QueryContext(ctx, `
		SELECT order_id, side, status, deposit, settled_price, settled_amount, refunded, record_id, last_sequence
		FROM projections.orders
		WHERE owner = $1
		ORDER BY order_id DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderState
	for rows.Next() {
		var o OrderState
		var record sql.NullInt64
		if err := rows.Scan(&o.OrderID, &o.Side, &o.Status, &o.Deposit, &o.SettledPrice,
			&o.SettledAmount, &o.Refunded, &record, &o.LastSequence); err != nil {
			return nil, err
		}
		if record.Valid {
			o.RecordID = &record.Int64
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ProjectionWatermark is the last event sequence folded into the read model.
func (as *AuditService) ProjectionWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := as.db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'`,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}
