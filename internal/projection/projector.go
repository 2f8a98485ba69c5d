package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"SealedAuction/internal/event"
	"SealedAuction/internal/pool"
)

const watermarkID = "main"

// Change is one persisted event as the read model sees it.
type Change struct {
	Sequence  int64
	EventType string
	Payload   []byte
	Postings  []Posting
}

// Posting is a single double-entry movement of a change.
type Posting struct {
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        int64
}

// Projector keeps the projections schema in step with the event log. It is
// applied inside the transaction that writes the events, so the read model
// commits or rolls back together with them.
type Projector struct{}

// Apply folds changes into the projection tables. Changes at or below the
// stored watermark are skipped.
func (Projector) Apply(ctx context.Context, tx *sql.Tx, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	var watermark int64
	err := tx.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = $1 FOR UPDATE`,
		watermarkID,
	).Scan(&watermark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read watermark: %w", err)
	}

	last := watermark
	for _, c := range changes {
		if c.Sequence <= last {
			continue
		}
		for _, p := range c.Postings {
			if err := applyPosting(ctx, tx, p, c.Sequence); err != nil {
				return fmt.Errorf("balance projection seq=%d: %w", c.Sequence, err)
			}
		}
		if err := applyOrderChange(ctx, tx, c); err != nil {
			return fmt.Errorf("order projection seq=%d: %w", c.Sequence, err)
		}
		last = c.Sequence
	}
	if last == watermark {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, watermarkID, last); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

func applyPosting(ctx context.Context, tx *sql.Tx, p Posting, seq int64) error {
	const upsert = `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4`

	// Debits add to an account and credits draw it down, as in the ledger.
	if _, err := tx.ExecContext(ctx, upsert, p.DebitAccount, p.Asset, p.Amount, seq); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, upsert, p.CreditAccount, p.Asset, -p.Amount, seq)
	return err
}

func applyOrderChange(ctx context.Context, tx *sql.Tx, c Change) error {
	switch c.EventType {
	case event.EventTypeOrderSubmitted.String():
		var e event.OrderSubmitted
		if err := json.Unmarshal(c.Payload, &e); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.orders (order_id, owner, side, status, deposit, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (order_id) DO NOTHING
		`, e.OrderID, e.Owner, e.Side, pool.StatusPending.String(), e.Deposit, c.Sequence)
		return err

	case event.EventTypeOrderCancelled.String():
		var e event.OrderCancelled
		if err := json.Unmarshal(c.Payload, &e); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.orders
			SET status = $2, refunded = $3, last_sequence = $4
			WHERE order_id = $1
		`, e.OrderID, pool.StatusCancelled.String(), e.Refunded, c.Sequence)
		return err

	case event.EventTypeRoundSettled.String():
		var e event.RoundSettled
		if err := json.Unmarshal(c.Payload, &e); err != nil {
			return err
		}
		for _, o := range e.Orders {
			if _, err := tx.ExecContext(ctx, `
				UPDATE projections.orders
				SET status = $2, settled_price = $3, settled_amount = $4, refunded = $5,
				    record_id = $6, last_sequence = $7
				WHERE order_id = $1
			`, o.OrderID, o.Status, o.SettledPrice, o.SettledAmount, o.Refunded, e.RecordID, c.Sequence); err != nil {
				return err
			}
		}
	}
	return nil
}
