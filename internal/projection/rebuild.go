package projection

import (
	"context"
	"database/sql"
	"fmt"

	"SealedAuction/internal/event"
	"SealedAuction/internal/pool"

	"github.com/rs/zerolog"
)

// RebuildProjections discards the read model and derives it again from
// event_log. Run it with the engine stopped, or the watermark will race the
// persistence worker.
func RebuildProjections(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.orders`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	steps := []struct {
		name string
		sql  string
		args []any
	}{
		{"balances", `
			INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
			SELECT account_path, asset, SUM(delta), MAX(sequence)
			FROM (
				SELECT debit_account AS account_path, asset, amount AS delta, sequence
				FROM event_log.journal_entries
				UNION ALL
				SELECT credit_account, asset, -amount, sequence
				FROM event_log.journal_entries
			) postings
			GROUP BY account_path, asset`, nil},
		{"submitted orders", `
			INSERT INTO projections.orders (order_id, owner, side, status, deposit, last_sequence)
			SELECT (payload->>'order_id')::BIGINT, (payload->>'owner')::UUID, payload->>'side',
			       $2, (payload->>'deposit')::BIGINT, sequence
			FROM event_log.events
			WHERE event_type = $1`,
			[]any{event.EventTypeOrderSubmitted.String(), pool.StatusPending.String()}},
		{"cancelled orders", `
			UPDATE projections.orders o
			SET status = $2, refunded = (e.payload->>'refunded')::BIGINT, last_sequence = e.sequence
			FROM event_log.events e
			WHERE e.event_type = $1 AND o.order_id = (e.payload->>'order_id')::BIGINT`,
			[]any{event.EventTypeOrderCancelled.String(), pool.StatusCancelled.String()}},
		{"settled orders", `
			UPDATE projections.orders o
			SET status = r.value->>'status',
			    settled_price = (r.value->>'settled_price')::BIGINT,
			    settled_amount = (r.value->>'settled_amount')::BIGINT,
			    refunded = (r.value->>'refunded')::BIGINT,
			    record_id = (e.payload->>'record_id')::BIGINT,
			    last_sequence = e.sequence
			FROM event_log.events e, jsonb_array_elements(e.payload->'orders') r
			WHERE e.event_type = $1 AND o.order_id = (r.value->>'order_id')::BIGINT`,
			[]any{event.EventTypeRoundSettled.String()}},
		{"watermark", `
			INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
			SELECT 'main', MAX(sequence), NOW() FROM event_log.events
			HAVING MAX(sequence) IS NOT NULL`, nil},
	}
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.sql, s.args...); err != nil {
			return fmt.Errorf("rebuild %s: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Info().Msg("projection rebuild complete")
	return nil
}
