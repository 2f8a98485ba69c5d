package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SealedAuction/internal/core"
	"SealedAuction/internal/ledger"
	"SealedAuction/internal/projection"

	"github.com/google/uuid"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// JournalRow represents a row in event_log.journal_entries
type JournalRow struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        int64
	JournalType   string
	OrderID       sql.NullInt64
	TimestampUS   int64
}

// RowsFromOutput flattens one engine output into its event row and the
// journal rows of its batch.
func RowsFromOutput(out core.CoreOutput) (EventRow, []JournalRow) {
	env := out.Envelope
	ev := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
	}
	if out.Batch == nil {
		return ev, nil
	}

	journals := make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		journals = append(journals, JournalRow{
			JournalID:     j.JournalID,
			BatchID:       j.BatchID,
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Asset:         assetName(j.AssetID),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			OrderID:       sql.NullInt64{Int64: j.OrderID, Valid: j.OrderID != 0},
			TimestampUS:   j.Timestamp,
		})
	}
	return ev, journals
}

func assetName(id ledger.AssetID) string {
	if name, ok := ledger.GetAssetName(id); ok {
		return name
	}
	return fmt.Sprintf("asset:%d", id)
}

// EventWriter writes events and journals to Postgres using multi-row INSERTs.
type EventWriter struct{}

// WriteEventBatch writes a batch of events to event_log.events. Rows already
// present are skipped, so a retried batch is harmless.
func (w EventWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 7
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)
	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Payload,
			e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, payload, state_hash, prev_hash, timestamp)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal_entries.
func (w EventWriter) WriteJournalBatch(ctx context.Context, ex execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	const cols = 11
	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*cols)
	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.OrderID, j.TimestampUS,
		)
	}

	query := `INSERT INTO event_log.journal_entries
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, asset, amount, journal_type, order_id, timestamp_us)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (journal_id) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for k := 1; k <= n; k++ {
		if k > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+k)
	}
	b.WriteByte(')')
	return b.String()
}

// ChangeFromRows is the read-model view of one persisted event.
func ChangeFromRows(ev EventRow, journals []JournalRow) projection.Change {
	c := projection.Change{
		Sequence:  ev.Sequence,
		EventType: ev.EventType,
		Payload:   ev.Payload,
	}
	for _, j := range journals {
		c.Postings = append(c.Postings, projection.Posting{
			DebitAccount:  j.DebitAccount,
			CreditAccount: j.CreditAccount,
			Asset:         j.Asset,
			Amount:        j.Amount,
		})
	}
	return c
}
