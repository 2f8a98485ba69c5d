package query_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"SealedAuction/internal/query"
	"SealedAuction/internal/testutil"

	"github.com/stretchr/testify/require"
)

// seedRound writes one settled round the way the settlement log lays it out:
// buys 10r+1 and 10r+2 both fill against sell 10r+3.
func seedRound(t *testing.T, db *sql.DB, recordID int64, volume int64) {
	t.Helper()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO settlement.records (record_id, round_id, clearing_price, matched_volume, trade_count, state_hash, settled_at)
		VALUES ($1, $1, 11, $2, 2, $3, $4)
	`, recordID, volume, []byte{0xde, 0xad}, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO settlement.trades (record_id, trade_index, buy_order_id, sell_order_id, price, quantity)
		VALUES ($1, 0, $2, $4, 11, 4), ($1, 1, $3, $4, 11, 6)
	`, recordID, recordID*10+1, recordID*10+2, recordID*10+3)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO settlement.order_results (record_id, order_id, status, settled_price, settled_amount, refunded)
		VALUES ($1, $2, 'matched', 11, 4, 0), ($1, $3, 'matched', 11, 6, 0), ($1, $4, 'matched', 11, 10, 0)
	`, recordID, recordID*10+1, recordID*10+2, recordID*10+3)
	require.NoError(t, err)
}

func TestAuditService_GetSettlementRecord(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	seedRound(t, db, 1, 10)

	as := query.NewAuditService(db)
	rec, err := as.GetSettlementRecord(context.Background(), 1)
	require.NoError(t, err)

	require.Equal(t, int64(11), rec.ClearingPrice)
	require.Equal(t, "dead", rec.StateHash)
	require.Len(t, rec.Trades, 2)
	require.Equal(t, int64(6), rec.Trades[1].Quantity)
	require.Len(t, rec.Orders, 3)
	require.Equal(t, "matched", rec.Orders[2].Status)

	_, err = as.GetSettlementRecord(context.Background(), 99)
	if !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditService_TradesByOrder(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	seedRound(t, db, 1, 10)

	as := query.NewAuditService(db)

	sellTrades, err := as.TradesByOrder(context.Background(), 13)
	require.NoError(t, err)
	require.Len(t, sellTrades, 2, "sell side matches both fills")

	buyTrades, err := as.TradesByOrder(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, buyTrades, 1)
	require.Equal(t, 1, buyTrades[0].Index)

	none, err := as.TradesByOrder(context.Background(), 42)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestAuditService_VerifyIntegrity(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	seedRound(t, db, 1, 10)
	seedRound(t, db, 2, 11) // header claims more volume than its trades carry

	report, err := query.NewAuditService(db).VerifyIntegrity(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), report.Records)
	require.False(t, report.IsHealthy)
	require.Equal(t, []int64{2}, report.VolumeBreaks)
	require.Empty(t, report.TradeCountBreaks)
}
