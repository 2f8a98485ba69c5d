package core

import (
	"context"
	"fmt"
	"time"

	"SealedAuction/internal/event"
	"SealedAuction/internal/pool"
)

// Trigger sweeps the pending pool into a new round and hands its payloads to
// the oracle. It returns as soon as the request is handed off; the round
// completes in OnDecryptedBatch.
func (e *Engine) Trigger(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return 0, e.rejectRound("trigger", ErrAlreadyMatching)
	}
	agg := e.pending.Aggregates()
	if agg.PendingBuyCount == 0 || agg.PendingSellCount == 0 {
		return 0, e.rejectRound("trigger", ErrNoPendingOrders)
	}
	if total := agg.PendingBuyCount + agg.PendingSellCount; total > e.cfg.MaxRoundOrders {
		return 0, e.rejectRound("trigger", fmt.Errorf("%w: %d > %d", ErrTooManyOrders, total, e.cfg.MaxRoundOrders))
	}

	buys, sells := e.pending.Snapshot()
	r := &Round{
		ID:          e.nextRoundID,
		BuyIDs:      buys,
		SellIDs:     sells,
		TriggeredAt: e.cfg.Now(),
	}
	e.nextRoundID++

	req := e.decryptionRequest(r)
	e.sweep(r, r.ID)
	e.rounds[r.ID] = r
	e.state = StateAwaitingDecryption

	if err := e.requester.RequestDecryption(ctx, req); err != nil {
		e.sweep(r, 0)
		delete(e.rounds, r.ID)
		e.state = StateIdle
		return 0, e.rejectRound("trigger", fmt.Errorf("request decryption for round %d: %w", r.ID, err))
	}

	e.emit(&event.RoundTriggered{RoundID: r.ID, BuyCount: len(buys), SellCount: len(sells)}, nil, r.TriggeredAt)

	if e.metrics != nil {
		e.metrics.RoundsTriggered.Inc()
		e.metrics.RoundOrders.Observe(float64(r.Size()))
	}
	e.updatePoolGauges()
	e.log.Info().Int64("round_id", r.ID).Int("buys", len(buys)).Int("sells", len(sells)).Msg("round triggered")

	return r.ID, nil
}

// ResumeRounds re-sends the decryption request of every round still in
// flight, e.g. after restoring a snapshot. The oracle dedups by round id.
func (e *Engine) ResumeRounds(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rounds {
		if err := e.requester.RequestDecryption(ctx, e.decryptionRequest(r)); err != nil {
			return fmt.Errorf("resume round %d: %w", r.ID, err)
		}
		e.log.Info().Int64("round_id", r.ID).Msg("round re-requested")
	}
	return nil
}

// OnDecryptedBatch is the oracle callback. It matches and settles the round
// all-or-nothing. Replays and mismatched batches are rejected without any
// state change.
func (e *Engine) OnDecryptedBatch(ctx context.Context, batch *event.DecryptedBatch) (*SettlementRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The round table is authoritative: a round still in it has not settled.
	// The dedup tiers only tell a replay apart from a round never triggered.
	r, ok := e.rounds[batch.RoundID]
	if !ok {
		settledKey := &event.RoundSettled{RoundID: batch.RoundID}
		if e.idempotency.IsDuplicate(settledKey.EventType().String(), settledKey.IdempotencyKey()) {
			return nil, e.rejectRound("callback", fmt.Errorf("%w: round %d", ErrRoundAlreadySettled, batch.RoundID))
		}
		return nil, e.rejectRound("callback", fmt.Errorf("%w: round %d", ErrUnknownRound, batch.RoundID))
	}
	if batch.BuyCount != len(r.BuyIDs) || batch.SellCount != len(r.SellIDs) || len(batch.Pairs) != r.Size() {
		return nil, e.rejectRound("callback", fmt.Errorf("%w: round %d expects %d+%d pairs, got %d+%d (%d)",
			ErrBatchMismatch, r.ID, len(r.BuyIDs), len(r.SellIDs), batch.BuyCount, batch.SellCount, len(batch.Pairs)))
	}

	start := time.Now()
	now := e.cfg.Now()

	plan, err := e.planSettlement(r, batch, now)
	if err != nil {
		return nil, e.rejectRound("callback", fmt.Errorf("%w: round %d: %v", ErrSettlementAborted, r.ID, err))
	}

	if e.wal != nil {
		if err := e.wal.AppendSettlement(ctx, plan.record, plan.eventResults(), plan.batch); err != nil {
			return nil, e.rejectRound("callback", fmt.Errorf("%w: round %d: write-ahead log: %v", ErrSettlementAborted, r.ID, err))
		}
	}

	e.commit(r, plan, now)

	if e.metrics != nil {
		e.metrics.RoundsSettled.Inc()
		e.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
		e.metrics.DecryptionWait.Observe(now.Sub(r.TriggeredAt).Seconds())
		e.metrics.Trades.Add(float64(plan.record.TradeCount))
		e.metrics.MatchedVolume.Add(float64(plan.record.MatchedVolume))
		e.metrics.ClearingPrice.Set(float64(plan.record.ClearingPrice))
	}
	e.updatePoolGauges()
	e.log.Info().
		Int64("round_id", r.ID).
		Int64("record_id", plan.record.ID).
		Int("trades", plan.record.TradeCount).
		Int64("volume", plan.record.MatchedVolume).
		Int64("clearing_price", plan.record.ClearingPrice).
		Msg("round settled")

	return plan.record.Clone(), nil
}

// sweep stamps every order of r with roundID; 0 releases them again.
func (e *Engine) sweep(r *Round, roundID int64) {
	for _, ids := range [][]pool.OrderID{r.BuyIDs, r.SellIDs} {
		for _, id := range ids {
			e.orders.Get(id).RoundID = roundID
		}
	}
}

func (e *Engine) decryptionRequest(r *Round) *event.DecryptionRequest {
	req := &event.DecryptionRequest{
		RoundID:      r.ID,
		BuyCount:     len(r.BuyIDs),
		SellCount:    len(r.SellIDs),
		BuyOrderIDs:  make([]int64, 0, len(r.BuyIDs)),
		SellOrderIDs: make([]int64, 0, len(r.SellIDs)),
		Payloads:     make([][]byte, 0, r.Size()),
	}
	for _, id := range r.BuyIDs {
		req.BuyOrderIDs = append(req.BuyOrderIDs, int64(id))
		req.Payloads = append(req.Payloads, e.orders.Get(id).Payload)
	}
	for _, id := range r.SellIDs {
		req.SellOrderIDs = append(req.SellOrderIDs, int64(id))
		req.Payloads = append(req.Payloads, e.orders.Get(id).Payload)
	}
	return req
}

func (e *Engine) rejectRound(stage string, err error) error {
	if e.metrics != nil {
		e.metrics.RoundsRejected.WithLabelValues(stage, reasonOf(err)).Inc()
	}
	e.log.Warn().Err(err).Str("stage", stage).Msg("round operation rejected")
	return err
}
