package core

import (
	"encoding/json"
	"fmt"
	"time"

	"SealedAuction/internal/event"
	"SealedAuction/internal/ledger"
	"SealedAuction/internal/matching"
	fpmath "SealedAuction/internal/math"
	"SealedAuction/internal/pool"
)

// orderOutcome is the staged final state of one swept order.
type orderOutcome struct {
	order  *pool.Order
	status pool.Status
	price  int64
	amount int64
	refund int64
}

// settlementPlan is everything a round will change, computed before any of
// it is applied.
type settlementPlan struct {
	batch    *ledger.Batch
	outcomes []orderOutcome
	record   *SettlementRecord
	swept    map[ledger.AssetID]int64
	payload  []byte // RoundSettled event body, hashed into record.StateHash
	settled  *event.RoundSettled
}

type fill struct {
	qty   int64 // base filled
	quote int64 // quote paid (buys) or received (sells)
}

// planSettlement matches the round and stages every custody release into one
// batch, then checks conservation and that the batch can be applied.
func (e *Engine) planSettlement(r *Round, batch *event.DecryptedBatch, now time.Time) (*settlementPlan, error) {
	scale := e.cfg.PriceScale
	backed := make(map[int64]int64, r.Size())

	entries := func(ids []pool.OrderID, pairs []event.DecryptedPair) []matching.Entry {
		out := make([]matching.Entry, len(ids))
		for i, id := range ids {
			o := e.orders.Get(id)
			qty := depositBacked(o, pairs[i], scale)
			backed[int64(id)] = qty
			out[i] = matching.Entry{OrderID: int64(id), Price: max(pairs[i].Price, 0), Quantity: qty}
		}
		return out
	}
	buys := entries(r.BuyIDs, batch.Pairs[:batch.BuyCount])
	sells := entries(r.SellIDs, batch.Pairs[batch.BuyCount:])

	res := matching.Match(buys, sells)

	plan := &settlementPlan{
		batch: e.journalGen.BeginBatch(fmt.Sprintf("round:%d", r.ID), now),
		swept: make(map[ledger.AssetID]int64, 2),
	}
	fills := make(map[int64]*fill, r.Size())
	fillOf := func(id int64) *fill {
		f, ok := fills[id]
		if !ok {
			f = &fill{}
			fills[id] = f
		}
		return f
	}

	matched := make([]pool.OrderID, 0)
	seen := make(map[int64]bool)
	for _, tr := range res.Trades {
		buyer := e.orders.Get(pool.OrderID(tr.BuyOrderID))
		seller := e.orders.Get(pool.OrderID(tr.SellOrderID))
		cost := fpmath.QuoteCost(tr.Quantity, tr.Price, scale)

		plan.batch.AddRelease(buyer.Owner, ledger.AssetBase, tr.Quantity, ledger.JournalTypeTradeBase, tr.BuyOrderID)
		plan.batch.AddRelease(seller.Owner, ledger.AssetQuote, cost, ledger.JournalTypeTradeQuote, tr.SellOrderID)

		bf, sf := fillOf(tr.BuyOrderID), fillOf(tr.SellOrderID)
		bf.qty += tr.Quantity
		bf.quote += cost
		sf.qty += tr.Quantity
		sf.quote += cost

		for _, id := range []int64{tr.BuyOrderID, tr.SellOrderID} {
			if !seen[id] {
				seen[id] = true
				matched = append(matched, pool.OrderID(id))
			}
		}
	}

	for _, ids := range [][]pool.OrderID{r.BuyIDs, r.SellIDs} {
		for _, id := range ids {
			o := e.orders.Get(id)
			asset := o.Side.FundingAsset()
			plan.swept[asset] += o.Deposit

			out := orderOutcome{order: o}
			f := fills[int64(id)]
			if f == nil || f.qty == 0 {
				out.status = pool.StatusRefunded
				out.refund = o.Deposit
				plan.batch.AddRelease(o.Owner, asset, out.refund, ledger.JournalTypeUnmatchedRefund, int64(id))
			} else {
				consumed := f.qty
				if o.Side == pool.SideBuy {
					consumed = f.quote
				}
				out.refund = o.Deposit - consumed
				if out.refund < 0 {
					return nil, fmt.Errorf("order %d consumed %d beyond deposit %d", id, consumed, o.Deposit)
				}
				out.status = pool.StatusMatched
				if f.qty < backed[int64(id)] {
					out.status = pool.StatusPartiallyMatched
				}
				out.amount = f.qty
				out.price = fpmath.AveragePrice(f.quote, f.qty, scale)
				plan.batch.AddRelease(o.Owner, asset, out.refund, ledger.JournalTypeFillRefund, int64(id))
			}
			plan.outcomes = append(plan.outcomes, out)
		}
	}

	if err := e.validator.ValidateRelease(plan.batch, plan.swept); err != nil {
		return nil, fmt.Errorf("conservation: %w", err)
	}
	if err := e.balances.CanApply(plan.batch); err != nil {
		return nil, err
	}

	plan.record = &SettlementRecord{
		ID:              e.history.NextID(),
		RoundID:         r.ID,
		ClearingPrice:   res.ClearingPrice,
		MatchedVolume:   res.Volume(),
		TradeCount:      len(res.Trades),
		Timestamp:       now,
		MatchedOrderIDs: matched,
		Trades:          res.Trades,
	}
	plan.settled = &event.RoundSettled{
		RecordID:      plan.record.ID,
		RoundID:       r.ID,
		ClearingPrice: plan.record.ClearingPrice,
		MatchedVolume: plan.record.MatchedVolume,
		TradeCount:    plan.record.TradeCount,
		Orders:        plan.eventResults(),
	}
	payload, err := json.Marshal(plan.settled)
	if err != nil {
		return nil, fmt.Errorf("marshal settlement: %w", err)
	}
	plan.payload = payload
	plan.record.StateHash = e.hasher.Peek(e.sequence, payload)

	return plan, nil
}

// depositBacked clamps a decrypted quantity to what the deposit can pay for:
// a buyer's quote at its own limit price, a seller's base one for one.
// Negative values never come out of a well-formed payload and trade nothing.
func depositBacked(o *pool.Order, pair event.DecryptedPair, scale int64) int64 {
	if pair.Price < 0 || pair.Quantity <= 0 {
		return 0
	}
	if o.Side == pool.SideBuy {
		return min(pair.Quantity, fpmath.MaxAffordable(o.Deposit, pair.Price, scale))
	}
	return min(pair.Quantity, o.Deposit)
}

func (p *settlementPlan) eventResults() []event.OrderResult {
	out := make([]event.OrderResult, len(p.outcomes))
	for i, oc := range p.outcomes {
		out[i] = event.OrderResult{
			OrderID:       int64(oc.order.ID),
			Status:        oc.status.String(),
			SettledPrice:  oc.price,
			SettledAmount: oc.amount,
			Refunded:      oc.refund,
		}
	}
	return out
}

// commit applies a validated plan. Nothing in here may fail: every check ran
// in planSettlement, so a failure is a bug and halts the engine.
func (e *Engine) commit(r *Round, plan *settlementPlan, now time.Time) {
	if err := e.balances.ApplyBatch(plan.batch); err != nil {
		panic(fmt.Sprintf("FATAL: validated settlement batch rejected: %v", err))
	}

	for _, oc := range plan.outcomes {
		if err := oc.order.Transition(oc.status); err != nil {
			panic(fmt.Sprintf("FATAL: %v", err))
		}
		oc.order.SettledPrice = oc.price
		oc.order.SettledAmount = oc.amount
		oc.order.Refunded = oc.refund

		if e.metrics != nil && oc.refund > 0 {
			asset, _ := ledger.GetAssetName(oc.order.Side.FundingAsset())
			e.metrics.Refunds.WithLabelValues(asset, oc.status.String()).Add(float64(oc.refund))
		}
	}

	e.pending.Reset()
	delete(e.rounds, r.ID)
	e.state = StateIdle
	e.history.Append(plan.record)

	if err := e.validator.ValidateCustody(nil); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated after round %d: %v", r.ID, err))
	}
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated after round %d: %v", r.ID, err))
	}

	e.emitPayload(plan.settled, plan.payload, plan.batch, now)
	if e.hasher.GetPrevHash() != plan.record.StateHash {
		panic("FATAL: settlement hash diverged from the logged record")
	}
	e.idempotency.MarkProcessed(plan.settled.EventType().String(), plan.settled.IdempotencyKey())
}
