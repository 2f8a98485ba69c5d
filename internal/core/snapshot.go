package core

import (
	"fmt"
	"time"

	"SealedAuction/internal/ledger"
	"SealedAuction/internal/pool"
)

// BalanceEntry is one account balance in a snapshot.
type BalanceEntry struct {
	Account ledger.AccountKey `json:"account"`
	Amount  int64             `json:"amount"`
}

// SnapshotState is the complete engine state, JSON-serializable.
type SnapshotState struct {
	TakenAt         time.Time `json:"taken_at"`
	Sequence        int64     `json:"sequence"` // next event sequence
	StateHash       [32]byte  `json:"state_hash"`
	JournalSequence int64     `json:"journal_sequence"`

	State       RoundState `json:"state"`
	NextRoundID int64      `json:"next_round_id"`
	Rounds      []*Round   `json:"rounds"`

	NextOrderID  pool.OrderID   `json:"next_order_id"`
	Orders       []*pool.Order  `json:"orders"`
	PendingBuys  []pool.OrderID `json:"pending_buys"`
	PendingSells []pool.OrderID `json:"pending_sells"`

	Balances        []BalanceEntry      `json:"balances"`
	History         []*SettlementRecord `json:"history"`
	IdempotencyKeys []string            `json:"idempotency_keys"`
}

// Snapshot captures a deep copy of the engine state.
func (e *Engine) Snapshot() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &SnapshotState{
		TakenAt:         e.cfg.Now(),
		Sequence:        e.sequence,
		StateHash:       e.hasher.GetPrevHash(),
		JournalSequence: e.journalGen.Sequence(),
		State:           e.state,
		NextRoundID:     e.nextRoundID,
		NextOrderID:     e.orders.NextID(),
		History:         append([]*SettlementRecord(nil), e.history.all()...),
		IdempotencyKeys: e.idempotency.lru.Keys(),
	}
	for _, r := range e.rounds {
		cp := *r
		cp.BuyIDs = append([]pool.OrderID(nil), r.BuyIDs...)
		cp.SellIDs = append([]pool.OrderID(nil), r.SellIDs...)
		snap.Rounds = append(snap.Rounds, &cp)
	}
	for _, o := range e.orders.All() {
		snap.Orders = append(snap.Orders, o.Clone())
	}
	snap.PendingBuys, snap.PendingSells = e.pending.Snapshot()
	for k, v := range e.balances.Snapshot() {
		snap.Balances = append(snap.Balances, BalanceEntry{Account: k, Amount: v})
	}
	return snap
}

// Restore replaces the engine state with snap and checks that custody still
// covers exactly the pooled deposits. Call before serving.
func (e *Engine) Restore(snap *SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	orders := pool.NewOrderStore()
	restored := make([]*pool.Order, len(snap.Orders))
	for i, o := range snap.Orders {
		restored[i] = o.Clone()
	}
	orders.Restore(restored, snap.NextOrderID)

	pending := pool.NewPendingPool()
	for _, ids := range [][]pool.OrderID{snap.PendingBuys, snap.PendingSells} {
		for _, id := range ids {
			o := orders.Get(id)
			if o == nil || o.Status != pool.StatusPending {
				return fmt.Errorf("snapshot pools order %d which is not pending", id)
			}
			if err := pending.Add(o); err != nil {
				return fmt.Errorf("snapshot pool: %w", err)
			}
		}
	}

	rounds := make(map[int64]*Round, len(snap.Rounds))
	for _, r := range snap.Rounds {
		for _, ids := range [][]pool.OrderID{r.BuyIDs, r.SellIDs} {
			for _, id := range ids {
				if o := orders.Get(id); o == nil || !o.InRound() || o.RoundID != r.ID {
					return fmt.Errorf("round %d references order %d outside the round", r.ID, id)
				}
			}
		}
		rounds[r.ID] = r
	}
	if (len(rounds) > 0) != (snap.State == StateAwaitingDecryption) {
		return fmt.Errorf("snapshot state %s inconsistent with %d rounds in flight", snap.State, len(rounds))
	}

	balances := ledger.NewBalanceTracker()
	entries := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for _, b := range snap.Balances {
		entries[b.Account] = b.Amount
	}
	balances.Restore(entries)

	validator := ledger.NewInvariantValidator(balances)
	agg := pending.Aggregates()
	if err := validator.ValidateCustody(map[ledger.AssetID]int64{
		ledger.AssetQuote: agg.TotalBuyDeposit,
		ledger.AssetBase:  agg.TotalSellDeposit,
	}); err != nil {
		return fmt.Errorf("snapshot custody: %w", err)
	}
	if err := validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("snapshot balances: %w", err)
	}

	history := NewHistory()
	history.restore(snap.History)

	e.orders = orders
	e.pending = pending
	e.rounds = rounds
	e.state = snap.State
	e.nextRoundID = max(snap.NextRoundID, 1)
	e.balances = balances
	e.validator = validator
	e.journalGen = ledger.NewJournalGenerator(snap.JournalSequence, balances)
	e.history = history
	e.sequence = max(snap.Sequence, 1)
	e.hasher.SetPrevHash(snap.StateHash)
	e.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	e.updatePoolGauges()
	e.log.Info().
		Int64("sequence", e.sequence).
		Int("orders", orders.Len()).
		Int("settlements", history.Count()).
		Str("state", e.state.String()).
		Msg("engine restored from snapshot")
	return nil
}
