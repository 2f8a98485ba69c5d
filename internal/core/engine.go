package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"SealedAuction/internal/event"
	"SealedAuction/internal/ledger"
	fpmath "SealedAuction/internal/math"
	"SealedAuction/internal/observability"
	"SealedAuction/internal/oracle"
	"SealedAuction/internal/pool"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the engine's tunables.
type Config struct {
	// PriceScale is the fixed-point scale of prices: cost = qty * price / PriceScale.
	PriceScale int64

	// MaxRoundOrders caps buys plus sells swept into one round.
	MaxRoundOrders int

	// IdempotencyCapacity sizes the dedup LRU.
	IdempotencyCapacity int

	// Now is the engine clock. Defaults to time.Now in UTC.
	Now func() time.Time

	Logger zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		PriceScale:          fpmath.PriceConfig.Scale,
		MaxRoundOrders:      256,
		IdempotencyCapacity: 100_000,
		Logger:              zerolog.Nop(),
	}
}

// SettlementLog durably records a settlement before it is applied in memory.
// A failing append aborts the round with no state change.
type SettlementLog interface {
	AppendSettlement(ctx context.Context, rec *SettlementRecord, results []event.OrderResult, batch *ledger.Batch) error
}

// CoreOutput is one applied event and the journal batch it produced, if any.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch
}

// Engine owns the order ledger, pending pool, custody balances, round table
// and settlement history. Every mutation runs under one exclusive lock, so
// submit, cancel, trigger and settlement never interleave.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	requester oracle.Requester
	wal       SettlementLog
	metrics   *observability.Metrics
	log       zerolog.Logger

	orders     *pool.OrderStore
	pending    *pool.PendingPool
	balances   *ledger.BalanceTracker
	journalGen *ledger.JournalGenerator
	validator  *ledger.InvariantValidator
	history    *History

	state       RoundState
	rounds      map[int64]*Round
	nextRoundID int64

	idempotency *IdempotencyChecker
	hasher      *StateHasher
	sequence    int64

	outputs chan<- CoreOutput
}

// NewEngine builds an idle engine. outputs may be nil when nothing consumes
// the event stream; dbChecker and metrics are optional.
func NewEngine(
	cfg Config,
	requester oracle.Requester,
	outputs chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*Engine, error) {
	if requester == nil {
		return nil, errors.New("engine needs a decryption requester")
	}
	if cfg.PriceScale <= 0 {
		return nil, fmt.Errorf("price scale must be positive: %d", cfg.PriceScale)
	}
	if cfg.MaxRoundOrders < 2 {
		return nil, fmt.Errorf("round capacity must allow one buy and one sell: %d", cfg.MaxRoundOrders)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	balances := ledger.NewBalanceTracker()
	return &Engine{
		cfg:         cfg,
		requester:   requester,
		metrics:     metrics,
		log:         cfg.Logger,
		orders:      pool.NewOrderStore(),
		pending:     pool.NewPendingPool(),
		balances:    balances,
		journalGen:  ledger.NewJournalGenerator(1, balances),
		validator:   ledger.NewInvariantValidator(balances),
		history:     NewHistory(),
		state:       StateIdle,
		rounds:      make(map[int64]*Round),
		nextRoundID: 1,
		idempotency: NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker, metrics),
		hasher:      NewStateHasher(),
		sequence:    1,
		outputs:     outputs,
	}, nil
}

// SetSettlementLog installs the write-ahead log. Call before serving.
func (e *Engine) SetSettlementLog(wal SettlementLog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wal = wal
}

// Submit escrows deposit from owner's wallet and pools a sealed order.
func (e *Engine) Submit(ctx context.Context, owner uuid.UUID, side pool.Side, payload []byte, deposit int64) (pool.OrderID, error) {
	if side != pool.SideBuy && side != pool.SideSell {
		return 0, e.reject("submit", ErrInvalidSide)
	}
	if len(payload) == 0 {
		return 0, e.reject("submit", ErrInvalidPayload)
	}
	if deposit <= 0 {
		return 0, e.reject("submit", ErrInvalidDeposit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return 0, e.reject("submit", ErrAlreadyMatching)
	}

	now := e.cfg.Now()
	id := e.orders.NextID()
	batch, err := e.journalGen.GenerateEscrow(owner, side.FundingAsset(), deposit, int64(id), now)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return 0, e.reject("submit", fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
		}
		return 0, err
	}
	if err := e.balances.ApplyBatch(batch); err != nil {
		return 0, e.reject("submit", fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
	}

	o := e.orders.Create(owner, side, deposit, payload, now)
	if err := e.pending.Add(o); err != nil {
		panic(fmt.Sprintf("FATAL: fresh order already pooled: %v", err))
	}

	e.emit(&event.OrderSubmitted{
		OrderID:   int64(o.ID),
		Owner:     owner,
		Side:      side.String(),
		Deposit:   deposit,
		CreatedAt: now,
	}, batch, now)

	if e.metrics != nil {
		e.metrics.OrdersSubmitted.WithLabelValues(side.String()).Inc()
	}
	e.updatePoolGauges()
	e.log.Debug().Int64("order_id", int64(o.ID)).Str("side", side.String()).Int64("deposit", deposit).Msg("order submitted")

	return o.ID, nil
}

// Cancel returns a pending order's full deposit to its owner. Orders already
// swept into a round cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, caller uuid.UUID, id pool.OrderID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.orders.Get(id)
	if o == nil {
		return e.reject("cancel", ErrOrderNotFound)
	}
	if o.Owner != caller {
		return e.reject("cancel", ErrNotOwner)
	}
	if o.InRound() {
		return e.reject("cancel", ErrOrderInRound)
	}
	if o.Status != pool.StatusPending {
		return e.reject("cancel", ErrOrderNotPending)
	}

	now := e.cfg.Now()
	batch := e.journalGen.GenerateCancelRefund(o.Owner, o.Side.FundingAsset(), o.Deposit, int64(o.ID), now)
	if err := e.balances.ApplyBatch(batch); err != nil {
		panic(fmt.Sprintf("FATAL: custody cannot refund order %d: %v", o.ID, err))
	}
	if err := o.Transition(pool.StatusCancelled); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
	o.Refunded = o.Deposit
	if err := e.pending.Remove(o); err != nil {
		panic(fmt.Sprintf("FATAL: pending order missing from pool: %v", err))
	}

	e.emit(&event.OrderCancelled{OrderID: int64(o.ID), Owner: o.Owner, Refunded: o.Deposit}, batch, now)

	if e.metrics != nil {
		e.metrics.OrdersCancelled.WithLabelValues(o.Side.String()).Inc()
	}
	e.updatePoolGauges()
	return nil
}

// Deposit credits a participant's wallet. A repeated ref is ignored.
func (e *Engine) Deposit(ctx context.Context, evt *event.CollateralDeposit) error {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, evt.Asset)
	}
	if evt.Amount <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	eventType := evt.EventType().String()
	if e.idempotency.IsDuplicate(eventType, evt.IdempotencyKey()) {
		return nil
	}

	now := e.cfg.Now()
	batch, err := e.journalGen.GenerateDeposit(evt.UserID, assetID, evt.Amount, evt.IdempotencyKey(), now)
	if err != nil {
		return err
	}
	if err := e.balances.ApplyBatch(batch); err != nil {
		return fmt.Errorf("apply deposit: %w", err)
	}

	e.emit(evt, batch, now)
	e.idempotency.MarkProcessed(eventType, evt.IdempotencyKey())
	if e.metrics != nil {
		e.metrics.CollateralMoves.WithLabelValues("in", evt.Asset).Add(float64(evt.Amount))
	}
	return nil
}

// Withdraw debits a participant's available balance. A repeated ref is ignored.
func (e *Engine) Withdraw(ctx context.Context, evt *event.CollateralWithdrawal) error {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, evt.Asset)
	}
	if evt.Amount <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	eventType := evt.EventType().String()
	if e.idempotency.IsDuplicate(eventType, evt.IdempotencyKey()) {
		return nil
	}

	now := e.cfg.Now()
	batch, err := e.journalGen.GenerateWithdrawal(evt.UserID, assetID, evt.Amount, evt.IdempotencyKey(), now)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return err
	}
	if err := e.balances.ApplyBatch(batch); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}

	e.emit(evt, batch, now)
	e.idempotency.MarkProcessed(eventType, evt.IdempotencyKey())
	if e.metrics != nil {
		e.metrics.CollateralMoves.WithLabelValues("out", evt.Asset).Add(float64(evt.Amount))
	}
	return nil
}

// emit hashes and publishes one event. Callers hold the lock.
func (e *Engine) emit(evt event.Event, batch *ledger.Batch, ts time.Time) {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s: %v", evt.EventType(), err))
	}
	e.emitPayload(evt, payload, batch, ts)
}

func (e *Engine) emitPayload(evt event.Event, payload []byte, batch *ledger.Batch, ts time.Time) {
	prev := e.hasher.GetPrevHash()
	env := &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		Timestamp:      ts,
		Payload:        payload,
		StateHash:      e.hasher.ComputeHash(e.sequence, payload),
		PrevHash:       prev,
	}
	e.sequence++

	if e.metrics != nil {
		e.metrics.CoreSequence.Set(float64(env.Sequence))
		if batch != nil {
			for _, j := range batch.Journals {
				e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	if e.outputs != nil {
		// Blocking send: the engine stalls rather than lose an event.
		e.outputs <- CoreOutput{Envelope: env, Batch: batch}
	}
}

func (e *Engine) reject(op string, err error) error {
	if e.metrics != nil {
		e.metrics.OrdersRejected.WithLabelValues(op, reasonOf(err)).Inc()
	}
	return err
}

func reasonOf(err error) string {
	for _, known := range []error{
		ErrInvalidPayload, ErrInvalidDeposit, ErrInvalidSide, ErrNotOwner, ErrOrderNotFound,
		ErrOrderNotPending, ErrOrderInRound, ErrAlreadyMatching, ErrNoPendingOrders,
		ErrTooManyOrders, ErrInsufficientFunds, ErrUnknownRound, ErrRoundAlreadySettled,
		ErrBatchMismatch, ErrSettlementAborted,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "other"
}

func (e *Engine) updatePoolGauges() {
	if e.metrics == nil {
		return
	}
	agg := e.pending.Aggregates()
	e.metrics.PendingOrders.WithLabelValues("buy").Set(float64(agg.PendingBuyCount))
	e.metrics.PendingOrders.WithLabelValues("sell").Set(float64(agg.PendingSellCount))
	e.metrics.PendingDeposit.WithLabelValues("buy").Set(float64(agg.TotalBuyDeposit))
	e.metrics.PendingDeposit.WithLabelValues("sell").Set(float64(agg.TotalSellDeposit))
	e.metrics.RoundState.Set(float64(e.state))
}

// --- Read accessors. None of them expose decrypted values. ---

// Order returns a copy of the order.
func (e *Engine) Order(id pool.OrderID) (*pool.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.orders.Get(id)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// OrdersByOwner returns copies of the owner's orders in submission order.
func (e *Engine) OrdersByOwner(owner uuid.UUID) []*pool.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	orders := e.orders.ByOwner(owner)
	out := make([]*pool.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

// PoolAggregates returns the public pending counters.
func (e *Engine) PoolAggregates() pool.Aggregates {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Aggregates()
}

// Settlement returns a copy of the record with id.
func (e *Engine) Settlement(id int64) (*SettlementRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.history.Get(id)
	if rec == nil {
		return nil, ErrSettlementNotFound
	}
	return rec.Clone(), nil
}

// SettlementCount returns the number of settled rounds.
func (e *Engine) SettlementCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Count()
}

// Settlements pages through history, oldest first.
func (e *Engine) Settlements(offset, limit int) []*SettlementRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.List(offset, limit)
}

// Balance returns the owner's available balance of asset.
func (e *Engine) Balance(owner uuid.UUID, asset ledger.AssetID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances.GetUserAvailableBalance(owner, asset)
}

// Custody returns the collateral held by the auction for asset.
func (e *Engine) Custody(asset ledger.AssetID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances.GetCustodyBalance(asset)
}

// State returns the orchestrator state.
func (e *Engine) State() RoundState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RoundsInFlight returns the ids in the pending-request table.
func (e *Engine) RoundsInFlight() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.rounds))
	for id := range e.rounds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Sequence returns the sequence the next event will carry.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// StateHash returns the hash chain tip.
func (e *Engine) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}
