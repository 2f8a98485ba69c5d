package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderSubmitted is emitted once a sealed order is escrowed and pooled.
// The payload ciphertext is deliberately not part of the record.
type OrderSubmitted struct {
	OrderID   int64     `json:"order_id"`
	Owner     uuid.UUID `json:"owner"`
	Side      string    `json:"side"`
	Deposit   int64     `json:"deposit"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *OrderSubmitted) IdempotencyKey() string { return fmt.Sprintf("order:%d", e.OrderID) }
func (e *OrderSubmitted) EventType() EventType   { return EventTypeOrderSubmitted }

type OrderCancelled struct {
	OrderID  int64     `json:"order_id"`
	Owner    uuid.UUID `json:"owner"`
	Refunded int64     `json:"refunded"`
}

func (e *OrderCancelled) IdempotencyKey() string { return fmt.Sprintf("order:%d:cancel", e.OrderID) }
func (e *OrderCancelled) EventType() EventType   { return EventTypeOrderCancelled }

type RoundTriggered struct {
	RoundID   int64 `json:"round_id"`
	BuyCount  int   `json:"buy_count"`
	SellCount int   `json:"sell_count"`
}

func (e *RoundTriggered) IdempotencyKey() string { return fmt.Sprintf("round:%d:trigger", e.RoundID) }
func (e *RoundTriggered) EventType() EventType   { return EventTypeRoundTriggered }

// OrderResult is the final state of one order in a settled round.
type OrderResult struct {
	OrderID       int64  `json:"order_id"`
	Status        string `json:"status"`
	SettledPrice  int64  `json:"settled_price"`
	SettledAmount int64  `json:"settled_amount"`
	Refunded      int64  `json:"refunded"`
}

type RoundSettled struct {
	RecordID      int64         `json:"record_id"`
	RoundID       int64         `json:"round_id"`
	ClearingPrice int64         `json:"clearing_price"`
	MatchedVolume int64         `json:"matched_volume"`
	TradeCount    int           `json:"trade_count"`
	Orders        []OrderResult `json:"orders"`
}

func (e *RoundSettled) IdempotencyKey() string { return fmt.Sprintf("round:%d:settle", e.RoundID) }
func (e *RoundSettled) EventType() EventType   { return EventTypeRoundSettled }
