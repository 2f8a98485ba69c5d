package core

import (
	"time"

	"SealedAuction/internal/pool"
)

// RoundState is the orchestrator state machine. Submit, cancel and trigger
// are accepted only in StateIdle; decrypted batches only while awaiting.
type RoundState uint8

const (
	StateIdle RoundState = iota
	StateAwaitingDecryption
)

func (s RoundState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDecryption:
		return "awaiting_decryption"
	default:
		return "unknown"
	}
}

// Round is an entry in the pending-request table: the snapshot a trigger
// handed to the oracle, waiting for its decrypted batch.
type Round struct {
	ID          int64          `json:"id"`
	BuyIDs      []pool.OrderID `json:"buy_ids"`
	SellIDs     []pool.OrderID `json:"sell_ids"`
	TriggeredAt time.Time      `json:"triggered_at"`
}

// Size is the number of orders swept into the round.
func (r *Round) Size() int {
	return len(r.BuyIDs) + len(r.SellIDs)
}
