package pool

import (
	"fmt"
	"strings"
	"time"

	"SealedAuction/internal/ledger"

	"github.com/google/uuid"
)

// OrderID is the monotonically increasing order identity.
type OrderID int64

// Side is public: it decides which asset funds the order.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// FundingAsset is the asset a deposit on this side is denominated in.
// Buyers lock quote to pay for base; sellers lock the base they sell.
func (s Side) FundingAsset() ledger.AssetID {
	if s == SideBuy {
		return ledger.AssetQuote
	}
	return ledger.AssetBase
}

// Status is the order lifecycle.
type Status uint8

const (
	StatusPending Status = iota
	StatusMatched
	StatusPartiallyMatched
	StatusCancelled
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusMatched:
		return "matched"
	case StatusPartiallyMatched:
		return "partially_matched"
	case StatusCancelled:
		return "cancelled"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Order is a sealed order intent. Price and quantity live only inside Payload
// until the order's round is decrypted.
type Order struct {
	ID        OrderID   `json:"id"`
	Owner     uuid.UUID `json:"owner"`
	Side      Side      `json:"side"`
	Deposit   int64     `json:"deposit"`
	Payload   []byte    `json:"payload"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// RoundID is non-zero once the order has been swept into a round. A
	// Pending order with a RoundID is committed to that round and cannot be
	// cancelled.
	RoundID int64 `json:"round_id,omitempty"`

	SettledPrice  int64 `json:"settled_price"`  // volume-weighted fill price
	SettledAmount int64 `json:"settled_amount"` // filled base quantity
	Refunded      int64 `json:"refunded"`       // deposit returned to the owner, in the funding asset
}

// InRound reports whether the order is swept into an unsettled round.
func (o *Order) InRound() bool {
	return o.Status == StatusPending && o.RoundID != 0
}

// Transition moves a Pending order to a terminal status.
func (o *Order) Transition(to Status) error {
	if o.Status != StatusPending {
		return fmt.Errorf("order %d: %s -> %s not allowed", o.ID, o.Status, to)
	}
	if to == StatusPending {
		return fmt.Errorf("order %d: already pending", o.ID)
	}
	o.Status = to
	return nil
}

// Clone returns a copy safe to hand out of the engine lock.
func (o *Order) Clone() *Order {
	c := *o
	c.Payload = append([]byte(nil), o.Payload...)
	return &c
}
