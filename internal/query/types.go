package query

import "time"

// SettlementRecord is the durable copy of one settled round.
type SettlementRecord struct {
	RecordID      int64         `json:"record_id"`
	RoundID       int64         `json:"round_id"`
	ClearingPrice int64         `json:"clearing_price"`
	MatchedVolume int64         `json:"matched_volume"`
	TradeCount    int           `json:"trade_count"`
	StateHash     string        `json:"state_hash"`
	SettledAt     time.Time     `json:"settled_at"`
	Trades        []Trade       `json:"trades"`
	Orders        []OrderResult `json:"orders"`
}

// Trade is one fill, as written by the settlement log.
type Trade struct {
	RecordID    int64 `json:"record_id"`
	Index       int   `json:"trade_index"`
	BuyOrderID  int64 `json:"buy_order_id"`
	SellOrderID int64 `json:"sell_order_id"`
	Price       int64 `json:"price"`
	Quantity    int64 `json:"quantity"`
}

// OrderResult is an order's terminal outcome in a round.
type OrderResult struct {
	OrderID       int64  `json:"order_id"`
	Status        string `json:"status"`
	SettledPrice  int64  `json:"settled_price"`
	SettledAmount int64  `json:"settled_amount"`
	Refunded      int64  `json:"refunded"`
}

// IntegrityReport summarizes an audit of the durable settlement tables.
type IntegrityReport struct {
	Records          int64   `json:"records"`
	TradeCountBreaks []int64 `json:"trade_count_breaks"` // record ids whose trade rows disagree with trade_count
	VolumeBreaks     []int64 `json:"volume_breaks"`      // record ids whose trade quantities disagree with matched_volume
	IsHealthy        bool    `json:"is_healthy"`
}

// AccountBalance is a projected ledger balance.
type AccountBalance struct {
	AccountPath  string `json:"account_path"`
	Asset        string `json:"asset"`
	Balance      int64  `json:"balance"`
	LastSequence int64  `json:"last_sequence"`
}

// OrderState is the projected lifecycle of one order. RecordID is set once
// the order has been settled.
type OrderState struct {
	OrderID       int64  `json:"order_id"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Deposit       int64  `json:"deposit"`
	SettledPrice  int64  `json:"settled_price"`
	SettledAmount int64  `json:"settled_amount"`
	Refunded      int64  `json:"refunded"`
	RecordID      *int64 `json:"record_id,omitempty"`
	LastSequence  int64  `json:"last_sequence"`
}
