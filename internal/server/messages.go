package server

import "time"

// Amounts and prices travel as decimal strings. Amounts are whole units of
// the funding asset; prices carry the engine's price scale.

type SubmitOrderRequest struct {
	Side    string `json:"side"`
	Payload []byte `json:"payload"` // sealed box, base64 in JSON
	Deposit string `json:"deposit"`
}

type SubmitOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

type OrderRequest struct {
	OrderID int64 `json:"order_id"`
}

type CancelOrderResponse struct {
	OrderID  int64  `json:"order_id"`
	Refunded string `json:"refunded"`
}

type TriggerRoundRequest struct{}

type TriggerRoundResponse struct {
	RoundID int64 `json:"round_id"`
}

// OrderView is the public form of an order. The sealed payload is omitted.
type OrderView struct {
	OrderID       int64     `json:"order_id"`
	Owner         string    `json:"owner"`
	Side          string    `json:"side"`
	Status        string    `json:"status"`
	Deposit       string    `json:"deposit"`
	RoundID       int64     `json:"round_id,omitempty"`
	SettledPrice  string    `json:"settled_price"`
	SettledAmount string    `json:"settled_amount"`
	Refunded      string    `json:"refunded"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListOrdersRequest struct {
	Owner string `json:"owner"` // defaults to the caller
}

type ListOrdersResponse struct {
	Orders []*OrderView `json:"orders"`
}

type GetPoolRequest struct{}

type PoolView struct {
	PendingBuyCount  int     `json:"pending_buy_count"`
	PendingSellCount int     `json:"pending_sell_count"`
	TotalBuyDeposit  string  `json:"total_buy_deposit"`
	TotalSellDeposit string  `json:"total_sell_deposit"`
	State            string  `json:"state"`
	RoundsInFlight   []int64 `json:"rounds_in_flight"`
}

type GetSettlementRequest struct {
	ID int64 `json:"id"`
}

type TradeView struct {
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
}

type SettlementView struct {
	ID              int64        `json:"id"`
	RoundID         int64        `json:"round_id"`
	ClearingPrice   string       `json:"clearing_price"`
	MatchedVolume   string       `json:"matched_volume"`
	TradeCount      int          `json:"trade_count"`
	Timestamp       time.Time    `json:"timestamp"`
	MatchedOrderIDs []int64      `json:"matched_order_ids"`
	Trades          []*TradeView `json:"trades"`
	StateHash       string       `json:"state_hash"`
}

// ListSettlementsRequest pages through history oldest first. A zero Limit
// means the default page size.
type ListSettlementsRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type ListSettlementsResponse struct {
	Total       int               `json:"total"`
	Settlements []*SettlementView `json:"settlements"`
}

type GetSettlementCountRequest struct{}

type SettlementCountResponse struct {
	Count int `json:"count"`
}

// CollateralRequest moves funds in or out of the caller's wallet. Ref is a
// UUID; a repeated ref is applied once.
type CollateralRequest struct {
	Ref    string `json:"ref"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type GetBalanceRequest struct {
	Asset string `json:"asset"`
}

type BalanceView struct {
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Available string `json:"available"`
}
