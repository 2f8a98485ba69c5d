package event

import "strconv"

// DecryptionRequest asks the oracle to reveal every payload swept into a round.
// Payloads are listed buys first, then sells, each in snapshot order.
type DecryptionRequest struct {
	RoundID      int64    `json:"round_id"`
	BuyCount     int      `json:"buy_count"`
	SellCount    int      `json:"sell_count"`
	BuyOrderIDs  []int64  `json:"buy_order_ids"`
	SellOrderIDs []int64  `json:"sell_order_ids"`
	Payloads     [][]byte `json:"payloads"`
}

// DecryptedPair is one revealed intent. A payload the oracle cannot open is
// reported as the zero pair.
type DecryptedPair struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// DecryptedBatch is the oracle's single callback for a round, with pairs in
// the same order as the request's payloads.
type DecryptedBatch struct {
	RoundID   int64           `json:"round_id"`
	BuyCount  int             `json:"buy_count"`
	SellCount int             `json:"sell_count"`
	Pairs     []DecryptedPair `json:"pairs"`
}

func (b *DecryptedBatch) IdempotencyKey() string {
	return strconv.FormatInt(b.RoundID, 10)
}

func (b *DecryptedBatch) EventType() EventType {
	return EventTypeDecryptedBatch
}
