package core

import (
	"time"

	"SealedAuction/internal/matching"
	"SealedAuction/internal/pool"
)

// SettlementRecord is the immutable summary of one settled round.
type SettlementRecord struct {
	ID              int64            `json:"id"`
	RoundID         int64            `json:"round_id"`
	ClearingPrice   int64            `json:"clearing_price"`
	MatchedVolume   int64            `json:"matched_volume"`
	TradeCount      int              `json:"trade_count"`
	Timestamp       time.Time        `json:"timestamp"`
	MatchedOrderIDs []pool.OrderID   `json:"matched_order_ids"`
	Trades          []matching.Trade `json:"trades"`
	StateHash       [32]byte         `json:"state_hash"`
}

// Clone returns a deep copy; records handed out of the engine are copies.
func (r *SettlementRecord) Clone() *SettlementRecord {
	c := *r
	c.MatchedOrderIDs = append([]pool.OrderID(nil), r.MatchedOrderIDs...)
	c.Trades = append([]matching.Trade(nil), r.Trades...)
	return &c
}

// History is the append-only list of settlement records. Record ids start at 1.
type History struct {
	records []*SettlementRecord
}

func NewHistory() *History {
	return &History{}
}

// NextID returns the id the next appended record must carry.
func (h *History) NextID() int64 {
	return int64(len(h.records)) + 1
}

// Append adds rec, which must carry NextID.
func (h *History) Append(rec *SettlementRecord) {
	if rec.ID != h.NextID() {
		panic("settlement history out of order")
	}
	h.records = append(h.records, rec)
}

// Get returns the record with id, or nil.
func (h *History) Get(id int64) *SettlementRecord {
	if id < 1 || id > int64(len(h.records)) {
		return nil
	}
	return h.records[id-1]
}

func (h *History) Count() int {
	return len(h.records)
}

// List returns copies of up to limit records starting at offset, oldest first.
func (h *History) List(offset, limit int) []*SettlementRecord {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(h.records) || limit <= 0 {
		return nil
	}
	if rest := len(h.records) - offset; limit > rest {
		limit = rest
	}
	out := make([]*SettlementRecord, limit)
	for i, rec := range h.records[offset : offset+limit] {
		out[i] = rec.Clone()
	}
	return out
}

func (h *History) all() []*SettlementRecord {
	return h.records
}

func (h *History) restore(records []*SettlementRecord) {
	h.records = append([]*SettlementRecord(nil), records...)
}
