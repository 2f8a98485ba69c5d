package pool

import "fmt"

// Aggregates are the public pool counters. They never reveal individual prices
// or quantities.
type Aggregates struct {
	PendingBuyCount  int   `json:"pending_buy_count"`
	PendingSellCount int   `json:"pending_sell_count"`
	TotalBuyDeposit  int64 `json:"total_buy_deposit"`
	TotalSellDeposit int64 `json:"total_sell_deposit"`
}

// PendingPool holds the ids awaiting their first round, one insertion-ordered
// set per side. Removal swaps with the last element, so order among the
// remaining ids is not preserved after a cancel.
type PendingPool struct {
	buys  []OrderID
	sells []OrderID
	index map[OrderID]int

	agg Aggregates
}

func NewPendingPool() *PendingPool {
	return &PendingPool{index: make(map[OrderID]int)}
}

func (p *PendingPool) set(side Side) *[]OrderID {
	if side == SideBuy {
		return &p.buys
	}
	return &p.sells
}

// Add appends a Pending order to its side.
func (p *PendingPool) Add(o *Order) error {
	if _, ok := p.index[o.ID]; ok {
		return fmt.Errorf("order %d already pending", o.ID)
	}
	ids := p.set(o.Side)
	p.index[o.ID] = len(*ids)
	*ids = append(*ids, o.ID)

	if o.Side == SideBuy {
		p.agg.PendingBuyCount++
		p.agg.TotalBuyDeposit += o.Deposit
	} else {
		p.agg.PendingSellCount++
		p.agg.TotalSellDeposit += o.Deposit
	}
	return nil
}

// Remove swap-pops the order from its side.
func (p *PendingPool) Remove(o *Order) error {
	pos, ok := p.index[o.ID]
	if !ok {
		return fmt.Errorf("order %d not pending", o.ID)
	}
	ids := p.set(o.Side)
	last := len(*ids) - 1
	if pos != last {
		moved := (*ids)[last]
		(*ids)[pos] = moved
		p.index[moved] = pos
	}
	*ids = (*ids)[:last]
	delete(p.index, o.ID)

	if o.Side == SideBuy {
		p.agg.PendingBuyCount--
		p.agg.TotalBuyDeposit -= o.Deposit
	} else {
		p.agg.PendingSellCount--
		p.agg.TotalSellDeposit -= o.Deposit
	}
	return nil
}

// Contains reports pool membership.
func (p *PendingPool) Contains(id OrderID) bool {
	_, ok := p.index[id]
	return ok
}

// Snapshot copies both sides in their current order.
func (p *PendingPool) Snapshot() (buys, sells []OrderID) {
	return append([]OrderID(nil), p.buys...), append([]OrderID(nil), p.sells...)
}

// Aggregates returns the public counters.
func (p *PendingPool) Aggregates() Aggregates {
	return p.agg
}

// Reset empties both sides and zeroes every counter.
func (p *PendingPool) Reset() {
	p.buys = nil
	p.sells = nil
	p.index = make(map[OrderID]int)
	p.agg = Aggregates{}
}
