// Package matching pairs decrypted buy and sell intents for one sealed round.
// It is pure: no ledger, no clock, no I/O.
package matching

import (
	"sort"

	fpmath "SealedAuction/internal/math"
)

// Entry is one decrypted order as it entered the round.
type Entry struct {
	OrderID  int64
	Price    int64
	Quantity int64
}

// Trade is one crossed pair at its own midpoint price.
type Trade struct {
	BuyOrderID  int64 `json:"buy_order_id"`
	SellOrderID int64 `json:"sell_order_id"`
	Price       int64 `json:"price"`
	Quantity    int64 `json:"quantity"`
}

// Result is the output of one Match call.
type Result struct {
	Trades []Trade

	// Buys and Sells are the sorted entries with Quantity reduced to what is
	// left unfilled.
	Buys  []Entry
	Sells []Entry

	// Everything at or beyond these positions in the sorted lists never traded.
	BuyPointer  int
	SellPointer int

	// ClearingPrice is the last trade's price, 0 without trades.
	ClearingPrice int64
}

// Volume returns the total base quantity traded.
func (r *Result) Volume() int64 {
	var v int64
	for _, t := range r.Trades {
		v += t.Quantity
	}
	return v
}

// Match sorts buys by price descending and sells by price ascending, keeping
// arrival order among equal prices, then walks both lists until the best
// remaining buy no longer reaches the best remaining sell.
func Match(buys, sells []Entry) *Result {
	b := append([]Entry(nil), buys...)
	s := append([]Entry(nil), sells...)
	sort.SliceStable(b, func(i, j int) bool { return b[i].Price > b[j].Price })
	sort.SliceStable(s, func(i, j int) bool { return s[i].Price < s[j].Price })

	res := &Result{Buys: b, Sells: s}
	bi, si := 0, 0
	for bi < len(b) && si < len(s) {
		if b[bi].Price < s[si].Price {
			break
		}

		qty := min(b[bi].Quantity, s[si].Quantity)
		if qty == 0 {
			if b[bi].Quantity == 0 {
				bi++
			}
			if s[si].Quantity == 0 {
				si++
			}
			continue
		}

		price := fpmath.Midpoint(b[bi].Price, s[si].Price)
		res.Trades = append(res.Trades, Trade{
			BuyOrderID:  b[bi].OrderID,
			SellOrderID: s[si].OrderID,
			Price:       price,
			Quantity:    qty,
		})
		res.ClearingPrice = price

		b[bi].Quantity -= qty
		s[si].Quantity -= qty
		if b[bi].Quantity == 0 {
			bi++
		}
		if s[si].Quantity == 0 {
			si++
		}
	}

	res.BuyPointer = bi
	res.SellPointer = si
	return res
}
