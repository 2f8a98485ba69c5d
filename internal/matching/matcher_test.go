package matching_test

import (
	"SealedAuction/internal/matching"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func entries(firstID int64, pq ...[2]int64) []matching.Entry {
	out := make([]matching.Entry, len(pq))
	for i, v := range pq {
		out[i] = matching.Entry{OrderID: firstID + int64(i), Price: v[0], Quantity: v[1]}
	}
	return out
}

func TestMatch_FullCross(t *testing.T) {
	res := matching.Match(entries(1, [2]int64{12, 10}), entries(2, [2]int64{10, 10}))

	require.Len(t, res.Trades, 1)
	require.Equal(t, matching.Trade{BuyOrderID: 1, SellOrderID: 2, Price: 11, Quantity: 10}, res.Trades[0])
	require.Equal(t, int64(11), res.ClearingPrice)
	require.Equal(t, 1, res.BuyPointer)
	require.Equal(t, 1, res.SellPointer)
	require.Equal(t, int64(10), res.Volume())
}

func TestMatch_PartialFillAcrossSells(t *testing.T) {
	res := matching.Match(
		entries(1, [2]int64{12, 10}),
		entries(2, [2]int64{10, 4}, [2]int64{11, 6}),
	)

	require.Equal(t, []matching.Trade{
		{BuyOrderID: 1, SellOrderID: 2, Price: 11, Quantity: 4},
		{BuyOrderID: 1, SellOrderID: 3, Price: 11, Quantity: 6},
	}, res.Trades)
	require.Equal(t, 1, res.BuyPointer)
	require.Equal(t, 2, res.SellPointer)
	require.Zero(t, res.Buys[0].Quantity)
}

func TestMatch_NoCross(t *testing.T) {
	res := matching.Match(entries(1, [2]int64{5, 3}), entries(2, [2]int64{7, 3}))

	require.Empty(t, res.Trades)
	require.Zero(t, res.ClearingPrice)
	require.Zero(t, res.BuyPointer)
	require.Zero(t, res.SellPointer)
}

func TestMatch_StableAtEqualPrice(t *testing.T) {
	// Buys 10, 10, 8 arrive in that order; the first 10 must meet the 9 sell.
	res := matching.Match(
		entries(1, [2]int64{10, 5}, [2]int64{10, 5}, [2]int64{8, 5}),
		entries(4, [2]int64{9, 5}, [2]int64{10, 5}),
	)

	require.NotEmpty(t, res.Trades)
	require.Equal(t, int64(1), res.Trades[0].BuyOrderID)
	require.Equal(t, int64(4), res.Trades[0].SellOrderID)
	require.Equal(t, int64(9), res.Trades[0].Price)

	require.Len(t, res.Trades, 2)
	require.Equal(t, int64(2), res.Trades[1].BuyOrderID)
	require.Equal(t, int64(5), res.Trades[1].SellOrderID)
	require.Equal(t, int64(10), res.Trades[1].Price)
	require.Equal(t, int64(10), res.ClearingPrice)
	require.Equal(t, 2, res.BuyPointer)
}

func TestMatch_SortsSellsAscending(t *testing.T) {
	res := matching.Match(
		entries(1, [2]int64{20, 3}),
		entries(2, [2]int64{15, 1}, [2]int64{11, 1}, [2]int64{13, 1}),
	)

	require.Len(t, res.Trades, 3)
	require.Equal(t, []int64{3, 4, 2}, []int64{res.Trades[0].SellOrderID, res.Trades[1].SellOrderID, res.Trades[2].SellOrderID})
	require.Equal(t, int64(17), res.ClearingPrice)
}

func TestMatch_ZeroQuantityIsSkipped(t *testing.T) {
	res := matching.Match(
		entries(1, [2]int64{12, 0}, [2]int64{11, 5}),
		entries(3, [2]int64{10, 0}, [2]int64{10, 5}),
	)

	require.Len(t, res.Trades, 1)
	require.Equal(t, matching.Trade{BuyOrderID: 2, SellOrderID: 4, Price: 10, Quantity: 5}, res.Trades[0])
}

func TestMatch_DoesNotMutateInput(t *testing.T) {
	buys := entries(1, [2]int64{8, 1}, [2]int64{12, 2})
	sells := entries(3, [2]int64{7, 3})
	matching.Match(buys, sells)

	require.Equal(t, entries(1, [2]int64{8, 1}, [2]int64{12, 2}), buys)
	require.Equal(t, entries(3, [2]int64{7, 3}), sells)
}

func genSide(firstID int64, label string) *rapid.Generator[[]matching.Entry] {
	return rapid.Custom(func(t *rapid.T) []matching.Entry {
		n := rapid.IntRange(0, 12).Draw(t, label+"_n")
		out := make([]matching.Entry, n)
		for i := range out {
			out[i] = matching.Entry{
				OrderID:  firstID + int64(i),
				Price:    rapid.Int64Range(0, 50).Draw(t, label+"_price"),
				Quantity: rapid.Int64Range(0, 20).Draw(t, label+"_qty"),
			}
		}
		return out
	})
}

func TestMatch_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buys := genSide(1, "buy").Draw(t, "buys")
		sells := genSide(1000, "sell").Draw(t, "sells")

		res := matching.Match(buys, sells)

		limit := map[int64]int64{}
		filled := map[int64]int64{}
		qty := map[int64]int64{}
		for _, e := range buys {
			limit[e.OrderID] = e.Price
			qty[e.OrderID] = e.Quantity
		}
		for _, e := range sells {
			limit[e.OrderID] = e.Price
			qty[e.OrderID] = e.Quantity
		}

		for _, tr := range res.Trades {
			if tr.Quantity <= 0 {
				t.Fatalf("non-positive trade quantity: %+v", tr)
			}
			bp, sp := limit[tr.BuyOrderID], limit[tr.SellOrderID]
			if bp < sp {
				t.Fatalf("trade crosses nothing: buy %d < sell %d", bp, sp)
			}
			if tr.Price < sp || tr.Price > bp {
				t.Fatalf("price %d outside [%d, %d]", tr.Price, sp, bp)
			}
			filled[tr.BuyOrderID] += tr.Quantity
			filled[tr.SellOrderID] += tr.Quantity
		}
		for id, f := range filled {
			if f > qty[id] {
				t.Fatalf("order %d filled %d > quantity %d", id, f, qty[id])
			}
		}

		// Whatever remains on both sides at the pointers must not cross.
		if res.BuyPointer < len(res.Buys) && res.SellPointer < len(res.Sells) {
			if res.Buys[res.BuyPointer].Price >= res.Sells[res.SellPointer].Price &&
				res.Buys[res.BuyPointer].Quantity > 0 && res.Sells[res.SellPointer].Quantity > 0 {
				t.Fatalf("crossable remainder left at b=%d s=%d", res.BuyPointer, res.SellPointer)
			}
		}
	})
}
