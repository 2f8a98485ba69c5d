package math_test

import (
	fpmath "SealedAuction/internal/math"
	stdmath "math"
	"testing"

	"pgregory.net/rapid"
)

func TestQuoteCost_Truncates(t *testing.T) {
	cases := []struct {
		qty, price, scale, want int64
	}{
		{10, 11, 1, 110},
		{10, 11, 100, 1},
		{3, 333, 100, 9},
		{0, 500, 100, 0},
		{stdmath.MaxInt64, 2, 2, stdmath.MaxInt64},
	}
	for _, tc := range cases {
		if got := fpmath.QuoteCost(tc.qty, tc.price, tc.scale); got != tc.want {
			t.Errorf("QuoteCost(%d, %d, %d) = %d, want %d", tc.qty, tc.price, tc.scale, got, tc.want)
		}
	}
}

func TestMaxAffordable(t *testing.T) {
	if got := fpmath.MaxAffordable(120, 12, 1); got != 10 {
		t.Errorf("got %d, want 10", got)
	}
	if got := fpmath.MaxAffordable(119, 12, 1); got != 9 {
		t.Errorf("got %d, want 9", got)
	}
	if got := fpmath.MaxAffordable(5, 0, 100); got != stdmath.MaxInt64 {
		t.Errorf("zero price: got %d, want MaxInt64", got)
	}
	if got := fpmath.MaxAffordable(stdmath.MaxInt64, 1, 100); got != stdmath.MaxInt64 {
		t.Errorf("overflow should saturate, got %d", got)
	}
}

func TestMidpoint(t *testing.T) {
	cases := [][3]int64{
		{12, 10, 11},
		{12, 11, 11},
		{7, 7, 7},
		{0, 1, 0},
		{stdmath.MaxInt64, stdmath.MaxInt64, stdmath.MaxInt64},
		{stdmath.MaxInt64, stdmath.MaxInt64 - 1, stdmath.MaxInt64 - 1},
	}
	for _, c := range cases {
		if got := fpmath.Midpoint(c[0], c[1]); got != c[2] {
			t.Errorf("Midpoint(%d, %d) = %d, want %d", c[0], c[1], got, c[2])
		}
	}
}

func TestMidpoint_MatchesWideArithmetic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(0, stdmath.MaxInt64).Draw(t, "a")
		b := rapid.Int64Range(0, stdmath.MaxInt64).Draw(t, "b")
		wide := (uint64(a) + uint64(b)) / 2
		if got := fpmath.Midpoint(a, b); uint64(got) != wide {
			t.Fatalf("Midpoint(%d, %d) = %d, want %d", a, b, got, wide)
		}
	})
}

func TestMaxAffordable_NeverOverspends(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deposit := rapid.Int64Range(1, 1_000_000_000).Draw(t, "deposit")
		price := rapid.Int64Range(1, 1_000_000).Draw(t, "price")
		scale := rapid.SampledFrom([]int64{1, 100, 1_000_000}).Draw(t, "scale")

		qty := fpmath.MaxAffordable(deposit, price, scale)
		if cost := fpmath.QuoteCost(qty, price, scale); cost > deposit {
			t.Fatalf("qty %d at %d/%d costs %d > deposit %d", qty, price, scale, cost, deposit)
		}
	})
}

func TestAveragePrice(t *testing.T) {
	// 4 @ 11 and 6 @ 11 with scale 1.
	if got := fpmath.AveragePrice(110, 10, 1); got != 11 {
		t.Errorf("got %d, want 11", got)
	}
	if got := fpmath.AveragePrice(0, 0, 100); got != 0 {
		t.Errorf("no fills: got %d, want 0", got)
	}
}

func TestFormatAndParse(t *testing.T) {
	cfg := fpmath.NewDecimalConfig(100)
	if cfg.DecimalPrecision != 2 {
		t.Fatalf("precision: got %d, want 2", cfg.DecimalPrecision)
	}
	if got := fpmath.Format(1234, cfg); got != "12.34" {
		t.Errorf("Format: got %q, want %q", got, "12.34")
	}
	v, err := fpmath.Parse("12.345", cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v != 1234 {
		t.Errorf("Parse: got %d, want 1234", v)
	}
	if _, err := fpmath.Parse("abc", cfg); err == nil {
		t.Error("Parse should reject non-numeric input")
	}
}
