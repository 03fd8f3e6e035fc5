package mathx

import (
	"math"
	"testing"
)

func TestFloorDivNegative(t *testing.T) {
	cases := []struct{ a, b, q, m int64 }{
		{-150, 100, -2, 50},
		{-250, 100, -3, 50},
		{-100, 100, -1, 0},
		{-1, 100, -1, 99},
		{0, 100, 0, 0},
		{99, 100, 0, 99},
		{100, 100, 1, 0},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestAbsDiffExtremes(t *testing.T) {
	if got := AbsDiff(math.MinInt64, math.MaxInt64); got != math.MaxUint64 {
		t.Fatalf("AbsDiff extremes=%d", got)
	}
	if got := AbsDiff(-3, 4); got != 7 {
		t.Fatalf("AbsDiff=%d", got)
	}
}

func TestSaturating(t *testing.T) {
	if SatAdd(math.MaxUint64, 1) != math.MaxUint64 {
		t.Fatalf("SatAdd should saturate")
	}
	if SatSub(3, 5) != 0 {
		t.Fatalf("SatSub should floor at zero")
	}
	if SatMul(math.MaxUint64/2, 3) != math.MaxUint64 {
		t.Fatalf("SatMul should saturate")
	}
	if SatMul(0, math.MaxUint64) != 0 {
		t.Fatalf("SatMul zero")
	}
}
