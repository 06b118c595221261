package bitmath

import (
	"math/bits"
	"testing"
)

func TestLog2Uint32(t *testing.T) {
	cases := []struct {
		v    uint32
		want uint32
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{1023, 9},
		{1024, 10},
		{0xFFFFFFFF, 31},
	}
	for _, c := range cases {
		if got := Log2Uint32(c.v); got != c.want {
			t.Errorf("Log2Uint32(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestLog2Uint32AgainstStdlib(t *testing.T) {
	for _, v := range []uint32{1, 5, 17, 255, 256, 65535, 65536, 1 << 20, 1<<31 - 1} {
		want := uint32(bits.Len32(v) - 1)
		if got := Log2Uint32(v); got != want {
			t.Errorf("Log2Uint32(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestLog2Uint64(t *testing.T) {
	cases := []struct {
		v    uint64
		want uint64
	}{
		{0, 0},
		{1, 0},
		{1 << 32, 32},
		{1<<32 + 5, 32},
		{1 << 40, 40},
		{1<<64 - 1, 63},
	}
	for _, c := range cases {
		if got := Log2Uint64(c.v); got != c.want {
			t.Errorf("Log2Uint64(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestAvg2Int32(t *testing.T) {
	cases := []struct{ a, b int32 }{
		{0, 0},
		{1, 3},
		{-1, 1},
		{-5, -7},
		{2147483647, 2147483647},
		{-2147483648, -2147483648},
		{2147483647, -2147483648},
	}
	for _, c := range cases {
		got := Avg2Int32(c.a, c.b)
		want := int32((int64(c.a) + int64(c.b)) / 2)
		// avg2 rounds toward -inf on odd sums via arithmetic shift; stdlib
		// integer division truncates toward zero, so only compare when the
		// sum is even (unambiguous) to avoid asserting a rounding mode.
		if (int64(c.a)+int64(c.b))%2 == 0 && got != want {
			t.Errorf("Avg2Int32(%d,%d) = %d, want %d", c.a, c.b, got, want)
		}
		// Regardless of rounding, the result must lie between the two inputs.
		lo, hi := c.a, c.b
		if lo > hi {
			lo, hi = hi, lo
		}
		if got < lo || got > hi {
			t.Errorf("Avg2Int32(%d,%d) = %d out of bounds [%d,%d]", c.a, c.b, got, lo, hi)
		}
	}
}
