package groupby

import (
	"ebql/internal/errkind"
	"testing"
)

func TestSumAggregation(t *testing.T) {
	tbl := New[int](Sum, 4, false)
	tbl.Insert(1, 3)
	tbl.Insert(1, 4)
	a, ok := tbl.Get(1)
	if !ok || a.Result(Sum) != 7 {
		t.Fatalf("sum = %+v, want 7", a)
	}
}

func TestMinMax(t *testing.T) {
	min := New[int](Min, 4, false)
	for _, v := range []uint64{5, 2, 9} {
		min.Insert(1, v)
	}
	if a, _ := min.Get(1); a.Result(Min) != 2 {
		t.Fatalf("min = %d, want 2", a.Result(Min))
	}

	max := New[int](Max, 4, false)
	for _, v := range []uint64{5, 2, 9} {
		max.Insert(1, v)
	}
	if a, _ := max.Get(1); a.Result(Max) != 9 {
		t.Fatalf("max = %d, want 9", a.Result(Max))
	}
}

func TestCount(t *testing.T) {
	tbl := New[int](Count, 4, false)
	for i := 0; i < 5; i++ {
		tbl.Insert(1, 0)
	}
	if a, _ := tbl.Get(1); a.Result(Count) != 5 {
		t.Fatalf("count = %d, want 5", a.Result(Count))
	}
}

func TestAvg(t *testing.T) {
	tbl := New[int](Avg, 4, false)
	for _, v := range []uint64{2, 4, 6} {
		tbl.Insert(1, v)
	}
	if a, _ := tbl.Get(1); a.Result(Avg) != 4 {
		t.Fatalf("avg = %d, want 4", a.Result(Avg))
	}
}

func TestBucketFullOnNewKey(t *testing.T) {
	tbl := New[int](Sum, 1, false)
	tbl.Insert(1, 1)
	if err := tbl.Insert(1, 1); err != nil {
		t.Fatalf("re-insert existing key should not fail: %v", err)
	}
	if err := tbl.Insert(2, 1); !errkind.Is(err, errkind.BucketFull) {
		t.Fatalf("expected BucketFull, got %v", err)
	}
}

func TestTumbleRoundTrip(t *testing.T) {
	tbl := New[int](Sum, 4, true)
	tbl.Insert(1, 100)
	tbl.InsertNext(1, 3)
	tbl.InsertNext(2, 5)

	if a, _ := tbl.Get(1); a.Result(Sum) != 100 {
		t.Fatalf("live mutated before tumble: %+v", a)
	}

	tbl.Tumble()

	if a, ok := tbl.Get(1); !ok || a.Result(Sum) != 3 {
		t.Fatalf("after tumble key 1 = %+v, want 3", a)
	}
	if a, ok := tbl.Get(2); !ok || a.Result(Sum) != 5 {
		t.Fatalf("after tumble key 2 = %+v, want 5", a)
	}
}

func TestScanTruncation(t *testing.T) {
	tbl := New[int](Sum, 8, false)
	for i := 0; i < 5; i++ {
		tbl.Insert(i, uint64(i))
	}
	buf := make([]Row[int], 3)
	n, truncated := tbl.Scan(buf)
	if n != 3 || !truncated {
		t.Fatalf("Scan = (%d, %v), want (3, true)", n, truncated)
	}

	buf2 := make([]Row[int], 10)
	n2, truncated2 := tbl.Scan(buf2)
	if n2 != 5 || truncated2 {
		t.Fatalf("Scan = (%d, %v), want (5, false)", n2, truncated2)
	}
}
