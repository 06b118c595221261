package distinct

import (
	"ebql/internal/errkind"
	"testing"
)

// After inserting r1..rn under the same key, the table contains exactly rn.
func TestLatestWins(t *testing.T) {
	tbl := New[int, string](4, false)
	for _, v := range []string{"a", "b", "c"} {
		if err := tbl.Insert(1, v); err != nil {
			t.Fatalf("insert %q: %v", v, err)
		}
	}
	got, ok := tbl.Get(1)
	if !ok || got != "c" {
		t.Fatalf("Get(1) = (%q, %v), want (\"c\", true)", got, ok)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestBucketFullOnNewKey(t *testing.T) {
	tbl := New[int, int](2, false)
	if err := tbl.Insert(1, 10); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := tbl.Insert(2, 20); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	// Re-inserting an existing key never trips capacity.
	if err := tbl.Insert(1, 11); err != nil {
		t.Fatalf("re-insert existing key should not fail: %v", err)
	}
	if err := tbl.Insert(3, 30); !errkind.Is(err, errkind.BucketFull) {
		t.Fatalf("expected BucketFull, got %v", err)
	}
}

func TestDeleteMissingIsMissingEntry(t *testing.T) {
	tbl := New[int, int](4, false)
	if err := tbl.Delete(9); !errkind.Is(err, errkind.MissingEntry) {
		t.Fatalf("expected MissingEntry, got %v", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	tbl := New[int, int](4, false)
	tbl.Insert(1, 100)
	if err := tbl.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := tbl.Get(1); ok {
		t.Fatalf("key 1 still present after delete")
	}
}

// Tumbling round-trip: writes accumulate in the next generation while the
// live generation is untouched, then Tumble() promotes next to live.
func TestTumbleRoundTrip(t *testing.T) {
	tbl := New[int, string](4, true)
	tbl.Insert(1, "old")

	if err := tbl.InsertNext(1, "new"); err != nil {
		t.Fatalf("insert-next: %v", err)
	}
	if err := tbl.InsertNext(2, "fresh"); err != nil {
		t.Fatalf("insert-next: %v", err)
	}
	if got, _ := tbl.Get(1); got != "old" {
		t.Fatalf("live table mutated before tumble: %q", got)
	}

	tbl.Tumble()

	if got, ok := tbl.Get(1); !ok || got != "new" {
		t.Fatalf("after tumble Get(1) = (%q, %v), want (\"new\", true)", got, ok)
	}
	if got, ok := tbl.Get(2); !ok || got != "fresh" {
		t.Fatalf("after tumble Get(2) = (%q, %v), want (\"fresh\", true)", got, ok)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}

	// Tumbling again with an empty next must clear live.
	tbl.Tumble()
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d after tumbling an empty next, want 0", tbl.Len())
	}
}

func TestNextOperationsOnNonTumblingTableAreBugCheck(t *testing.T) {
	tbl := New[int, int](2, false)
	if err := tbl.InsertNext(1, 1); !errkind.Is(err, errkind.BugCheck) {
		t.Fatalf("expected BugCheck, got %v", err)
	}
	if err := tbl.DeleteNext(1); !errkind.Is(err, errkind.BugCheck) {
		t.Fatalf("expected BugCheck, got %v", err)
	}
}

// Insert (k=1,r=a) then (k=1,r=b): a scan yields exactly one row for the
// key, carrying b.
func TestScanYieldsLatestRowOnly(t *testing.T) {
	tbl := New[int, string](4, false)
	tbl.Insert(1, "a")
	tbl.Insert(1, "b")

	rows := 0
	tbl.Scan(func(k int, v string) {
		rows++
		if k != 1 || v != "b" {
			t.Fatalf("unexpected row (%d, %q)", k, v)
		}
	})
	if rows != 1 {
		t.Fatalf("emitted %d rows, want 1", rows)
	}
}
