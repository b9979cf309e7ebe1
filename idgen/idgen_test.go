package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 || len(id) != 36 {
		t.Fatalf("UUIDv7: malformed %q", id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble %q in %q", id[14], id)
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	a := gen()
	time.Sleep(2 * time.Millisecond)
	b := gen()
	if a >= b {
		t.Fatalf("UUIDv7 not time-sortable: %q >= %q", a, b)
	}
}

func TestTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, ok := Time(New())
	if !ok {
		t.Fatal("Time: not a v7 id")
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Fatalf("Time: %v out of range", ts)
	}

	for _, id := range []string{"", "lq2v8k0x3h9abc", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		if _, ok := Time(id); ok {
			t.Errorf("Time(%q): want false", id)
		}
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("hop-")
	if a, b := gen(), gen(); a != "hop-1" || b != "hop-2" {
		t.Fatalf("Sequence: %q %q", a, b)
	}
}
