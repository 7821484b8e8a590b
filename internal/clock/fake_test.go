package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var order []string
	var seenAt []time.Duration
	c.AfterFunc(2*time.Second, func() {
		order = append(order, "b")
		seenAt = append(seenAt, c.Now().Sub(start))
	})
	c.AfterFunc(time.Second, func() {
		order = append(order, "a")
		seenAt = append(seenAt, c.Now().Sub(start))
		c.AfterFunc(500*time.Millisecond, func() {
			order = append(order, "a2")
			seenAt = append(seenAt, c.Now().Sub(start))
		})
	})

	c.Advance(3 * time.Second)

	want := []string{"a", "a2", "b"}
	wantAt := []time.Duration{time.Second, 1500 * time.Millisecond, 2 * time.Second}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] || seenAt[i] != wantAt[i] {
			t.Fatalf("fired %v at %v, want %v at %v", order, seenAt, want, wantAt)
		}
	}
	if got := c.Now().Sub(start); got != 3*time.Second {
		t.Fatalf("Now() advanced by %v", got)
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on pending timer should report true")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}
