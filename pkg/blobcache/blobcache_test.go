package blobcache

import (
	"errors"
	"fmt"
	"testing"
)

func TestSetAndGet(t *testing.T) {
	c := New(100)

	if err := c.Set("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "hello" {
		t.Errorf("unexpected payload: %s", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestBudgetInvariant(t *testing.T) {
	c := New(64)

	for i := 0; i < 50; i++ {
		payload := make([]byte, 1+i%30)
		if err := c.Set(fmt.Sprintf("k%d", i), payload); err != nil {
			t.Fatal(err)
		}
		if c.Size() > 64 {
			t.Fatalf("budget breached after set %d: size=%d", i, c.Size())
		}
	}
}

func TestLRUOrder(t *testing.T) {
	// A, B, C each fit alone but not all together; touching A makes B the
	// eviction victim when D arrives.
	c := New(30)

	for _, k := range []string{"A", "B", "C"} {
		if err := c.Set(k, make([]byte, 10)); err != nil {
			t.Fatal(err)
		}
	}

	if _, ok := c.Get("A"); !ok {
		t.Fatal("expected A present")
	}

	if err := c.Set("D", make([]byte, 10)); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("B"); ok {
		t.Error("expected B evicted")
	}
	if _, ok := c.Get("A"); !ok {
		t.Error("expected A retained")
	}
	if _, ok := c.Get("C"); !ok {
		t.Error("expected C retained")
	}
	if _, ok := c.Get("D"); !ok {
		t.Error("expected D present")
	}
}

func TestOversizedRejected(t *testing.T) {
	c := New(10)

	_ = c.Set("small", make([]byte, 5))

	err := c.Set("big", make([]byte, 11))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	// Rejection must not disturb existing entries.
	if _, ok := c.Get("small"); !ok {
		t.Error("existing entry lost after rejected set")
	}
	if c.Size() != 5 {
		t.Errorf("size changed after rejected set: %d", c.Size())
	}
}

func TestUpdateExistingKey(t *testing.T) {
	c := New(20)

	_ = c.Set("k", make([]byte, 15))
	_ = c.Set("k", make([]byte, 5))

	if c.Size() != 5 {
		t.Errorf("expected size 5 after overwrite, got %d", c.Size())
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestStats(t *testing.T) {
	c := New(10)

	_ = c.Set("a", []byte("xx"))
	c.Get("a")
	c.Get("b")
	_ = c.Set("c", make([]byte, 9)) // evicts a

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("expected 1 hit 1 miss, got %d/%d", s.Hits, s.Misses)
	}
	if s.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", s.Evictions)
	}
	if s.Capacity != 10 {
		t.Errorf("expected capacity 10, got %d", s.Capacity)
	}
}

func TestClear(t *testing.T) {
	c := New(100)
	_ = c.Set("a", []byte("x"))
	_ = c.Set("b", []byte("y"))

	c.Clear()

	if c.Len() != 0 || c.Size() != 0 {
		t.Errorf("expected empty cache, got len=%d size=%d", c.Len(), c.Size())
	}
}
