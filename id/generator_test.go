package id

import (
	"sync"
	"testing"
)

func TestSequence_NextID_StartsAtOne(t *testing.T) {
	seq := NewSequence()

	if got := seq.Last(); got != 0 {
		t.Fatalf("expected no identity issued yet, got %d", got)
	}
	if got := seq.NextID(); got != 1 {
		t.Fatalf("expected first identity 1, got %d", got)
	}
	if got := seq.Last(); got != 1 {
		t.Fatalf("expected last identity 1, got %d", got)
	}
}

func TestSequence_NextID_Monotonic(t *testing.T) {
	seq := NewSequence()

	var prev uint64
	const iterations = 1000

	for i := 0; i < iterations; i++ {
		id := seq.NextID()
		if id <= prev {
			t.Fatalf("non-monotonic ID at iteration %d: prev=%d, curr=%d", i, prev, id)
		}
		prev = id
	}
}

func TestSequence_NextID_Concurrent(t *testing.T) {
	seq := NewSequence()

	const goroutines = 10
	const idsPerGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, idsPerGoroutine)
			for i := 0; i < idsPerGoroutine; i++ {
				local = append(local, seq.NextID())
			}

			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate ID generated: %d", id)
				}
				seen[id] = true
			}
		}()
	}

	wg.Wait()

	if len(seen) != goroutines*idsPerGoroutine {
		t.Fatalf("expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestDefault_IsShared(t *testing.T) {
	a := Default().NextID()
	b := Default().NextID()
	if b <= a {
		t.Fatalf("process sequence went backwards: %d then %d", a, b)
	}
	if a == 0 {
		t.Fatal("identity 0 is reserved for unassigned")
	}
}
