package identity_test

import (
	"sync"
	"testing"

	"github.com/fakestocks/market-sim/internal/identity"
)

func TestNext_NeverNone(t *testing.T) {
	ids := identity.NewIssuer()
	if got := ids.Next(); got == identity.None {
		t.Fatalf("first issued ID must not be the unset sentinel, got %s", got)
	}
}

func TestNext_Monotonic(t *testing.T) {
	ids := identity.NewIssuer()
	prev := ids.Next()
	for i := 0; i < 100; i++ {
		next := ids.Next()
		if next <= prev {
			t.Fatalf("IDs must increase: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNext_UniqueUnderConcurrency(t *testing.T) {
	ids := identity.NewIssuer()

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	results := make([][]identity.ID, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			out := make([]identity.ID, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				out = append(out, ids.Next())
			}
			results[w] = out
		}(w)
	}
	wg.Wait()

	seen := make(map[identity.ID]bool, workers*perWorker)
	for _, out := range results {
		for _, id := range out {
			if id == identity.None {
				t.Fatal("issued the unset sentinel")
			}
			if seen[id] {
				t.Fatalf("ID %s issued twice", id)
			}
			seen[id] = true
		}
	}
}
