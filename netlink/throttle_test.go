package netlink

import (
	"sync"
	"testing"
)

func TestGuardCeiling(t *testing.T) {
	g := NewGuard("test", 2)

	if !g.TokenInIfAllowed() || !g.TokenInIfAllowed() {
		t.Fatalf("guard rejected tokens below its ceiling")
	}
	if g.Allowed() || g.TokenInIfAllowed() {
		t.Errorf("guard admitted a token past its ceiling")
	}
	if g.Count() != 2 {
		t.Errorf("got count %d; want 2", g.Count())
	}

	g.TokenOut()
	if !g.Allowed() {
		t.Errorf("guard still full after a token out")
	}
}

func TestGuardUnlimited(t *testing.T) {
	g := NewGuard("unlimited", 0)
	for i := 0; i < 1000; i++ {
		if !g.TokenInIfAllowed() {
			t.Fatalf("unlimited guard rejected token %d", i)
		}
	}
	if !g.Allowed() {
		t.Errorf("unlimited guard reports being full")
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard("concurrent", 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TokenInIfAllowed() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 || g.Count() != 10 {
		t.Errorf("admitted %d (count %d); want exactly 10", admitted, g.Count())
	}
}

func TestGuardUnderflow(t *testing.T) {
	g := NewGuard("underflow", 1)
	defer func() {
		if recover() == nil {
			t.Errorf("token out on an empty guard didn't panic")
		}
	}()
	g.TokenOut()
}
