package netlink

import (
	"errors"
	"sync"
	"testing"
)

func TestPoolExhaustion(t *testing.T) {
	pool := NewBufferPool(2, 64, false)

	a, err := pool.Take()
	if err != nil {
		t.Fatalf("couldn't take first buffer: %v", err)
	}
	b, err := pool.Take()
	if err != nil {
		t.Fatalf("couldn't take second buffer: %v", err)
	}

	if _, err := pool.Take(); !errors.Is(err, ErrPoolExhausted) || !errors.Is(err, ErrAdmission) {
		t.Errorf("got %v; want ErrPoolExhausted", err)
	}

	a.Release()
	if pool.Available() != 1 {
		t.Errorf("got %d available; want 1", pool.Available())
	}

	c, err := pool.Take()
	if err != nil {
		t.Fatalf("couldn't take a released buffer again: %v", err)
	}
	c.Release()
	b.Release()

	if pool.Available() != pool.Cap() {
		t.Errorf("got %d available; want %d", pool.Available(), pool.Cap())
	}
}

func TestPoolDoubleRelease(t *testing.T) {
	pool := NewBufferPool(1, 64, false)
	buf, err := pool.Take()
	if err != nil {
		t.Fatalf("couldn't take a buffer: %v", err)
	}
	buf.Release()

	defer func() {
		if recover() == nil {
			t.Errorf("releasing a buffer twice didn't panic")
		}
	}()
	buf.Release()
}

func TestPoolStaleHandle(t *testing.T) {
	pool := NewBufferPool(1, 64, true)

	stale, err := pool.Take()
	if err != nil {
		t.Fatalf("couldn't take a buffer: %v", err)
	}
	stale.Release()

	fresh, err := pool.Take()
	if err != nil {
		t.Fatalf("couldn't take the buffer again: %v", err)
	}
	defer fresh.Release()

	if stale.Bytes() != nil || stale.Cap() != 0 {
		t.Errorf("a released handle still reaches its slab")
	}

	// The slab was poisoned on release.
	raw := fresh.raw()
	for i, c := range raw {
		if c != poisonByte {
			t.Fatalf("byte %d is %#x; want poison %#x", i, c, poisonByte)
		}
	}
}

func TestPoolConcurrent(t *testing.T) {
	pool := NewBufferPool(8, 32, true)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf, err := pool.Take()
				if err != nil {
					continue
				}
				buf.Release()
			}
		}()
	}
	wg.Wait()

	if pool.Available() != 8 {
		t.Errorf("got %d available; want 8", pool.Available())
	}
}
