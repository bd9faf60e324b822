package streams

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireReleaseUnique(t *testing.T) {
	p := New()
	seen := make(map[int8]bool)
	var ids []int8
	for i := 0; i < Max; i++ {
		id, err := p.Acquire(nil)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if p.Available() != 0 {
		t.Fatalf("expected 0 available, got %d", p.Available())
	}
	p.Release(ids[0])
	if p.Available() != 1 {
		t.Fatalf("expected 1 available after release, got %d", p.Available())
	}
}

func TestExhaustionParksAndPromotesOne(t *testing.T) {
	p := New()
	var ids []int8
	for i := 0; i < Max; i++ {
		id, err := p.Acquire(nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	got := make(chan int8, 1)
	go func() {
		id, err := p.Acquire(nil)
		if err != nil {
			t.Error(err)
			return
		}
		got <- id
	}()

	// give the parked goroutine a chance to register before releasing
	time.Sleep(10 * time.Millisecond)
	p.Release(ids[0])

	select {
	case id := <-got:
		if id != ids[0] {
			t.Fatalf("promoted waiter got %d, want %d", id, ids[0])
		}
	case <-time.After(time.Second):
		t.Fatal("parked acquire never promoted")
	}
}

func TestAcquireCanceledByDone(t *testing.T) {
	p := New()
	for i := 0; i < Max; i++ {
		if _, err := p.Acquire(nil); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(done)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(done)

	select {
	case err := <-errCh:
		if err != ErrCanceled {
			t.Fatalf("got %v, want ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled acquire never returned")
	}
}

func TestCloseFailsParkedWaiters(t *testing.T) {
	p := New()
	for i := 0; i < Max; i++ {
		if _, err := p.Acquire(nil); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Acquire(nil)
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	p.Close()
	wg.Wait()

	for i, err := range errs {
		if err != ErrClosed {
			t.Fatalf("waiter %d: got %v, want ErrClosed", i, err)
		}
	}

	if _, err := p.Acquire(nil); err != ErrClosed {
		t.Fatalf("acquire after close: got %v, want ErrClosed", err)
	}
}
