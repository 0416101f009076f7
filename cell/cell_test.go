package cell_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"pipelined.dev/graph/cell"
)

// payload is a refcounted test resource.
type payload struct {
	cell.RefCount
	value     int
	finalized *int32
}

func newPayload(value int, finalized *int32) *payload {
	p := payload{value: value, finalized: finalized}
	p.Finalize = func() {
		atomic.AddInt32(p.finalized, 1)
	}
	return &p
}

func TestLoadEmpty(t *testing.T) {
	var c cell.Cell
	if v := c.Load(); v != nil {
		t.Fatalf("load of empty cell returned %v", v)
	}
	if !c.Drained() {
		t.Fatal("empty cell is not drained")
	}
}

func TestStoreRetiresPrevious(t *testing.T) {
	var (
		c          cell.Cell
		finalized  int32
		finalized2 int32
	)
	first := newPayload(1, &finalized)
	c.Store(first)

	if v := c.Load(); v.(*payload).value != 1 {
		t.Fatalf("loaded value %d, expected 1", v.(*payload).value)
	} else {
		v.Release()
	}

	// no readers left, store must finalize the previous payload
	c.Store(newPayload(2, &finalized2))
	if atomic.LoadInt32(&finalized) != 1 {
		t.Fatal("superseded payload was not finalized")
	}
	if atomic.LoadInt32(&finalized2) != 0 {
		t.Fatal("current payload was finalized")
	}
}

func TestRetainedByReader(t *testing.T) {
	var (
		c         cell.Cell
		finalized int32
	)
	c.Store(newPayload(1, &finalized))

	held := c.Load()
	c.Store(newPayload(2, &finalized))
	if atomic.LoadInt32(&finalized) != 0 {
		t.Fatal("payload finalized while a reader holds it")
	}
	if retained := c.Sweep(); retained != 1 {
		t.Fatalf("retained %d payloads, expected 1", retained)
	}

	held.Release()
	if retained := c.Sweep(); retained != 0 {
		t.Fatalf("retained %d payloads, expected 0", retained)
	}
	if atomic.LoadInt32(&finalized) != 1 {
		t.Fatal("released payload was not finalized")
	}
}

func TestExchangeHandsOverReference(t *testing.T) {
	var (
		c         cell.Cell
		finalized int32
	)
	c.Store(newPayload(1, &finalized))

	prev := c.Exchange(newPayload(2, &finalized))
	if prev.(*payload).value != 1 {
		t.Fatalf("exchanged value %d, expected 1", prev.(*payload).value)
	}
	if atomic.LoadInt32(&finalized) != 0 {
		t.Fatal("payload finalized before the caller released it")
	}
	prev.Release()
	if atomic.LoadInt32(&finalized) != 1 {
		t.Fatal("payload not finalized after release")
	}
}

func TestReset(t *testing.T) {
	var (
		c         cell.Cell
		finalized int32
	)
	c.Store(newPayload(1, &finalized))
	c.Reset()
	if v := c.Load(); v != nil {
		t.Fatalf("load after reset returned %v", v)
	}
	if !c.Drained() {
		t.Fatal("cell not drained after reset")
	}
	if atomic.LoadInt32(&finalized) != 1 {
		t.Fatal("reset payload was not finalized")
	}
}

// TestConcurrentReaders verifies that readers always observe a complete
// payload and that nothing is finalized while a reference is held.
func TestConcurrentReaders(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	var (
		c         cell.Cell
		finalized int32
		stop      int32
	)
	stores := 1000
	c.Store(newPayload(0, &finalized))

	var wg sync.WaitGroup
	readers := 4
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			var last int
			for atomic.LoadInt32(&stop) == 0 {
				v := c.Load()
				p := v.(*payload)
				if p.Refs() < 2 {
					t.Error("held payload has no reference")
				}
				// published values never move backwards
				if p.value < last {
					t.Errorf("read %d after %d", p.value, last)
				}
				last = p.value
				v.Release()
			}
		}()
	}

	for i := 1; i <= stores; i++ {
		c.Store(newPayload(i, &finalized))
	}
	atomic.StoreInt32(&stop, 1)
	wg.Wait()

	c.Reset()
	for c.Sweep() > 0 {
	}
	if got := atomic.LoadInt32(&finalized); got != int32(stores)+1 {
		t.Fatalf("finalized %d payloads, expected %d", got, stores+1)
	}
}
