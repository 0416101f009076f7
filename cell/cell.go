// Package cell provides a single-writer/multi-reader slot for
// reference-counted immutable values. Readers load the current value
// without blocking or allocating; the writer exchanges values and keeps
// superseded ones on a retirement list until no reader holds them, so
// destruction always happens on the writer side.
package cell

import (
	"runtime"
	"sync/atomic"
)

type (
	// Resource is a reference-counted payload held by a Cell.
	Resource interface {
		// Retain adds a reference.
		Retain()
		// Release drops a reference and finalizes the payload when the
		// last one is gone.
		Release()
		// Refs returns the current reference count.
		Refs() int32
	}

	// Cell is a concurrent slot holding a single Resource. Load is safe
	// for any number of concurrent readers. Store, Exchange, Reset,
	// Sweep and Drained must be called by a single writer.
	Cell struct {
		lock    uint32
		current Resource
		retired []Resource
	}
)

// RefCount is an intrusive reference counter to be embedded by payload
// types. Its zero value carries no references; the Cell takes the first
// one on Store.
type RefCount struct {
	refs int32
	// Finalize is invoked once, when the last reference is released.
	// It must be set before the payload is shared.
	Finalize func()
}

// Retain implements Resource.
func (c *RefCount) Retain() {
	atomic.AddInt32(&c.refs, 1)
}

// Release implements Resource.
func (c *RefCount) Release() {
	switch refs := atomic.AddInt32(&c.refs, -1); {
	case refs == 0:
		if c.Finalize != nil {
			c.Finalize()
		}
	case refs < 0:
		panic("cell: release of a released resource")
	}
}

// Refs implements Resource.
func (c *RefCount) Refs() int32 {
	return atomic.LoadInt32(&c.refs)
}

// Load returns the current resource with a new reference, or nil if
// nothing is published. The caller must Release the reference. Load
// never allocates and never blocks beyond the pointer-swap critical
// section.
func (c *Cell) Load() Resource {
	c.acquire()
	v := c.current
	if v != nil {
		v.Retain()
	}
	c.release()
	return v
}

// Exchange publishes v and returns the previously published resource.
// The cell's reference to the previous resource is handed to the
// caller.
func (c *Cell) Exchange(v Resource) Resource {
	if v != nil {
		v.Retain()
	}
	c.acquire()
	prev := c.current
	c.current = v
	c.release()
	return prev
}

// Store publishes v, retires the previously published resource and
// sweeps the retirement list.
func (c *Cell) Store(v Resource) {
	c.retire(c.Exchange(v))
}

// Reset retires the current resource without publishing a new one.
func (c *Cell) Reset() {
	c.retire(c.Exchange(nil))
}

// Sweep releases retired resources that have no holders left and
// returns the number of resources still retained. Finalizers run on the
// calling goroutine.
func (c *Cell) Sweep() int {
	kept := c.retired[:0]
	for _, r := range c.retired {
		// the list itself holds the last reference
		if r.Refs() == 1 {
			r.Release()
		} else {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(c.retired); i++ {
		c.retired[i] = nil
	}
	c.retired = kept
	return len(kept)
}

// Drained reports whether the cell publishes nothing and retains
// nothing.
func (c *Cell) Drained() bool {
	c.acquire()
	current := c.current
	c.release()
	return current == nil && len(c.retired) == 0
}

func (c *Cell) retire(prev Resource) {
	if prev != nil {
		c.retired = append(c.retired, prev)
	}
	c.Sweep()
}

// acquire spins on a test-and-set flag. The flag is held only across
// pointer swaps and reference bumps, never across allocation or
// payload construction.
func (c *Cell) acquire() {
	for !atomic.CompareAndSwapUint32(&c.lock, 0, 1) {
		runtime.Gosched()
	}
}

func (c *Cell) release() {
	atomic.StoreUint32(&c.lock, 0)
}
