// Package await provides an adaptive rendezvous on a changing value. A
// waiter spins for a bounded budget checking the value and only then
// parks on the OS, so short waits resolve without scheduler latency and
// long waits don't burn a core.
package await

import (
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	// spinBase is the check budget of the first spin round.
	spinBase = 8
	// spinRounds is the number of budget doublings before parking.
	spinRounds = 10
	// spinLimit caps the check budget of a single round.
	spinLimit = 8192
)

// Value is a watchable counter. Writers bump it with Signal, waiters
// block in Wait until the value differs from the one they observed.
type Value struct {
	v        uint64
	mu       sync.Mutex
	cond     *sync.Cond
	sleepers int
}

// New returns a new Value starting at zero.
func New() *Value {
	v := Value{}
	v.cond = sync.NewCond(&v.mu)
	return &v
}

// Load returns the current value.
func (v *Value) Load() uint64 {
	return atomic.LoadUint64(&v.v)
}

// Signal increments the value and wakes the waiters parked in Wait.
// Waiters still in their spin phase observe the change directly.
func (v *Value) Signal() {
	atomic.AddUint64(&v.v, 1)
	v.mu.Lock()
	sleepers := v.sleepers
	v.mu.Unlock()
	if sleepers > 0 {
		v.cond.Broadcast()
	}
}

// Wait blocks until the value differs from observed and returns the new
// value. It spins with an exponentially growing check budget before
// falling back to a blocking wait.
func (v *Value) Wait(observed uint64) uint64 {
	budget := spinBase
	for round := 0; round <= spinRounds; round++ {
		for i := 0; i < budget; i++ {
			if cur := atomic.LoadUint64(&v.v); cur != observed {
				return cur
			}
			runtime.Gosched()
		}
		if budget < spinLimit {
			budget <<= 1
		}
	}

	v.mu.Lock()
	v.sleepers++
	for {
		if cur := atomic.LoadUint64(&v.v); cur != observed {
			v.sleepers--
			v.mu.Unlock()
			return cur
		}
		v.cond.Wait()
	}
}
