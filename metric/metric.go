// Package metric measures real-time thread occupancy and publishes
// host counters via expvar.
package metric

import (
	"expvar"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipelined/signal"
)

const metersLabel = "graph.host"

const (
	// CallbackCounter measures number of processed callbacks.
	CallbackCounter = "Callbacks"
	// FrameCounter measures number of processed frames.
	FrameCounter = "Frames"
	// ProcessingCounter measures cumulative processing time.
	ProcessingCounter = "Processing"
	// LoadCounter publishes the current held load value.
	LoadCounter = "Load"
	// NodeErrorCounter counts node processing errors.
	NodeErrorCounter = "NodeErrors"
)

// DefaultHold is the window during which a peak load value is retained
// before it decays to the latest sample.
const DefaultHold = 3 * time.Second

var meters = struct {
	sync.Mutex
	m map[string]*LoadMeter
}{
	m: make(map[string]*LoadMeter),
}

// LoadMeter measures the occupancy of the real-time thread as the ratio
// of processing time to the time available for the processed frames.
// Normalizing by the actual frame count keeps the measurement correct
// under variable callback sizes. Start and Stop are called by the
// real-time thread only; Load is safe from any thread.
type LoadMeter struct {
	hold time.Duration
	now  func() time.Time

	startedAt time.Time // written only between Start and Stop
	latest    uint64    // atomic, float64 bits of the last sample
	peak      uint64    // atomic, float64 bits of the held peak
	peakAt    int64     // atomic, unix nanos of the held peak

	callbacks  *expvar.Int
	frames     *expvar.Int
	nodeErrors *expvar.Int
	processing *duration
}

// New returns the meter registered under provided name, creating and
// publishing it on first use.
func New(name string) *LoadMeter {
	meters.Lock()
	defer meters.Unlock()
	if m, ok := meters.m[name]; ok {
		return m
	}
	m := &LoadMeter{
		hold:       DefaultHold,
		now:        time.Now,
		callbacks:  expvar.NewInt(key(name, CallbackCounter)),
		frames:     expvar.NewInt(key(name, FrameCounter)),
		nodeErrors: expvar.NewInt(key(name, NodeErrorCounter)),
		processing: &duration{},
	}
	expvar.Publish(key(name, ProcessingCounter), m.processing)
	expvar.Publish(key(name, LoadCounter), expvar.Func(m.loadVar))
	meters.m[name] = m
	return m
}

// Start marks the beginning of a processing callback.
func (m *LoadMeter) Start() {
	m.startedAt = m.now()
}

// Stop marks the end of a processing callback for the provided frame
// count and sample rate. Non-positive frames or sample rate leave the
// meter untouched.
func (m *LoadMeter) Stop(frames int, sampleRate int) {
	if frames <= 0 || sampleRate <= 0 {
		return
	}
	now := m.now()
	elapsed := now.Sub(m.startedAt)
	available := signal.SampleRate(sampleRate).DurationOf(frames)
	if available <= 0 {
		return
	}
	load := float64(elapsed) / float64(available)

	atomic.StoreUint64(&m.latest, math.Float64bits(load))
	peak := math.Float64frombits(atomic.LoadUint64(&m.peak))
	peakAt := time.Unix(0, atomic.LoadInt64(&m.peakAt))
	if load >= peak || now.Sub(peakAt) > m.hold {
		atomic.StoreUint64(&m.peak, math.Float64bits(load))
		atomic.StoreInt64(&m.peakAt, now.UnixNano())
	}

	m.callbacks.Add(1)
	m.frames.Add(int64(frames))
	m.processing.add(elapsed)
}

// Load returns the held peak load.
func (m *LoadMeter) Load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.peak))
}

// Latest returns the most recent load sample.
func (m *LoadMeter) Latest() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.latest))
}

// NodeErrors counts node processing errors observed during a callback.
func (m *LoadMeter) NodeErrors(n int) {
	m.nodeErrors.Add(int64(n))
}

func (m *LoadMeter) loadVar() interface{} {
	return m.Load()
}

func key(name, counter string) string {
	return fmt.Sprintf("%s.%s.%s", metersLabel, name, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%v", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}
