package graph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pipelined/signal"
	"github.com/rs/xid"

	"pipelined.dev/graph/cell"
	"pipelined.dev/graph/internal/await"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/topology"
)

// Defaults for host construction.
const (
	DefaultBufferSize = 512
	DefaultChannels   = 2
)

// Host states.
const (
	stateEmpty int32 = iota
	stateConfigured
	stateRunning
	stateClosed
)

type (
	// Host owns the mutable graph definition on the control thread,
	// builds immutable snapshots from it and drives their sequential
	// execution on the real-time thread. Edit, Analyze and Close are
	// control-thread methods and serialize on an internal mutex;
	// Process, Snapshot and Load are safe from any thread and never
	// block beyond the snapshot cell's pointer swap.
	Host struct {
		id         string
		bufferSize int
		channels   int

		mu      sync.Mutex // serializes control-thread methods
		def     *Graph
		flushes []FlushFunc // hooks of removed nodes, run on Close

		status  int32  // atomic
		closing uint32 // atomic

		cell    cell.Cell
		drained *await.Value
		meter   *metric.LoadMeter
		log     log.Logger
	}

	// Option provides a way to set functional parameters to the host.
	Option func(*Host) error

	// Delta is a single edit of the graph definition. Deltas are
	// applied to a scratch copy: when any of them fails, the definition
	// and the published snapshot stay untouched.
	Delta func(*Graph) error
)

// New creates a new host and applies provided options. Returned host is
// in empty state: processing is a no-op until the first edit publishes
// a snapshot.
func New(options ...Option) (*Host, error) {
	h := &Host{
		id:         xid.New().String(),
		bufferSize: DefaultBufferSize,
		channels:   DefaultChannels,
		def:        NewGraph(),
		drained:    await.New(),
		log:        log.GetLogger(),
	}
	for _, option := range options {
		if err := option(h); err != nil {
			return nil, err
		}
	}
	h.meter = metric.New(h.id)
	return h, nil
}

// WithLogger sets logger to the host. If this option is not provided,
// a default logrus logger is used.
func WithLogger(l log.Logger) Option {
	return func(h *Host) error {
		h.log = l
		return nil
	}
}

// WithBufferSize sets the maximum callback size the host preallocates
// for.
func WithBufferSize(bufferSize int) Option {
	return func(h *Host) error {
		if bufferSize <= 0 {
			return fmt.Errorf("buffer size %d: %w", bufferSize, ErrInvalidConfig)
		}
		h.bufferSize = bufferSize
		return nil
	}
}

// WithChannels sets the number of signal channels.
func WithChannels(channels int) Option {
	return func(h *Host) error {
		if channels <= 0 {
			return fmt.Errorf("channels %d: %w", channels, ErrInvalidConfig)
		}
		h.channels = channels
		return nil
	}
}

// AddNode returns a delta that adds the node. If id is not nil, it
// receives the assigned node id; the value is only valid when the whole
// edit succeeds.
func AddNode(n Node, id *string) Delta {
	return func(g *Graph) error {
		assigned, err := g.AddNode(n)
		if err != nil {
			return err
		}
		if id != nil {
			*id = assigned
		}
		return nil
	}
}

// RemoveNode returns a delta that removes the node and its connections.
func RemoveNode(id string) Delta {
	return func(g *Graph) error {
		return g.RemoveNode(id)
	}
}

// Connect returns a delta that adds a connection.
func Connect(source string, sourcePort Port, dest string, destPort Port) Delta {
	return func(g *Graph) error {
		return g.Connect(source, sourcePort, dest, destPort)
	}
}

// Disconnect returns a delta that removes a connection.
func Disconnect(source string, sourcePort Port, dest string, destPort Port) Delta {
	return func(g *Graph) error {
		return g.Disconnect(source, sourcePort, dest, destPort)
	}
}

// Edit applies deltas to the graph definition and publishes a new
// snapshot. The edit is transactional: if any delta is rejected,
// nothing changes and the real-time thread keeps running the previous
// snapshot. The previous snapshot stays valid for in-flight use and is
// torn down on the control thread once the real-time thread releases
// it.
func (h *Host) Edit(deltas ...Delta) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if atomic.LoadInt32(&h.status) == stateClosed {
		return &EditError{Op: "edit", Err: ErrClosed}
	}

	next := h.def.clone()
	for _, delta := range deltas {
		if err := delta(next); err != nil {
			return &EditError{Op: "edit", Err: err}
		}
	}
	s, err := newSnapshot(next, h.bufferSize, h.channels)
	if err != nil {
		return &EditError{Op: "edit", Err: err}
	}
	s.onRelease = h.snapshotReleased

	// flush hooks of removed nodes run when the host closes
	for id, n := range h.def.nodes {
		if _, ok := next.nodes[id]; !ok && n.Flush != nil {
			h.flushes = append(h.flushes, n.Flush)
		}
	}

	h.def = next
	h.cell.Store(s)
	atomic.CompareAndSwapInt32(&h.status, stateEmpty, stateConfigured)
	h.log.Debug("graph: published snapshot of ", len(next.nodes), " nodes")
	return nil
}

// Process executes the current snapshot once. It is invoked by the
// real-time thread once per callback deadline: it loads the snapshot
// without blocking, runs all nodes in level order, sums sink outputs
// into out and records the timing. It never allocates and never
// surfaces errors; without a published snapshot it is a no-op.
func (h *Host) Process(out signal.Float64, sampleRate int) {
	v := h.cell.Load()
	if v == nil {
		return
	}
	s := v.(*Snapshot)
	atomic.CompareAndSwapInt32(&h.status, stateConfigured, stateRunning)

	frames := out.Size()
	if frames > h.bufferSize {
		frames = h.bufferSize
	}
	h.meter.Start()
	errs := s.process(out, frames)
	h.meter.Stop(frames, sampleRate)
	if errs > 0 {
		h.meter.NodeErrors(errs)
	}
	s.Release()
}

// snapshotReleased wakes the teardown drain once the host is closing.
// Any holder of a snapshot reference may be the last one, so the hook
// fires on every release regardless of the releasing thread.
func (h *Host) snapshotReleased() {
	if atomic.LoadUint32(&h.closing) == 1 {
		h.drained.Signal()
	}
}

// Snapshot returns a retained reference to the current snapshot, or nil
// if nothing is published. The caller must Release it.
func (h *Host) Snapshot() *Snapshot {
	v := h.cell.Load()
	if v == nil {
		return nil
	}
	return v.(*Snapshot)
}

// Analyze produces the topology report for the current graph
// definition.
func (h *Host) Analyze() (topology.Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if atomic.LoadInt32(&h.status) == stateClosed {
		return topology.Report{}, ErrClosed
	}
	return h.def.Analyze()
}

// Load returns the current held peak of the real-time thread load.
func (h *Host) Load() float64 {
	return h.meter.Load()
}

// Close tears the host down. It retires the published snapshot, waits
// until the real-time thread releases the last reference to any
// snapshot and then runs node flush hooks on the calling thread.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if atomic.LoadInt32(&h.status) == stateClosed {
		return ErrClosed
	}
	atomic.StoreUint32(&h.closing, 1)
	h.cell.Reset()
	for {
		observed := h.drained.Load()
		if h.cell.Sweep() == 0 {
			break
		}
		h.drained.Wait(observed)
	}
	atomic.StoreInt32(&h.status, stateClosed)

	errs := flushErrors{}
	for _, flush := range h.flushes {
		if err := flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, n := range h.def.Nodes() {
		if n.Flush != nil {
			if err := n.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs.ret()
}
