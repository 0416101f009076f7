package graph

import (
	"fmt"

	"github.com/pipelined/signal"

	"pipelined.dev/graph/cell"
	"pipelined.dev/graph/topology"
)

type (
	// Snapshot is an immutable, fully-linked execution plan built from
	// a graph definition. Once published it is never mutated: every
	// edit produces a brand-new snapshot. Snapshots are reference
	// counted; the host's cell owns one reference, every loader owns
	// another until released.
	Snapshot struct {
		cell.RefCount

		bufferSize int
		nodes      []executionNode
		levels     [][]string
		// onRelease is invoked after every reference drop. The host
		// uses it to wake its teardown drain, no matter which thread
		// held the reference.
		onRelease func()
	}

	// executionNode is a node bound into a snapshot. Its buffers are
	// preallocated at build time so the callback never allocates.
	executionNode struct {
		id      string
		process ProcessFunc
		in      signal.Float64
		out     signal.Float64
		// sources are output buffers of upstream nodes, summed into in
		// before the node runs. Upstream nodes always execute earlier.
		sources []signal.Float64
		sink    bool
	}
)

// newSnapshot builds a snapshot from the definition. Nodes are laid out
// in non-decreasing level order with ties broken by id, so every node
// runs after all nodes feeding its inputs.
func newSnapshot(g *Graph, bufferSize, channels int) (*Snapshot, error) {
	levels, err := topology.Levels(g.ids(), edges(g.connections))
	if err != nil {
		return nil, err
	}

	s := Snapshot{
		bufferSize: bufferSize,
		levels:     levels,
	}
	position := make(map[string]int, len(g.nodes))
	for _, level := range levels {
		for _, id := range level {
			n := g.nodes[id]
			position[id] = len(s.nodes)
			s.nodes = append(s.nodes, executionNode{
				id:      id,
				process: n.Process,
				in:      signal.Float64Buffer(channels, bufferSize),
				out:     signal.Float64Buffer(channels, bufferSize),
				sink:    true,
			})
		}
	}

	for _, c := range g.connections {
		from, ok := position[c.Source]
		if !ok {
			panic(fmt.Sprintf("graph: corrupt snapshot: connection from unknown node %s", c.Source))
		}
		to, ok := position[c.Dest]
		if !ok {
			panic(fmt.Sprintf("graph: corrupt snapshot: connection to unknown node %s", c.Dest))
		}
		if from >= to {
			panic(fmt.Sprintf("graph: corrupt snapshot: %s ordered before its source %s", c.Dest, c.Source))
		}
		s.nodes[to].sources = append(s.nodes[to].sources, s.nodes[from].out)
		s.nodes[from].sink = false
	}
	return &s, nil
}

// Release drops a reference and notifies the release hook.
func (s *Snapshot) Release() {
	s.RefCount.Release()
	if s.onRelease != nil {
		s.onRelease()
	}
}

// Levels returns the topological leveling the snapshot was built from.
// The returned slices are shared and must not be mutated.
func (s *Snapshot) Levels() [][]string {
	return s.levels
}

// Order returns node ids in execution order.
func (s *Snapshot) Order() []string {
	order := make([]string, 0, len(s.nodes))
	for i := range s.nodes {
		order = append(order, s.nodes[i].id)
	}
	return order
}

// process executes all nodes sequentially in snapshot order and sums
// the output of sink nodes into out. It returns the number of node
// errors. Allocation-free.
func (s *Snapshot) process(out signal.Float64, frames int) int {
	if frames > s.bufferSize {
		frames = s.bufferSize
	}
	// the whole buffer is zeroed: when the callback is larger than the
	// snapshot's buffer size only the first frames are produced and the
	// tail must not carry samples of the previous callback
	zero(out, out.Size())

	errs := 0
	for i := range s.nodes {
		n := &s.nodes[i]
		reslice(n.in, frames)
		reslice(n.out, frames)
		zero(n.in, frames)
		for _, src := range n.sources {
			mix(n.in, src, frames)
		}
		if err := n.process(n.in, n.out); err != nil {
			zero(n.out, frames)
			errs++
		}
		if n.sink {
			mix(out, n.out, frames)
		}
	}
	return errs
}

// reslice adjusts buffer length to the callback frame count. Capacity
// stays at the snapshot's buffer size.
func reslice(b signal.Float64, frames int) {
	for ch := range b {
		b[ch] = b[ch][:frames]
	}
}

func zero(b signal.Float64, frames int) {
	for ch := range b {
		if frames > len(b[ch]) {
			frames = len(b[ch])
		}
		for i := 0; i < frames; i++ {
			b[ch][i] = 0
		}
	}
}

func mix(dest, source signal.Float64, frames int) {
	channels := len(dest)
	if len(source) < channels {
		channels = len(source)
	}
	for ch := 0; ch < channels; ch++ {
		n := frames
		if n > len(dest[ch]) {
			n = len(dest[ch])
		}
		if n > len(source[ch]) {
			n = len(source[ch])
		}
		for i := 0; i < n; i++ {
			dest[ch][i] += source[ch][i]
		}
	}
}
