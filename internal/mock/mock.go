// Package mock provides graph nodes for tests.
package mock

import (
	"sync"
	"sync/atomic"

	"github.com/pipelined/signal"

	"pipelined.dev/graph"
)

// Counter counts node invocations.
type Counter struct {
	callbacks int32
	frames    int64
}

func (c *Counter) advance(frames int) {
	atomic.AddInt32(&c.callbacks, 1)
	atomic.AddInt64(&c.frames, int64(frames))
}

// Callbacks returns the number of process calls.
func (c *Counter) Callbacks() int {
	return int(atomic.LoadInt32(&c.callbacks))
}

// Frames returns the number of processed frames.
func (c *Counter) Frames() int {
	return int(atomic.LoadInt64(&c.frames))
}

// Generator mocks a source node: it fills its output with Value.
type Generator struct {
	Counter
	Value       float64
	ErrorOnCall error
}

// Node returns the node definition for the generator.
func (m *Generator) Node(name string) graph.Node {
	return graph.Node{
		Name:    name,
		Outputs: 1,
		Process: func(in, out signal.Float64) error {
			if m.ErrorOnCall != nil {
				return m.ErrorOnCall
			}
			for ch := range out {
				for i := range out[ch] {
					out[ch][i] = m.Value
				}
			}
			m.advance(out.Size())
			return nil
		},
	}
}

// Gain mocks a processor node: it scales its input by Factor.
type Gain struct {
	Counter
	Factor      float64
	ErrorOnCall error
}

// Node returns the node definition for the gain.
func (m *Gain) Node(name string) graph.Node {
	return graph.Node{
		Name:    name,
		Inputs:  1,
		Outputs: 1,
		Process: func(in, out signal.Float64) error {
			if m.ErrorOnCall != nil {
				return m.ErrorOnCall
			}
			for ch := range out {
				for i := range out[ch] {
					out[ch][i] = in[ch][i] * m.Factor
				}
			}
			m.advance(out.Size())
			return nil
		},
	}
}

// Recorder mocks a sink node: it passes its input through and appends
// it to an internal buffer. The buffer allocates, so recorders belong
// to tests, not to real-time code.
type Recorder struct {
	Counter
	Flushed bool

	mu     sync.Mutex
	buffer signal.Float64
}

// Node returns the node definition for the recorder.
func (m *Recorder) Node(name string) graph.Node {
	return graph.Node{
		Name:    name,
		Inputs:  1,
		Outputs: 1,
		Process: func(in, out signal.Float64) error {
			for ch := range out {
				copy(out[ch], in[ch])
			}
			m.mu.Lock()
			m.buffer = m.buffer.Append(in)
			m.mu.Unlock()
			m.advance(in.Size())
			return nil
		},
		Flush: func() error {
			m.Flushed = true
			return nil
		},
	}
}

// Buffer returns everything recorded so far.
func (m *Recorder) Buffer() signal.Float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer
}
