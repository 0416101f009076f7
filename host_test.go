package graph_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pipelined/signal"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/internal/mock"
)

const sampleRate = 44100

func TestProcessEmpty(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New()
	assertNil(t, "error", err)

	out := signal.Float64Buffer(2, 512)
	// processing without a published snapshot is a no-op
	h.Process(out, sampleRate)
	for ch := range out {
		for i := range out[ch] {
			assertEqual(t, "sample", out[ch][i], 0.0)
		}
	}
	assertNil(t, "close error", h.Close())
}

func TestHostProcess(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New(graph.WithBufferSize(512), graph.WithChannels(2))
	assertNil(t, "error", err)

	generator := mock.Generator{Value: 0.5}
	gain := mock.Gain{Factor: 2}
	recorder := mock.Recorder{}
	var src, proc, sink string
	err = h.Edit(
		graph.AddNode(generator.Node("generator"), &src),
		graph.AddNode(gain.Node("gain"), &proc),
		graph.AddNode(recorder.Node("recorder"), &sink),
		graph.Connect(src, 0, proc, 0),
		graph.Connect(proc, 0, sink, 0),
	)
	assertNil(t, "edit error", err)

	out := signal.Float64Buffer(2, 512)
	callbacks := 10
	for i := 0; i < callbacks; i++ {
		h.Process(out, sampleRate)
	}

	for ch := range out {
		for i := range out[ch] {
			if out[ch][i] != 1.0 {
				t.Fatalf("channel %d sample %d: %v expected 1.0", ch, i, out[ch][i])
			}
		}
	}
	assertEqual(t, "generator callbacks", generator.Callbacks(), callbacks)
	assertEqual(t, "recorded frames", recorder.Buffer().Size(), callbacks*512)
	assertEqual(t, "recorded channels", recorder.Buffer().NumChannels(), 2)
	assertEqual(t, "recorded sample", recorder.Buffer()[0][0], 1.0)

	assertNil(t, "close error", h.Close())
	assertEqual(t, "flushed", recorder.Flushed, true)
}

func TestEditTransactional(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New()
	assertNil(t, "error", err)

	gain := mock.Gain{Factor: 1}
	var a, b string
	err = h.Edit(
		graph.AddNode(gain.Node("a"), &a),
		graph.AddNode(gain.Node("b"), &b),
		graph.Connect(a, 0, b, 0),
	)
	assertNil(t, "edit error", err)

	s := h.Snapshot()
	order := s.Order()
	s.Release()

	// the closing edge forms a cycle, the whole edit is rejected
	err = h.Edit(
		graph.AddNode(gain.Node("c"), nil),
		graph.Connect(b, 0, a, 0),
	)
	assertEqual(t, "error", errors.Is(err, graph.ErrCycle), true)

	s = h.Snapshot()
	assertEqual(t, "order", s.Order(), order)
	s.Release()

	assertNil(t, "close error", h.Close())
}

func TestEditWhileProcessing(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New(graph.WithChannels(1))
	assertNil(t, "error", err)

	generator := mock.Generator{Value: 1}
	var src string
	assertNil(t, "edit error", h.Edit(graph.AddNode(generator.Node("generator"), &src)))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		out := signal.Float64Buffer(1, 64)
		for {
			select {
			case <-done:
				return
			default:
			}
			h.Process(out, sampleRate)
			// every callback runs against a single snapshot, so the
			// buffer never mixes samples of two graph generations
			first := out[0][0]
			for i := range out[0] {
				if out[0][i] != first {
					t.Errorf("torn buffer: sample %d is %v, first is %v", i, out[0][i], first)
					return
				}
			}
		}
	}()

	gain := mock.Gain{Factor: 3}
	for i := 0; i < 100; i++ {
		var proc string
		assertNil(t, "edit error", h.Edit(
			graph.AddNode(gain.Node("gain"), &proc),
			graph.Connect(src, 0, proc, 0),
		))
		assertNil(t, "edit error", h.Edit(graph.RemoveNode(proc)))
	}
	close(done)
	wg.Wait()

	assertNil(t, "close error", h.Close())
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New()
	assertNil(t, "error", err)

	recorder := mock.Recorder{}
	var sink string
	assertNil(t, "edit error", h.Edit(graph.AddNode(recorder.Node("recorder"), &sink)))

	assertNil(t, "close error", h.Close())
	assertEqual(t, "flushed", recorder.Flushed, true)

	assertEqual(t, "close error", errors.Is(h.Close(), graph.ErrClosed), true)
	assertEqual(t, "edit error", errors.Is(h.Edit(graph.RemoveNode(sink)), graph.ErrClosed), true)
	_, err = h.Analyze()
	assertEqual(t, "analyze error", errors.Is(err, graph.ErrClosed), true)
}

func TestCloseWithHeldSnapshot(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New()
	assertNil(t, "error", err)

	generator := mock.Generator{Value: 1}
	assertNil(t, "edit error", h.Edit(graph.AddNode(generator.Node("generator"), nil)))

	s := h.Snapshot()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// drop the last outside reference after teardown has begun;
		// close must observe the release no matter which thread did it
		time.Sleep(10 * time.Millisecond)
		s.Release()
	}()
	assertNil(t, "close error", h.Close())
	wg.Wait()
}

func TestProcessOversizedBuffer(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New(graph.WithBufferSize(8), graph.WithChannels(1))
	assertNil(t, "error", err)

	generator := mock.Generator{Value: 1}
	assertNil(t, "edit error", h.Edit(graph.AddNode(generator.Node("generator"), nil)))

	// callback larger than the configured buffer size produces the
	// first bufferSize frames and zeroes the rest
	out := signal.Float64Buffer(1, 16)
	for i := range out[0] {
		out[0][i] = 2
	}
	h.Process(out, sampleRate)
	for i := 0; i < 8; i++ {
		assertEqual(t, "sample", out[0][i], 1.0)
	}
	for i := 8; i < 16; i++ {
		assertEqual(t, "tail sample", out[0][i], 0.0)
	}
	assertEqual(t, "frames", generator.Frames(), 8)

	assertNil(t, "close error", h.Close())
}

func TestRemovedNodeFlush(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New()
	assertNil(t, "error", err)

	recorder := mock.Recorder{}
	var sink string
	assertNil(t, "edit error", h.Edit(graph.AddNode(recorder.Node("recorder"), &sink)))
	assertNil(t, "edit error", h.Edit(graph.RemoveNode(sink)))
	// removal does not flush, teardown does
	assertEqual(t, "flushed", recorder.Flushed, false)

	assertNil(t, "close error", h.Close())
	assertEqual(t, "flushed", recorder.Flushed, true)
}

func TestLoad(t *testing.T) {
	defer goleak.VerifyNoLeaks(t)
	h, err := graph.New()
	assertNil(t, "error", err)

	generator := mock.Generator{Value: 1}
	assertNil(t, "edit error", h.Edit(graph.AddNode(generator.Node("generator"), nil)))

	out := signal.Float64Buffer(2, 512)
	for i := 0; i < 10; i++ {
		h.Process(out, sampleRate)
	}
	if load := h.Load(); load < 0 {
		t.Fatalf("negative load: %v", load)
	}
	assertNil(t, "close error", h.Close())
}

func TestOptions(t *testing.T) {
	_, err := graph.New(graph.WithBufferSize(0))
	assertEqual(t, "error", errors.Is(err, graph.ErrInvalidConfig), true)
	_, err = graph.New(graph.WithChannels(-1))
	assertEqual(t, "error", errors.Is(err, graph.ErrInvalidConfig), true)
}
