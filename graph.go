package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/pipelined/signal"
	"github.com/rs/xid"

	"pipelined.dev/graph/topology"
)

// DefaultLatency is the estimated processing latency assumed for nodes
// that don't declare one. It only feeds the topology analysis, it is
// never measured.
const DefaultLatency = time.Millisecond

type (
	// Port is the index of a node input or output.
	Port int

	// ProcessFunc is the work of a node, invoked once per callback. in
	// holds the summed output of all connected upstream nodes, out must
	// be filled by the node. Both buffers are reused between callbacks
	// and must not be retained. Returning an error mutes the node for
	// the rest of the callback; it is counted, never surfaced to the
	// real-time caller.
	ProcessFunc func(in, out signal.Float64) error

	// FlushFunc is an optional node teardown hook. It runs on the
	// control thread when the host is closed.
	FlushFunc func() error

	// Node is a single processing unit of the graph.
	Node struct {
		// ID is assigned by AddNode and stays stable for the lifetime
		// of the node.
		ID      string
		Name    string
		Inputs  int
		Outputs int
		// Latency is the declared processing latency estimate used by
		// the topology analysis.
		Latency time.Duration
		Process ProcessFunc
		Flush   FlushFunc
	}

	// Connection is a directed edge between an output port of the
	// source node and an input port of the destination node.
	Connection struct {
		Source     string
		SourcePort Port
		Dest       string
		DestPort   Port
	}

	// Graph is the mutable graph definition. It is confined to the
	// control thread: the real-time thread only ever observes immutable
	// snapshots built from it.
	Graph struct {
		nodes       map[string]Node
		connections []Connection
	}
)

// NewGraph returns a new empty graph definition.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
	}
}

// AddNode adds the node and returns its assigned id. Ids are k-sortable
// by creation time, so the deterministic id ordering used to break
// level ties follows insertion order.
func (g *Graph) AddNode(n Node) (string, error) {
	if n.Process == nil || n.Inputs < 0 || n.Outputs < 0 {
		return "", fmt.Errorf("add node %q: %w", n.Name, ErrInvalidNode)
	}
	n.ID = xid.New().String()
	if n.Latency <= 0 {
		n.Latency = DefaultLatency
	}
	g.nodes[n.ID] = n
	return n.ID, nil
}

// RemoveNode removes the node and all its connections.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("remove node %s: %w", id, ErrDanglingNode)
	}
	delete(g.nodes, id)
	kept := g.connections[:0]
	for _, c := range g.connections {
		if c.Source != id && c.Dest != id {
			kept = append(kept, c)
		}
	}
	g.connections = kept
	return nil
}

// Connect adds a directed connection. The edit is rejected if either
// endpoint is unknown, a port is out of range or the connection would
// close a cycle. Connecting an already connected pair of ports is a
// no-op.
func (g *Graph) Connect(source string, sourcePort Port, dest string, destPort Port) error {
	src, ok := g.nodes[source]
	if !ok {
		return fmt.Errorf("connect source %s: %w", source, ErrDanglingNode)
	}
	dst, ok := g.nodes[dest]
	if !ok {
		return fmt.Errorf("connect dest %s: %w", dest, ErrDanglingNode)
	}
	if sourcePort < 0 || int(sourcePort) >= src.Outputs {
		return fmt.Errorf("connect source port %d of %s: %w", sourcePort, source, ErrDanglingPort)
	}
	if destPort < 0 || int(destPort) >= dst.Inputs {
		return fmt.Errorf("connect dest port %d of %s: %w", destPort, dest, ErrDanglingPort)
	}
	c := Connection{
		Source:     source,
		SourcePort: sourcePort,
		Dest:       dest,
		DestPort:   destPort,
	}
	for _, existing := range g.connections {
		if existing == c {
			return nil
		}
	}

	candidate := append(append(make([]Connection, 0, len(g.connections)+1), g.connections...), c)
	if _, err := topology.Levels(g.ids(), edges(candidate)); err != nil {
		return fmt.Errorf("connect %s -> %s: %w", source, dest, err)
	}
	g.connections = candidate
	return nil
}

// Disconnect removes a connection.
func (g *Graph) Disconnect(source string, sourcePort Port, dest string, destPort Port) error {
	c := Connection{
		Source:     source,
		SourcePort: sourcePort,
		Dest:       dest,
		DestPort:   destPort,
	}
	for i, existing := range g.connections {
		if existing == c {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("disconnect %s -> %s: %w", source, dest, ErrNotConnected)
}

// Node returns the node with provided id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []Node {
	ids := g.ids()
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Connections returns a copy of all connections.
func (g *Graph) Connections() []Connection {
	return append([]Connection(nil), g.connections...)
}

// Analyze produces the topology report for the graph.
func (g *Graph) Analyze() (topology.Report, error) {
	return topology.Analyze(g.ids(), edges(g.connections), g.latency)
}

func (g *Graph) latency(id string) time.Duration {
	return g.nodes[id].Latency
}

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) clone() *Graph {
	nodes := make(map[string]Node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	return &Graph{
		nodes:       nodes,
		connections: append([]Connection(nil), g.connections...),
	}
}

func edges(connections []Connection) []topology.Edge {
	es := make([]topology.Edge, 0, len(connections))
	for _, c := range connections {
		es = append(es, topology.Edge{From: c.Source, To: c.Dest})
	}
	return es
}
