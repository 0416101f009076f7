package topology

import (
	"fmt"
	"strings"
	"time"
)

// Suggestion thresholds.
const (
	sequentialFactor = 1.5
	branchingFactor  = 3.0
	complexRouting   = 4.0
)

// Report aggregates topology and partitioning metrics of a graph.
type Report struct {
	Nodes       int
	Connections int
	Levels      [][]string
	// ParallelismFactor is the ratio of node count to sequential depth.
	// Values near 1 indicate a pure pipeline, larger values indicate
	// branching.
	ParallelismFactor         float64
	AverageConnectionsPerNode float64
	IndependentChains         int
	Parallelizable            bool
	// Latency is the critical path latency of the slowest chain.
	Latency     time.Duration
	Suggestions []string
}

// Analyze produces a report for the graph. The latency function
// provides per-node latency estimates and may be nil.
func Analyze(nodes []string, edges []Edge, latency func(string) time.Duration) (Report, error) {
	levels, err := Levels(nodes, edges)
	if err != nil {
		return Report{}, err
	}
	chains, err := Partition(nodes, edges, latency)
	if err != nil {
		return Report{}, err
	}

	var count int
	for _, level := range levels {
		count += len(level)
	}
	r := Report{
		Nodes:             count,
		Connections:       len(edges),
		Levels:            levels,
		IndependentChains: len(chains),
		Parallelizable:    len(chains) > 1,
	}
	if len(levels) > 0 {
		r.ParallelismFactor = float64(count) / float64(len(levels))
	}
	if count > 0 {
		r.AverageConnectionsPerNode = float64(len(edges)) / float64(count)
	}
	for _, c := range chains {
		if c.Latency > r.Latency {
			r.Latency = c.Latency
		}
	}
	r.Suggestions = suggestions(r)
	return r, nil
}

// suggestions classifies the report against fixed thresholds. It is a
// pure function of the numbers, not a recommendation engine.
func suggestions(r Report) []string {
	if r.Nodes == 0 {
		return nil
	}
	var s []string
	if r.ParallelismFactor < sequentialFactor {
		s = append(s, "sequential pipeline")
	}
	if r.ParallelismFactor >= branchingFactor {
		s = append(s, "wide branching: most nodes are independent within levels")
	}
	if r.AverageConnectionsPerNode > complexRouting {
		s = append(s, "complex routing, consider simplification")
	}
	if r.IndependentChains > 1 {
		s = append(s, fmt.Sprintf("%d independent chains: consider running them on separate hosts", r.IndependentChains))
	}
	return s
}

// String returns a human-readable rendition of the report.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "nodes:\t%d\n", r.Nodes)
	fmt.Fprintf(&b, "connections:\t%d\n", r.Connections)
	fmt.Fprintf(&b, "depth:\t%d\n", len(r.Levels))
	fmt.Fprintf(&b, "parallelism factor:\t%.2f\n", r.ParallelismFactor)
	fmt.Fprintf(&b, "connections per node:\t%.2f\n", r.AverageConnectionsPerNode)
	fmt.Fprintf(&b, "independent chains:\t%d\n", r.IndependentChains)
	fmt.Fprintf(&b, "parallelizable:\t%t\n", r.Parallelizable)
	fmt.Fprintf(&b, "estimated latency:\t%v\n", r.Latency)
	for _, s := range r.Suggestions {
		fmt.Fprintf(&b, "suggestion:\t%s\n", s)
	}
	return b.String()
}
