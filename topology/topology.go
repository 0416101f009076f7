// Package topology analyzes directed acyclic processing graphs. It
// computes topological levelings, extracts independent subgraphs and
// derives parallelism metrics. The analysis is advisory: it informs the
// decision to split work across separate graph hosts, it never drives
// concurrent execution.
package topology

import (
	"errors"
	"sort"
)

// ErrCycle is returned when a graph cannot be leveled because of a
// dependency cycle.
var ErrCycle = errors.New("topology: cycle detected")

// Edge is a directed connection between two nodes.
type Edge struct {
	From string
	To   string
}

// Levels returns the topological leveling of the graph: level i holds
// exactly the nodes whose longest predecessor chain has length i. Nodes
// within a level are sorted by id to keep the output reproducible.
// Edges referring to unknown nodes are ignored.
func Levels(nodes []string, edges []Edge) ([][]string, error) {
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	adjacency := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if _, ok := inDegree[e.From]; !ok {
			continue
		}
		if _, ok := inDegree[e.To]; !ok {
			continue
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
		inDegree[e.To]++
	}

	var ready []string
	for n, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, n)
		}
	}

	var (
		levels  [][]string
		leveled int
	)
	for len(ready) > 0 {
		sort.Strings(ready)
		levels = append(levels, ready)
		leveled += len(ready)

		var next []string
		for _, n := range ready {
			for _, to := range adjacency[n] {
				if inDegree[to]--; inDegree[to] == 0 {
					next = append(next, to)
				}
			}
		}
		ready = next
	}
	if leveled != len(inDegree) {
		return nil, ErrCycle
	}
	return levels, nil
}
