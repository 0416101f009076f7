package topology

import (
	"sort"
	"time"
)

// Chain is a maximal independent subgraph: a set of nodes connected to
// each other and disjoint from every other chain. Latency is the sum of
// per-node latencies along the chain's critical path.
type Chain struct {
	Nodes   []string
	Edges   []Edge
	Latency time.Duration
}

// Partition splits the graph into maximal independent chains using
// undirected connected-components discovery. Isolated nodes are
// reported as one-node chains. Chains are ordered by their smallest
// node id; a nil latency function yields zero latencies.
func Partition(nodes []string, edges []Edge, latency func(string) time.Duration) ([]Chain, error) {
	parents := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parents[n] = n
	}
	for _, e := range edges {
		if _, ok := parents[e.From]; !ok {
			continue
		}
		if _, ok := parents[e.To]; !ok {
			continue
		}
		union(parents, e.From, e.To)
	}

	members := make(map[string][]string)
	for n := range parents {
		root := find(parents, n)
		members[root] = append(members[root], n)
	}

	chains := make([]Chain, 0, len(members))
	for root, ns := range members {
		sort.Strings(ns)
		var induced []Edge
		for _, e := range edges {
			if _, ok := parents[e.From]; !ok {
				continue
			}
			if find(parents, e.From) == root {
				induced = append(induced, e)
			}
		}
		critical, err := criticalPath(ns, induced, latency)
		if err != nil {
			return nil, err
		}
		chains = append(chains, Chain{
			Nodes:   ns,
			Edges:   induced,
			Latency: critical,
		})
	}
	sort.Slice(chains, func(i, j int) bool {
		return chains[i].Nodes[0] < chains[j].Nodes[0]
	})
	return chains, nil
}

// criticalPath returns the largest latency sum over all paths of the
// subgraph.
func criticalPath(nodes []string, edges []Edge, latency func(string) time.Duration) (time.Duration, error) {
	levels, err := Levels(nodes, edges)
	if err != nil {
		return 0, err
	}
	predecessors := make(map[string][]string, len(nodes))
	for _, e := range edges {
		predecessors[e.To] = append(predecessors[e.To], e.From)
	}

	distance := make(map[string]time.Duration, len(nodes))
	var critical time.Duration
	for _, level := range levels {
		for _, n := range level {
			var longest time.Duration
			for _, p := range predecessors[n] {
				if d := distance[p]; d > longest {
					longest = d
				}
			}
			d := longest
			if latency != nil {
				d += latency(n)
			}
			distance[n] = d
			if d > critical {
				critical = d
			}
		}
	}
	return critical, nil
}

func find(parents map[string]string, n string) string {
	root := n
	for parents[root] != root {
		root = parents[root]
	}
	// path compression
	for parents[n] != root {
		parents[n], n = root, parents[n]
	}
	return root
}

func union(parents map[string]string, a, b string) {
	ra, rb := find(parents, a), find(parents, b)
	if ra == rb {
		return
	}
	// smaller root id wins to keep grouping deterministic
	if ra < rb {
		parents[rb] = ra
	} else {
		parents[ra] = rb
	}
}
