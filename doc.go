/*
Package graph hosts a dynamically-reconfigurable directed graph of audio
processing nodes and executes it once per real-time callback.

Concept

Two execution contexts share a host. The control thread edits the graph:
it adds, removes and reconnects nodes, may block and may allocate. The
real-time thread runs the audio callback: it must never block on the
control thread, never allocate and never run teardown. The host keeps
the two apart with a single primitive: an immutable, reference-counted
snapshot of the graph published through a shared cell.

	control thread                      real-time thread

	Edit ──▶ new snapshot ──▶ cell ──▶ Process loads snapshot,
	         (previous one            runs nodes in level order,
	          retired and swept)      releases reference

A snapshot, once published, is never mutated. Every edit clones the
definition, validates the delta, builds a brand-new snapshot and
exchanges it into the cell. The previous snapshot stays valid for the
callback that is still draining it; it is destroyed on the control
thread once the last reference is gone.

Nodes

A node is a processing unit with input and output ports and an opaque
process closure invoked once per callback:

	var id string
	err := host.Edit(
		graph.AddNode(graph.Node{
			Name:    "gain",
			Inputs:  1,
			Outputs: 1,
			Process: process,
		}, &id),
	)

Connections are directed edges between ports. They induce a partial
order: a node never executes before the nodes feeding its inputs.
Execution order is fixed at snapshot build time as a topological
leveling with ties broken by node id. Edits that would close a cycle or
refer to missing nodes or ports are rejected before anything is
published, so the real-time thread never observes a broken graph.

Execution is intentionally sequential. The topology package measures
how parallel a graph could be, but that analysis is advisory: it helps
decide whether to split work across separate hosts, each with its own
real-time thread.

Observability

The host measures real-time thread occupancy as processing time over
available time, normalized by the actual callback size, with a
three-second peak hold. Load is readable from any thread and host
counters are published via expvar.
*/
package graph
