// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph is the queryable dependency graph built from a
// finished discovery run.
//
// The graph is a downstream consumer of discovery, not a participant
// in its concurrency: it is built once from the completed node/edge
// collection, then read from any number of goroutines.
package graph

import (
	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

// SkipReason records why a discovered dependency relation was excluded
// from expansion and kept only for diagnostics.
type SkipReason int

const (
	// SkipNone marks a relation that was expanded normally.
	SkipNone SkipReason = iota

	// SkipSelfReference: the dependency names its own repository.
	SkipSelfReference

	// SkipCircularReference: recording the relation would close a
	// dependency cycle that an earlier level already established.
	SkipCircularReference

	// SkipIgnoredRepo: the dependency's repository is on the ignore list.
	SkipIgnoredRepo

	// SkipMissingCommit: the dependency declares no commit, so it
	// cannot be pinned for cloning.
	SkipMissingCommit

	// SkipHostPolicy: the dependency's repository is on a host outside
	// the allowed expansion domain.
	SkipHostPolicy

	// NumSkipReasons is the total number of reasons (for array sizing).
	NumSkipReasons
)

// skipReasonNames maps SkipReason values to their string representations.
var skipReasonNames = map[SkipReason]string{
	SkipNone:              "none",
	SkipSelfReference:     "self_reference",
	SkipCircularReference: "circular_reference",
	SkipIgnoredRepo:       "ignored_repo",
	SkipMissingCommit:     "missing_commit",
	SkipHostPolicy:        "host_policy",
}

// String returns the string representation of the SkipReason.
func (r SkipReason) String() string {
	if name, ok := skipReasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Edge represents one discovered dependency relation: downstream
// declares a dependency on upstream.
//
// Multiple edges between the same pair are allowed, representing
// separate discovery events; the diagnostic serialization collapses
// them into one visual edge.
type Edge struct {
	// Downstream is the identity declaring the dependency.
	Downstream registry.Identity

	// Upstream is the identity depended upon.
	Upstream registry.Identity

	// Source is the manifest declaration behind the edge, when known.
	Source *manifest.DependencyRecord

	// Skipped is set when the edge was recorded only for diagnostics
	// and not expanded further.
	Skipped SkipReason

	// ProductCritical marks the edge for distinct diagnostic styling.
	ProductCritical bool

	// FirstDiscoverer marks the edge that first pulled its upstream
	// into the discovery frontier. Used only for visualization.
	FirstDiscoverer bool

	// OverriddenUpstream, when set, records that a coherency mechanism
	// substituted a different upstream than literally declared.
	OverriddenUpstream *registry.Identity
}

// Node is an identity plus the set of edges from it to its upstreams.
// A node with no upstream edges is a leaf.
type Node struct {
	// Identity names the node.
	Identity registry.Identity

	// UpstreamEdges are the edges whose Downstream is this node.
	UpstreamEdges []*Edge
}

// IsLeaf reports whether the node has no upstream edges.
func (n *Node) IsLeaf() bool {
	return len(n.UpstreamEdges) == 0
}

// Graph owns the full node list plus two derived indices: an
// identity-to-node index and a reverse index from upstream identity to
// every edge pointing at it.
//
// # Invariants
//
// After AddMissingLeafNodes, every edge's upstream identity has a
// corresponding node, so all traversal operations are total. The two
// indices are always rebuilt together; no partial-index state is
// visible to callers.
//
// # Thread Safety
//
// NOT safe for concurrent mutation. Build the graph once, then read
// from any number of goroutines.
type Graph struct {
	// nodes holds every node in insertion order.
	nodes []*Node

	// identityNodes indexes nodes by Identity.Key().
	identityNodes map[string]*Node

	// edgesWithUpstream groups all edges by their upstream
	// Identity.Key(), across all nodes.
	edgesWithUpstream map[string][]*Edge

	// sentinels records identities synthesized by AddMissingLeafNodes,
	// for diagnostics.
	sentinels []registry.Identity
}

// Build indexes the given nodes into a Graph.
//
// Nodes are indexed by identity (case-insensitive) and the reverse
// upstream index is built by grouping all edges by upstream identity.
// Call AddMissingLeafNodes afterwards to guarantee traversal totality.
func Build(nodes []*Node) *Graph {
	g := &Graph{nodes: nodes}
	g.rebuildIndexes()
	return g
}

// rebuildIndexes rebuilds both derived indices from g.nodes. Always
// called for both together so callers never observe one updated
// without the other.
func (g *Graph) rebuildIndexes() {
	identityNodes := make(map[string]*Node, len(g.nodes))
	edgesWithUpstream := make(map[string][]*Edge)

	for _, node := range g.nodes {
		identityNodes[node.Identity.Key()] = node
		for _, edge := range node.UpstreamEdges {
			key := edge.Upstream.Key()
			edgesWithUpstream[key] = append(edgesWithUpstream[key], edge)
		}
	}

	g.identityNodes = identityNodes
	g.edgesWithUpstream = edgesWithUpstream
}

// AddMissingLeafNodes synthesizes a leafless sentinel node for every
// upstream identity that has no node of its own, then rebuilds the
// indices including the sentinels.
//
// Returns the synthesized identities; they are also retained on the
// graph for diagnostics via Sentinels().
func (g *Graph) AddMissingLeafNodes() []registry.Identity {
	var added []registry.Identity
	seen := make(map[string]bool)

	for _, node := range g.nodes {
		for _, edge := range node.UpstreamEdges {
			key := edge.Upstream.Key()
			if _, ok := g.identityNodes[key]; ok || seen[key] {
				continue
			}
			seen[key] = true
			added = append(added, edge.Upstream)
		}
	}

	for _, id := range added {
		g.nodes = append(g.nodes, &Node{Identity: id})
	}
	g.sentinels = append(g.sentinels, added...)
	g.rebuildIndexes()
	return added
}

// Node returns the node for id, if present.
func (g *Graph) Node(id registry.Identity) (*Node, bool) {
	node, ok := g.identityNodes[id.Key()]
	return node, ok
}

// Nodes returns every node in the graph, sentinels included.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Sentinels returns the identities synthesized by AddMissingLeafNodes.
func (g *Graph) Sentinels() []registry.Identity {
	return g.sentinels
}

// Edges returns every edge in the graph in node order.
func (g *Graph) Edges() []*Edge {
	var edges []*Edge
	for _, node := range g.nodes {
		edges = append(edges, node.UpstreamEdges...)
	}
	return edges
}
