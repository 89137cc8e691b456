// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

// GetUpstreams returns the distinct one-hop upstream nodes of id, in
// edge order. Parallel edges to the same upstream collapse to one
// result. Returns nil when id is unknown.
func (g *Graph) GetUpstreams(id registry.Identity) []*Node {
	node, ok := g.identityNodes[id.Key()]
	if !ok {
		return nil
	}

	var out []*Node
	seen := make(map[string]bool)
	for _, edge := range node.UpstreamEdges {
		key := edge.Upstream.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if up, ok := g.identityNodes[key]; ok {
			out = append(out, up)
		}
	}
	return out
}

// GetDownstreams returns the distinct one-hop downstream nodes of id:
// every node with an edge pointing at id. Served from the reverse
// index, so it costs the same as GetUpstreams.
func (g *Graph) GetDownstreams(id registry.Identity) []*Node {
	var out []*Node
	seen := make(map[string]bool)
	for _, edge := range g.edgesWithUpstream[id.Key()] {
		key := edge.Downstream.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if down, ok := g.identityNodes[key]; ok {
			out = append(out, down)
		}
	}
	return out
}

// GetAllUpstreams returns every node transitively reachable from id
// along upstream edges, in breadth-first order.
//
// The start node is excluded unless a cycle reaches back to it, in
// which case it appears exactly once. Traversal checks ctx between
// frontier expansions and returns ctx.Err on cancellation.
func (g *Graph) GetAllUpstreams(ctx context.Context, id registry.Identity) ([]*Node, error) {
	return g.walk(ctx, id, func(n *Node) []*Node {
		return g.GetUpstreams(n.Identity)
	})
}

// GetAllDownstreams returns every node transitively reachable from id
// along reversed edges, in breadth-first order, with the same start
// node and cancellation semantics as GetAllUpstreams.
func (g *Graph) GetAllDownstreams(ctx context.Context, id registry.Identity) ([]*Node, error) {
	return g.walk(ctx, id, func(n *Node) []*Node {
		return g.GetDownstreams(n.Identity)
	})
}

// walk runs a breadth-first traversal from id using next to expand
// each node. The start node is deliberately not pre-marked visited so
// a cycle back to it includes it once in the result.
func (g *Graph) walk(ctx context.Context, id registry.Identity, next func(*Node) []*Node) ([]*Node, error) {
	start, ok := g.identityNodes[id.Key()]
	if !ok {
		return nil, nil
	}

	var result []*Node
	visited := make(map[string]bool)
	queue := []*Node{start}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		node := queue[0]
		queue = queue[1:]
		for _, n := range next(node) {
			key := n.Identity.Key()
			if visited[key] {
				continue
			}
			visited[key] = true
			result = append(result, n)
			queue = append(queue, n)
		}
	}
	return result, nil
}

// GetRootNodes returns every node that no edge points at, i.e. the
// entry points of the dependency graph.
func (g *Graph) GetRootNodes() []*Node {
	var roots []*Node
	for _, node := range g.nodes {
		if len(g.edgesWithUpstream[node.Identity.Key()]) == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}

// GetLeafNodes returns every node with no upstream edges, sentinels
// included.
func (g *Graph) GetLeafNodes() []*Node {
	var leaves []*Node
	for _, node := range g.nodes {
		if node.IsLeaf() {
			leaves = append(leaves, node)
		}
	}
	return leaves
}
