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
	"fmt"
	"sort"
	"strings"
)

// DiagnosticOptions configures ToDiagnosticGraphText.
type DiagnosticOptions struct {
	// IncludeLegend appends a legend cluster explaining the styles.
	// Default: true
	IncludeLegend bool

	// IncludeCoherencyRedirects appends a section listing upstreams
	// that a coherency mechanism substituted.
	// Default: true
	IncludeCoherencyRedirects bool

	// Direction is the graph direction (TB, LR, BT, RL).
	// Default: "LR"
	Direction string
}

// DefaultDiagnosticOptions returns sensible defaults.
func DefaultDiagnosticOptions() DiagnosticOptions {
	return DiagnosticOptions{
		IncludeLegend:             true,
		IncludeCoherencyRedirects: true,
		Direction:                 "LR",
	}
}

// edge styles per skip reason. Expanded edges get weight through
// penwidth; skipped edges are dotted and color-coded.
var skipEdgeStyles = map[SkipReason]string{
	SkipSelfReference:     `color="gray50", style="dotted"`,
	SkipCircularReference: `color="orange", style="dotted"`,
	SkipIgnoredRepo:       `color="steelblue", style="dotted"`,
	SkipMissingCommit:     `color="red", style="dotted"`,
	SkipHostPolicy:        `color="purple", style="dotted"`,
}

// ToDiagnosticGraphText serializes the graph as a Graphviz DOT
// document for human inspection.
//
// # Description
//
// Every node appears once; parallel edges between the same
// (downstream, upstream) pair collapse into one visual edge carrying
// the strongest styling of the group. Product-critical edges render
// bold green and tint their upstream node; skipped edges are dotted
// and color-coded by reason; an edge group none of whose members was
// a first discoverer renders dashed. When the graph has more than one
// root, a synthetic anchor node fans out to all of them so layout
// stays connected.
//
// Output is deterministic: nodes and edge groups are emitted in
// sorted identity order.
func (g *Graph) ToDiagnosticGraphText(opts DiagnosticOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "LR"
	}

	sb.WriteString("digraph dependencies {\n")
	sb.WriteString(fmt.Sprintf("    rankdir=%s;\n", direction))
	sb.WriteString("    node [shape=box, style=filled, fillcolor=\"white\"];\n")
	sb.WriteString("\n")

	criticalUpstreams := g.collectCriticalUpstreams()
	sentinelKeys := make(map[string]bool, len(g.sentinels))
	for _, id := range g.sentinels {
		sentinelKeys[id.Key()] = true
	}

	// Nodes, sorted for stable output.
	nodes := make([]*Node, len(g.nodes))
	copy(nodes, g.nodes)
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Identity.Key() < nodes[j].Identity.Key()
	})
	for _, node := range nodes {
		attrs := ""
		switch {
		case criticalUpstreams[node.Identity.Key()]:
			attrs = `, fillcolor="palegreen"`
		case sentinelKeys[node.Identity.Key()]:
			attrs = `, fillcolor="gray92", color="gray60"`
		}
		sb.WriteString(fmt.Sprintf("    %s [label=\"%s\"%s];\n",
			dotID(node.Identity.Key()), escapeDOTLabel(node.Identity.String()), attrs))
	}
	sb.WriteString("\n")

	// Edge groups keyed by (downstream, upstream), sorted.
	groups := g.groupEdges()
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		group := groups[key]
		sb.WriteString(fmt.Sprintf("    %s -> %s [%s];\n",
			dotID(group[0].Downstream.Key()), dotID(group[0].Upstream.Key()),
			edgeGroupAttrs(group)))
	}

	// Synthetic anchor when the graph has several entry points.
	roots := g.GetRootNodes()
	if len(roots) > 1 {
		sb.WriteString("\n")
		sb.WriteString("    __roots [label=\"roots\", shape=point];\n")
		sort.Slice(roots, func(i, j int) bool {
			return roots[i].Identity.Key() < roots[j].Identity.Key()
		})
		for _, root := range roots {
			sb.WriteString(fmt.Sprintf("    __roots -> %s [style=\"invis\"];\n",
				dotID(root.Identity.Key())))
		}
	}

	if opts.IncludeCoherencyRedirects {
		g.writeCoherencyRedirects(&sb)
	}
	if opts.IncludeLegend {
		writeLegend(&sb)
	}

	sb.WriteString("}\n")
	return sb.String()
}

// collectCriticalUpstreams returns the keys of upstream identities
// with at least one product-critical incoming edge.
func (g *Graph) collectCriticalUpstreams() map[string]bool {
	critical := make(map[string]bool)
	for key, edges := range g.edgesWithUpstream {
		for _, edge := range edges {
			if edge.ProductCritical {
				critical[key] = true
				break
			}
		}
	}
	return critical
}

// groupEdges collapses parallel edges by (downstream, upstream) key.
func (g *Graph) groupEdges() map[string][]*Edge {
	groups := make(map[string][]*Edge)
	for _, node := range g.nodes {
		for _, edge := range node.UpstreamEdges {
			key := edge.Downstream.Key() + " -> " + edge.Upstream.Key()
			groups[key] = append(groups[key], edge)
		}
	}
	return groups
}

// edgeGroupAttrs derives DOT attributes for a collapsed edge group.
// Precedence: product-critical, then expanded, then skipped.
func edgeGroupAttrs(group []*Edge) string {
	var (
		critical   bool
		expanded   bool
		discoverer bool
		skip       SkipReason
	)
	for _, edge := range group {
		if edge.ProductCritical {
			critical = true
		}
		if edge.Skipped == SkipNone {
			expanded = true
		} else {
			skip = edge.Skipped
		}
		if edge.FirstDiscoverer {
			discoverer = true
		}
	}

	var attrs string
	switch {
	case critical:
		attrs = `color="green", penwidth=3`
	case expanded:
		attrs = `penwidth=2`
	default:
		attrs = skipEdgeStyles[skip]
		attrs += fmt.Sprintf(`, label="%s"`, skip)
	}
	if !discoverer {
		if strings.Contains(attrs, "style=") {
			attrs = strings.Replace(attrs, `style="dotted"`, `style="dotted,dashed"`, 1)
		} else {
			attrs += `, style="dashed"`
		}
	}
	return attrs
}

// writeCoherencyRedirects lists upstreams that were substituted by a
// coherency override, as label-only nodes in their own cluster.
func (g *Graph) writeCoherencyRedirects(sb *strings.Builder) {
	var lines []string
	for _, node := range g.nodes {
		for _, edge := range node.UpstreamEdges {
			if edge.OverriddenUpstream == nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("used %s, displaced %s (declared by %s)",
				edge.Upstream, *edge.OverriddenUpstream, edge.Downstream))
		}
	}
	if len(lines) == 0 {
		return
	}
	sort.Strings(lines)

	sb.WriteString("\n")
	sb.WriteString("    subgraph cluster_coherency {\n")
	sb.WriteString("        label=\"coherency redirects\";\n")
	sb.WriteString("        style=dashed;\n")
	for i, line := range lines {
		sb.WriteString(fmt.Sprintf("        coherency_%d [label=\"%s\", shape=note];\n",
			i, escapeDOTLabel(line)))
	}
	sb.WriteString("    }\n")
}

// writeLegend appends a cluster with one sample node per edge style.
func writeLegend(sb *strings.Builder) {
	sb.WriteString("\n")
	sb.WriteString("    subgraph cluster_legend {\n")
	sb.WriteString("        label=\"legend\";\n")
	sb.WriteString("        style=solid;\n")
	sb.WriteString("        legend_a [label=\"downstream\"];\n")
	sb.WriteString("        legend_b [label=\"upstream\"];\n")
	sb.WriteString("        legend_a -> legend_b [penwidth=2, label=\"expanded\"];\n")
	sb.WriteString("        legend_a -> legend_b [color=\"green\", penwidth=3, label=\"product critical\"];\n")
	sb.WriteString("        legend_a -> legend_b [style=\"dashed\", label=\"rediscovered\"];\n")

	reasons := make([]SkipReason, 0, len(skipEdgeStyles))
	for reason := range skipEdgeStyles {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, reason := range reasons {
		sb.WriteString(fmt.Sprintf("        legend_a -> legend_b [%s, label=\"%s\"];\n",
			skipEdgeStyles[reason], reason))
	}
	sb.WriteString("    }\n")
}

func dotID(s string) string {
	return fmt.Sprintf("%q", s)
}

func escapeDOTLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "\\\"",
		"\n", "\\n",
	)
	return replacer.Replace(s)
}
