// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "assemble.yaml"

// --- Global Command Variables ---
var (
	configPath      string
	storeRoot       string
	gitDirRoot      string
	overridesPath   string
	ignoredRepos    []string
	includeToolsets bool
	forceCoherence  bool
	depth           int
	allowedHost     string
	anyHost         bool
	workers         int
	outputPath      string
	noLegend        bool
	noCoherency     bool
	verbose         bool

	rootCmd = &cobra.Command{
		Use:   "assemble",
		Short: "A cli to discover and clone multi-repository dependency graphs",
		Long: `Assemble discovers the full transitive dependency graph of a set
of seed repositories pinned to commits, materializes the minimal set of
shared clones needed to read it, and renders the result for inspection.`,
	}

	// --- Discovery ---
	discoverCmd = &cobra.Command{
		Use:   "discover [repo@commit...]",
		Short: "Discover the transitive dependency graph from seed repositories",
		Args:  cobra.MinimumNArgs(1),
		Run:   runDiscover, // Defined in cmd_discover.go
	}

	// --- Graph ---
	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Work with a discovered dependency graph",
	}
	graphRenderCmd = &cobra.Command{
		Use:   "render [repo@commit...]",
		Short: "Discover and render the dependency graph as Graphviz DOT text",
		Args:  cobra.MinimumNArgs(1),
		Run:   runGraphRender, // Defined in cmd_graph.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&storeRoot, "store-root", "", "Parent directory for shared clones")
	rootCmd.PersistentFlags().StringVar(&gitDirRoot, "git-dir-root", "", "Optional parent directory for git metadata, separate from working folders")
	rootCmd.PersistentFlags().StringVar(&overridesPath, "overrides", "", "Path to the XML dependency-override document")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{discoverCmd, graphRenderCmd} {
		cmd.Flags().StringSliceVar(&ignoredRepos, "ignore", nil, "Repository URIs to exclude from expansion")
		cmd.Flags().BoolVar(&includeToolsets, "include-toolsets", false, "Follow build-toolset dependencies too")
		cmd.Flags().BoolVar(&forceCoherence, "force-coherence", false, "Mark the run for a downstream coherency pass")
		cmd.Flags().IntVar(&depth, "depth", -1, "Expansion depth budget (0 = roots only, -1 = unlimited)")
		cmd.Flags().StringVar(&allowedHost, "allowed-host", "", "Restrict expansion to repositories on this host")
		cmd.Flags().BoolVar(&anyHost, "any-host", false, "Follow dependencies on any host")
		cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent work items per level")
	}

	graphRenderCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write DOT output to this file instead of stdout")
	graphRenderCmd.Flags().BoolVar(&noLegend, "no-legend", false, "Omit the legend cluster")
	graphRenderCmd.Flags().BoolVar(&noCoherency, "no-coherency", false, "Omit the coherency redirect section")

	graphCmd.AddCommand(graphRenderCmd)
	rootCmd.AddCommand(discoverCmd, graphCmd)
}
