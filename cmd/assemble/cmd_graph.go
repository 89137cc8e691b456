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
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/graph"
)

func runGraphRender(cmd *cobra.Command, args []string) {
	ctx, cancel := runContext()
	defer cancel()

	logger := newLogger()
	defer logger.Close()
	shutdown := initTelemetry(ctx)
	defer shutdown(context.Background())

	roots, err := parseRoots(args)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	svc, err := newService(logger)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	g, _, err := svc.DiscoverAndBuild(ctx, roots, discoveryOptions(logger)...)
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}

	opts := graph.DefaultDiagnosticOptions()
	opts.IncludeLegend = !noLegend
	opts.IncludeCoherencyRedirects = !noCoherency
	dot := g.ToDiagnosticGraphText(opts)

	if outputPath == "" {
		fmt.Print(dot)
		return
	}
	if err := os.WriteFile(outputPath, []byte(dot), 0o644); err != nil {
		log.Fatalf("Error writing %s: %v", outputPath, err)
	}
	fmt.Printf("Wrote %s\n", outputPath)
}
