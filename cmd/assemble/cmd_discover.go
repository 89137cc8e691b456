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
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
	"github.com/AleutianAI/AleutianAssemble/services/assemble"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/discovery"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/telemetry"
)

// parseRoots parses "repo@commit" seed arguments. The last "@" splits,
// so scp-style remotes with a user component still parse.
func parseRoots(args []string) ([]registry.Identity, error) {
	roots := make([]registry.Identity, 0, len(args))
	for _, arg := range args {
		at := strings.LastIndex(arg, "@")
		if at <= 0 || at == len(arg)-1 {
			return nil, fmt.Errorf("seed %q is not of the form repo@commit", arg)
		}
		roots = append(roots, registry.NewIdentity(arg[:at], arg[at+1:]))
	}
	return roots, nil
}

// newLogger builds the CLI logger from flags and file config.
func newLogger() *logging.Logger {
	level := logging.LevelInfo
	if verbose || strings.EqualFold(config.LogLevel, "debug") {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  config.LogDir,
		Service: "assemble",
	})
}

// newService builds the assemble service, with flags taking precedence
// over the config file.
func newService(log *logging.Logger) (*assemble.Service, error) {
	cfg := assemble.Config{
		StoreRoot:     config.StoreRoot,
		GitDirRoot:    config.GitDirRoot,
		OverridesPath: config.OverridesPath,
	}
	if storeRoot != "" {
		cfg.StoreRoot = storeRoot
	}
	if gitDirRoot != "" {
		cfg.GitDirRoot = gitDirRoot
	}
	if overridesPath != "" {
		cfg.OverridesPath = overridesPath
	}
	return assemble.New(cfg, assemble.WithServiceLogger(log))
}

// discoveryOptions translates command flags into discovery options.
func discoveryOptions(log *logging.Logger) []discovery.Option {
	opts := []discovery.Option{
		discovery.WithLogger(log),
		discovery.WithDepth(depth),
	}
	if len(ignoredRepos) > 0 {
		opts = append(opts, discovery.WithIgnoredRepos(ignoredRepos...))
	}
	if includeToolsets {
		opts = append(opts, discovery.WithToolsets())
	}
	if forceCoherence {
		opts = append(opts, discovery.WithForceCoherence())
	}
	if allowedHost != "" {
		opts = append(opts, discovery.WithAllowedHost(allowedHost))
	}
	if anyHost {
		opts = append(opts, discovery.WithAnyHost())
	}
	if workers > 0 {
		opts = append(opts, discovery.WithMaxWorkers(workers))
	}
	return opts
}

// runContext returns a context cancelled by SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func initTelemetry(ctx context.Context) func(context.Context) error {
	cfg := telemetry.DefaultConfig()
	if config.MetricsExporter != "" {
		cfg.MetricExporter = config.MetricsExporter
	}
	shutdown, err := telemetry.Init(ctx, cfg)
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}

func runDiscover(cmd *cobra.Command, args []string) {
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

	g, result, err := svc.DiscoverAndBuild(ctx, roots, discoveryOptions(logger)...)
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}

	fmt.Printf("Discovered %d repositories across %d levels.\n", result.Registry.Len(), result.Levels)
	if result.Partial {
		fmt.Printf("Partial result: %d identities abandoned at the depth limit.\n", len(result.Abandoned))
	}
	if len(result.Skips) > 0 {
		fmt.Printf("Excluded %d declared dependencies (see logs for reasons).\n", len(result.Skips))
	}
	if sentinels := g.Sentinels(); len(sentinels) > 0 {
		fmt.Printf("Synthesized %d sentinel leaves.\n", len(sentinels))
	}
	for _, node := range g.GetRootNodes() {
		fmt.Printf("root: %s\n", node.Identity)
	}
	os.Exit(0)
}
