// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assemble is the facade over the discovery engine: it wires
// the bare-repository store, the manifest reader, and the override
// rules into runnable discovery, and adapts a finished run into the
// queryable graph model.
package assemble

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/discovery"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/gitrepo"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/graph"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/overrides"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

// ErrNoStoreRoot indicates the service was configured without a store
// root directory.
var ErrNoStoreRoot = errors.New("store root directory is required")

// Config is the service-level configuration.
type Config struct {
	// StoreRoot is the parent directory of all shared working folders.
	StoreRoot string `yaml:"store_root"`

	// GitDirRoot optionally holds all git metadata directories in one
	// place, separate from the working folders.
	GitDirRoot string `yaml:"git_dir_root"`

	// OverridesPath optionally points at the XML override document.
	OverridesPath string `yaml:"overrides_path"`
}

// Service bundles the collaborators a discovery run needs.
type Service struct {
	store  *gitrepo.Store
	reader *manifest.Reader
	rules  *overrides.Set
	log    *logging.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger shared by the service and its
// collaborators.
func WithServiceLogger(log *logging.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// New creates a Service from configuration.
func New(cfg Config, opts ...ServiceOption) (*Service, error) {
	if cfg.StoreRoot == "" {
		return nil, ErrNoStoreRoot
	}

	s := &Service{log: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}

	transport := gitrepo.NewCLI(gitrepo.WithCLILogger(s.log))

	storeOpts := []gitrepo.StoreOption{
		gitrepo.WithTransport(transport),
		gitrepo.WithStoreLogger(s.log),
	}
	if cfg.GitDirRoot != "" {
		storeOpts = append(storeOpts, gitrepo.WithGitDirRoot(cfg.GitDirRoot))
	}
	s.store = gitrepo.NewStore(cfg.StoreRoot, storeOpts...)

	s.reader = manifest.NewReader(transport, manifest.WithReaderLogger(s.log))

	s.rules = overrides.Empty()
	if cfg.OverridesPath != "" {
		rules, err := overrides.Load(cfg.OverridesPath)
		if err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
		s.rules = rules
	}
	return s, nil
}

// Discover runs one discovery over the given roots. The service's
// override rules and logger are applied ahead of any caller options.
func (s *Service) Discover(ctx context.Context, roots []registry.Identity, opts ...discovery.Option) (*discovery.Result, error) {
	all := append([]discovery.Option{
		discovery.WithOverrides(s.rules),
		discovery.WithLogger(s.log),
	}, opts...)
	o := discovery.NewOrchestrator(s.store, s.reader, all...)
	return o.Discover(ctx, roots)
}

// DiscoverAndBuild runs discovery and adapts the result into the
// queryable graph, with sentinel leaves synthesized.
func (s *Service) DiscoverAndBuild(ctx context.Context, roots []registry.Identity, opts ...discovery.Option) (*graph.Graph, *discovery.Result, error) {
	result, err := s.Discover(ctx, roots, opts...)
	if err != nil {
		return nil, nil, err
	}

	g := BuildGraph(result.Registry)
	if sentinels := g.AddMissingLeafNodes(); len(sentinels) > 0 {
		s.log.Debug("synthesized sentinel leaves", "count", len(sentinels))
	}
	return g, result, nil
}

// BuildGraph converts a populated registry into graph nodes and edges:
// each registry entry becomes a node, each recorded link an edge.
func BuildGraph(reg *registry.Registry) *graph.Graph {
	deps := reg.All()
	nodes := make([]*graph.Node, 0, len(deps))
	for _, dep := range deps {
		node := &graph.Node{Identity: dep.Identity()}
		for _, link := range dep.Links() {
			rec := link.Record
			node.UpstreamEdges = append(node.UpstreamEdges, &graph.Edge{
				Downstream:         dep.Identity(),
				Upstream:           link.Upstream.Identity(),
				Source:             &rec,
				ProductCritical:    rec.ProductCritical,
				FirstDiscoverer:    link.FirstDiscoverer,
				OverriddenUpstream: link.OverriddenUpstream,
			})
		}
		nodes = append(nodes, node)
	}
	return graph.Build(nodes)
}
