// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery drives the level-synchronized expansion of the
// transitive dependency graph: for each frontier identity it ensures a
// shared clone exists, reads the declared-dependency manifest at the
// pinned commit, applies the exclusion policy, and grows the shared
// registry with the accepted relations.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/graph"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/telemetry"
)

// CloneStore is the slice of the bare-repository store discovery uses.
// gitrepo.Store satisfies this.
type CloneStore interface {
	// PathsFor returns the working folder and optional external git-dir
	// for a repository URL.
	PathsFor(url string) (workingPath, gitDirPath string)

	// ClonePath returns the bare-metadata path used to key clone
	// deduplication.
	ClonePath(url string) string

	// EnsureMasterCopy establishes a usable shared clone.
	EnsureMasterCopy(ctx context.Context, repoURL, workingPath, gitDirPath string) error
}

// ManifestReader resolves the declared dependencies of a repository at
// a pinned commit. manifest.Reader satisfies this.
type ManifestReader interface {
	ReadDependencies(ctx context.Context, repoPath, commit string) ([]manifest.DependencyRecord, error)
}

// SkipEvent records one dependency relation excluded from expansion.
type SkipEvent struct {
	// Downstream is the identity that declared the excluded dependency.
	Downstream registry.Identity

	// Record is the declaration that was excluded.
	Record manifest.DependencyRecord

	// Reason classifies the exclusion.
	Reason graph.SkipReason
}

// Result is the output of one discovery run.
type Result struct {
	// RunID uniquely names the run in logs and diagnostics.
	RunID string

	// Registry is the populated, identity-deduplicated dependency
	// collection.
	Registry *registry.Registry

	// Skips lists every relation excluded from expansion, for
	// diagnostics.
	Skips []SkipEvent

	// Abandoned lists the frontier identities dropped when the depth
	// budget ran out. Empty unless Partial.
	Abandoned []registry.Identity

	// Levels is the number of completed expansion levels.
	Levels int

	// Partial is true when the depth budget ended the run with a
	// non-empty frontier remaining.
	Partial bool

	// ForceCoherence carries the run's coherence flag through for a
	// downstream coherency pass. Discovery does not act on it.
	ForceCoherence bool
}

// Orchestrator runs the level-synchronized BFS over the dependency
// graph.
//
// # Thread Safety
//
// An Orchestrator runs one Discover at a time; create one per run.
// Within a run, frontier items execute concurrently and share the
// registry under its own lock, clone work is deduplicated per
// bare-metadata path with single-flight, and levels are separated by a
// hard barrier: level k+1 never starts until every item of level k has
// finished mutating the registry.
type Orchestrator struct {
	store     CloneStore
	manifests ManifestReader
	opts      options

	// cloneGroup collapses concurrent clone requests for the same
	// bare-metadata path into one in-flight operation.
	cloneGroup singleflight.Group

	// cloned remembers paths already established this run, so later
	// levels referencing the same repository at another commit skip the
	// layout pass entirely.
	cloned sync.Map
}

// NewOrchestrator creates an Orchestrator over the given store and
// manifest reader.
func NewOrchestrator(store CloneStore, manifests ManifestReader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		manifests: manifests,
		opts:      defaultOptions(),
	}
	for _, opt := range opts {
		opt(&o.opts)
	}
	return o
}

// Discover expands the transitive dependency graph from the given
// roots.
//
// # Description
//
// Seeds the registry with the roots as level 0, then repeatedly drains
// the frontier: every item is processed concurrently (clone, manifest
// read, exclusion policy, registry mutation), and the identities newly
// created by a level form the next one. A clone failure or a fatal
// store layout error aborts the whole run; every skip condition is
// local and recorded on the result.
//
// # Outputs
//
//   - *Result: the populated registry plus run diagnostics. With a
//     depth budget, the result may be partial.
//   - error: nil, ctx.Err on cancellation, or the fatal failure.
func (o *Orchestrator) Discover(ctx context.Context, roots []registry.Identity) (*Result, error) {
	result := &Result{
		RunID:          uuid.NewString(),
		Registry:       registry.NewRegistry(),
		ForceCoherence: o.opts.forceCoherence,
	}
	log := o.opts.log.With("run_id", result.RunID)

	var frontier []*registry.StrippedDependency
	for _, root := range roots {
		dep, created := result.Registry.GetOrAdd(root)
		if created {
			frontier = append(frontier, dep)
		}
	}
	log.Info("discovery started", "roots", len(frontier), "depth", o.opts.depth)

	budget := o.opts.depth
	var skipMu sync.Mutex

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		levelStart := time.Now()
		work := frontier
		frontier = nil

		var nextMu sync.Mutex
		var next []*registry.StrippedDependency

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.opts.maxWorkers)
		for _, item := range work {
			item := item
			g.Go(func() error {
				created, err := o.processItem(gctx, log, result, item, &skipMu)
				if err != nil {
					return err
				}
				nextMu.Lock()
				next = append(next, created...)
				nextMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		telemetry.RecordLevel(ctx, result.Levels, len(work), time.Since(levelStart))
		log.Debug("level complete",
			"level", result.Levels, "width", len(work), "next", len(next))
		result.Levels++

		if o.opts.depth != UnlimitedDepth {
			if budget == 0 && len(next) > 0 {
				for _, dep := range next {
					result.Abandoned = append(result.Abandoned, dep.Identity())
					log.Info("abandoning identity, depth budget exhausted",
						"identity", dep.Identity().String())
				}
				result.Partial = true
				break
			}
			budget--
		}
		frontier = next
	}

	log.Info("discovery finished",
		"levels", result.Levels,
		"dependencies", result.Registry.Len(),
		"skips", len(result.Skips),
		"partial", result.Partial)
	return result, nil
}

// processItem handles one frontier identity: clone, manifest read, and
// the exclusion policy over its declared dependencies. Returns the
// registry entries this item newly created, which seed the next level.
func (o *Orchestrator) processItem(ctx context.Context, log *logging.Logger, result *Result, item *registry.StrippedDependency, skipMu *sync.Mutex) ([]*registry.StrippedDependency, error) {
	id := item.Identity()

	if err := o.ensureClone(ctx, id.RepoURI); err != nil {
		return nil, fmt.Errorf("clone %s: %w", id.RepoURI, err)
	}

	workingPath, _ := o.store.PathsFor(id.RepoURI)
	records, err := o.manifests.ReadDependencies(ctx, workingPath, id.Commit)
	if err != nil {
		if errors.Is(err, manifest.ErrManifestNotFound) {
			telemetry.RecordManifestRead(ctx, false)
			log.Warn("no dependency manifest, branch terminates",
				"identity", id.String())
			return nil, nil
		}
		return nil, fmt.Errorf("manifest %s: %w", id.String(), err)
	}
	telemetry.RecordManifestRead(ctx, true)

	var created []*registry.StrippedDependency
	for _, rec := range records {
		if rec.IsToolset() && !o.opts.includeToolsets {
			log.Debug("dropping toolset dependency",
				"downstream", id.String(), "repo", rec.RepoURI)
			continue
		}

		rec, displaced := o.opts.overrides.Apply(id.RepoURI, rec)
		if displaced != nil {
			log.Info("dependency overridden",
				"downstream", id.String(),
				"declared", displaced.String(),
				"used", registry.NewIdentity(rec.RepoURI, rec.Commit).String())
		}

		if reason, ok := o.classify(result.Registry, item, rec); !ok {
			o.recordSkip(ctx, log, result, skipMu, SkipEvent{
				Downstream: id,
				Record:     rec,
				Reason:     reason,
			})
			continue
		}

		res := result.Registry.Record(item, rec, displaced)
		if res.Cycle {
			// A sibling closed the cycle between our probe and the
			// insert; Record caught it under the registry lock.
			o.recordSkip(ctx, log, result, skipMu, SkipEvent{
				Downstream: id,
				Record:     rec,
				Reason:     graph.SkipCircularReference,
			})
			continue
		}
		telemetry.RecordEdge(ctx)
		if res.Created {
			created = append(created, res.Upstream)
		}
	}
	return created, nil
}

// classify applies the exclusion policy to one declared dependency, in
// order: self-reference, already-closed cycle, ignore list, missing
// commit, host policy. Returns ok=false with the matched reason.
func (o *Orchestrator) classify(reg *registry.Registry, item *registry.StrippedDependency, rec manifest.DependencyRecord) (graph.SkipReason, bool) {
	id := item.Identity()

	if strings.EqualFold(rec.RepoURI, id.RepoURI) {
		return graph.SkipSelfReference, false
	}
	if reg.ClosesCycle(item, registry.NewIdentity(rec.RepoURI, rec.Commit)) {
		return graph.SkipCircularReference, false
	}
	if o.opts.ignoredRepos[strings.ToLower(rec.RepoURI)] {
		return graph.SkipIgnoredRepo, false
	}
	if strings.TrimSpace(rec.Commit) == "" {
		return graph.SkipMissingCommit, false
	}
	if !o.opts.anyHost && !strings.EqualFold(hostOf(rec.RepoURI), o.opts.allowedHost) {
		return graph.SkipHostPolicy, false
	}
	return graph.SkipNone, true
}

// recordSkip logs and accumulates one exclusion. Missing-commit and
// host-policy exclusions warn; the rest are debug noise.
func (o *Orchestrator) recordSkip(ctx context.Context, log *logging.Logger, result *Result, mu *sync.Mutex, event SkipEvent) {
	telemetry.RecordSkip(ctx, event.Reason.String())
	args := []any{
		"downstream", event.Downstream.String(),
		"repo", event.Record.RepoURI,
		"reason", event.Reason.String(),
	}
	switch event.Reason {
	case graph.SkipMissingCommit, graph.SkipHostPolicy:
		log.Warn("dependency excluded", args...)
	default:
		log.Debug("dependency excluded", args...)
	}

	mu.Lock()
	result.Skips = append(result.Skips, event)
	mu.Unlock()
}

// ensureClone establishes the shared clone for repoURL exactly once
// per bare-metadata path: concurrent requests within a level collapse
// into one in-flight clone, and later levels referencing the same
// repository find it in the completed set.
func (o *Orchestrator) ensureClone(ctx context.Context, repoURL string) error {
	clonePath := o.store.ClonePath(repoURL)
	if _, done := o.cloned.Load(clonePath); done {
		return nil
	}

	_, err, _ := o.cloneGroup.Do(clonePath, func() (any, error) {
		workingPath, gitDirPath := o.store.PathsFor(repoURL)
		start := time.Now()
		err := o.store.EnsureMasterCopy(ctx, repoURL, workingPath, gitDirPath)
		telemetry.RecordClone(ctx, time.Since(start), err == nil)
		if err != nil {
			return nil, err
		}
		o.cloned.Store(clonePath, struct{}{})
		return nil, nil
	})
	return err
}
