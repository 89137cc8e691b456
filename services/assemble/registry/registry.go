// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"sync"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
)

// Link is one recorded dependency relation from a downstream
// StrippedDependency to its upstream.
type Link struct {
	// Upstream is the registry instance the link points at.
	Upstream *StrippedDependency

	// Record is the manifest declaration that produced the link.
	Record manifest.DependencyRecord

	// FirstDiscoverer marks the link whose recording first created the
	// upstream entry, i.e. the edge that pulled the upstream into the
	// discovery frontier. Used only for visualization.
	FirstDiscoverer bool

	// OverriddenUpstream is set when a coherency mechanism substituted
	// a different upstream than literally declared. Recorded for a
	// downstream coherency pass; never acted on here.
	OverriddenUpstream *Identity
}

// StrippedDependency is the discovery-time record for one identity:
// the repository plus its recorded outgoing dependency links.
//
// Instances are owned and deduplicated by a Registry. Link mutation
// happens only under the owning Registry's lock; once discovery has
// finished, instances are effectively immutable and safe to read from
// any goroutine.
type StrippedDependency struct {
	identity Identity
	links    []Link
}

// Identity returns the (repository URI, commit) identity of this entry.
func (d *StrippedDependency) Identity() Identity {
	return d.identity
}

// Links returns a copy of the recorded dependency links, in the order
// they were recorded.
func (d *StrippedDependency) Links() []Link {
	out := make([]Link, len(d.links))
	copy(out, d.links)
	return out
}

// HasDependencyOn walks this entry's recorded links and reports
// whether target is reachable from it. Used to detect cycles that
// already closed on an earlier level. Call under the owning Registry's
// lock during discovery.
func (d *StrippedDependency) HasDependencyOn(target Identity) bool {
	visited := make(map[string]bool)
	return d.hasDependencyOn(target, visited)
}

func (d *StrippedDependency) hasDependencyOn(target Identity, visited map[string]bool) bool {
	if visited[d.identity.Key()] {
		return false
	}
	visited[d.identity.Key()] = true
	for _, link := range d.links {
		if link.Upstream.identity.Equal(target) {
			return true
		}
		if link.Upstream.hasDependencyOn(target, visited) {
			return true
		}
	}
	return false
}

// RecordResult reports the outcome of Registry.Record.
type RecordResult struct {
	// Upstream is the registry entry for the recorded dependency. Nil
	// when Cycle is true and no link was recorded.
	Upstream *StrippedDependency

	// Created is true when recording the link created the upstream
	// entry, which also makes the link the upstream's first discoverer.
	Created bool

	// Cycle is true when the upstream's existing entry already reaches
	// back to the downstream, so recording the link would close a
	// cycle. No link is recorded in that case.
	Cycle bool
}

// Registry is the shared, identity-deduplicated collection of
// StrippedDependency entries that discovery populates.
//
// # Thread Safety
//
// All operations take one coarse lock, so concurrently executing
// discovery tasks observe a consistent registry: the classify-and-
// insert step for each declared dependency is a single critical
// section.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]*StrippedDependency
	all   []*StrippedDependency
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[string]*StrippedDependency),
	}
}

// GetOrAdd returns the entry for id, creating and registering it if
// absent. The second result is true when the entry was created.
func (r *Registry) GetOrAdd(id Identity) (*StrippedDependency, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrAddLocked(id)
}

func (r *Registry) getOrAddLocked(id Identity) (*StrippedDependency, bool) {
	if existing, ok := r.byKey[id.Key()]; ok {
		return existing, false
	}
	dep := &StrippedDependency{identity: id}
	r.byKey[id.Key()] = dep
	r.all = append(r.all, dep)
	return dep, true
}

// Get returns the entry for id if present.
func (r *Registry) Get(id Identity) (*StrippedDependency, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dep, ok := r.byKey[id.Key()]
	return dep, ok
}

// ClosesCycle reports whether an existing entry for id already reaches
// back to down, so linking down -> id would close a cycle. Record
// re-checks this under the same lock before inserting, so a false
// result here is advisory only.
func (r *Registry) ClosesCycle(down *StrippedDependency, id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[id.Key()]; ok {
		return existing.HasDependencyOn(down.identity)
	}
	return false
}

// Record classifies and links one declared dependency of down as a
// single critical section: look up the upstream entry, test for an
// already-closed cycle, otherwise create the entry if needed and
// record the link. A non-nil overridden identity marks the link as a
// coherency substitution of that displaced upstream.
func (r *Registry) Record(down *StrippedDependency, rec manifest.DependencyRecord, overridden *Identity) RecordResult {
	id := NewIdentity(rec.RepoURI, rec.Commit)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[id.Key()]; ok {
		if existing.HasDependencyOn(down.identity) {
			return RecordResult{Cycle: true}
		}
	}

	up, created := r.getOrAddLocked(id)
	down.links = append(down.links, Link{
		Upstream:           up,
		Record:             rec,
		FirstDiscoverer:    created,
		OverriddenUpstream: overridden,
	})
	return RecordResult{Upstream: up, Created: created}
}

// All returns every registered entry in registration order.
func (r *Registry) All() []*StrippedDependency {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*StrippedDependency, len(r.all))
	copy(out, r.all)
	return out
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all)
}
