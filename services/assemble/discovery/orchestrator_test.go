// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/gitrepo"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/graph"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/overrides"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

// fakeStore counts clone establishment per path and can fail chosen
// repositories.
type fakeStore struct {
	mu      sync.Mutex
	ensures map[string]int
	fail    map[string]error
	delay   time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{ensures: make(map[string]int), fail: make(map[string]error)}
}

func (s *fakeStore) PathsFor(url string) (string, string) {
	return "/stores/" + gitrepo.BareDirName(url), ""
}

func (s *fakeStore) ClonePath(url string) string {
	working, _ := s.PathsFor(url)
	return working
}

func (s *fakeStore) EnsureMasterCopy(ctx context.Context, repoURL, workingPath, gitDirPath string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensures[workingPath]++
	if err, ok := s.fail[repoURL]; ok {
		return err
	}
	return nil
}

func (s *fakeStore) ensureCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensures[s.ClonePath(url)]
}

// fakeManifests serves declared dependencies keyed by repo URL and
// commit; absent entries behave as a missing manifest.
type fakeManifests struct {
	files map[string][]manifest.DependencyRecord
}

func manifestKey(repoPath, commit string) string {
	return repoPath + "@" + commit
}

func (m *fakeManifests) declare(repoURL, commit string, records ...manifest.DependencyRecord) {
	working := "/stores/" + gitrepo.BareDirName(repoURL)
	m.files[manifestKey(working, commit)] = records
}

func (m *fakeManifests) ReadDependencies(ctx context.Context, repoPath, commit string) ([]manifest.DependencyRecord, error) {
	if records, ok := m.files[manifestKey(repoPath, commit)]; ok {
		return records, nil
	}
	return nil, manifest.ErrManifestNotFound
}

func newFakeManifests() *fakeManifests {
	return &fakeManifests{files: make(map[string][]manifest.DependencyRecord)}
}

func dep(repo, commit string) manifest.DependencyRecord {
	return manifest.DependencyRecord{RepoURI: repo, Commit: commit, Type: manifest.TypeSource}
}

func uri(name string) string {
	return "https://git.aleutian.ai/org/" + name
}

// edgeSet flattens the registry into sorted "down -> up" strings.
func edgeSet(reg *registry.Registry) []string {
	var edges []string
	for _, d := range reg.All() {
		for _, link := range d.Links() {
			edges = append(edges, d.Identity().String()+" -> "+link.Upstream.Identity().String())
		}
	}
	sort.Strings(edges)
	return edges
}

func TestDiscover_Linear(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("core"), "c2"))
	manifests.declare(uri("core"), "c2", dep(uri("base"), "c3"))

	o := NewOrchestrator(store, manifests)
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Registry.Len())
	assert.False(t, result.Partial)
	assert.Empty(t, result.Skips)
	assert.Equal(t, []string{
		uri("app") + "@c1 -> " + uri("core") + "@c2",
		uri("core") + "@c2 -> " + uri("base") + "@c3",
	}, edgeSet(result.Registry))
}

func TestDiscover_SingleFlightClone(t *testing.T) {
	// Many level-1 dependencies on the same repository at different
	// commits must produce exactly one clone establishment.
	store := newFakeStore()
	store.delay = 5 * time.Millisecond
	manifests := newFakeManifests()

	var deps []manifest.DependencyRecord
	for i := 0; i < 16; i++ {
		deps = append(deps, dep(uri("shared"), fmt.Sprintf("c%d", i)))
	}
	manifests.declare(uri("app"), "c1", deps...)

	o := NewOrchestrator(store, manifests)
	_, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.ensureCount(uri("shared")),
		"clone must be established exactly once per repository")
}

func TestDiscover_Deterministic(t *testing.T) {
	build := func() *Result {
		store := newFakeStore()
		manifests := newFakeManifests()
		manifests.declare(uri("app"), "c1",
			dep(uri("core"), "c2"), dep(uri("ui"), "c3"), dep(uri("net"), "c4"))
		manifests.declare(uri("core"), "c2", dep(uri("base"), "c5"))
		manifests.declare(uri("ui"), "c3", dep(uri("base"), "c5"))

		o := NewOrchestrator(store, manifests, WithMaxWorkers(8))
		result, err := o.Discover(context.Background(), []registry.Identity{
			registry.NewIdentity(uri("app"), "c1"),
		})
		require.NoError(t, err)
		return result
	}

	first := build()
	for i := 0; i < 10; i++ {
		result := build()
		assert.Equal(t, edgeSet(first.Registry), edgeSet(result.Registry),
			"edge set must not depend on task interleaving")
	}
}

func TestDiscover_CycleTerminates(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("a"), "c1", dep(uri("b"), "c2"))
	manifests.declare(uri("b"), "c2", dep(uri("c"), "c3"))
	manifests.declare(uri("c"), "c3", dep(uri("a"), "c1"))

	o := NewOrchestrator(store, manifests)
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("a"), "c1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Registry.Len())
	require.Len(t, result.Skips, 1)
	assert.Equal(t, graph.SkipCircularReference, result.Skips[0].Reason)
	assert.Len(t, edgeSet(result.Registry), 2, "the closing edge must not be recorded")
}

func TestDiscover_SelfReference(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("app"), "c9"), dep(uri("core"), "c2"))

	o := NewOrchestrator(store, manifests)
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)

	for _, edge := range edgeSet(result.Registry) {
		assert.NotContains(t, edge, uri("app")+"@c9")
	}
	require.Len(t, result.Skips, 1)
	assert.Equal(t, graph.SkipSelfReference, result.Skips[0].Reason)
}

func TestDiscover_IgnoreList(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("repoA"), "c1", dep(uri("repoB"), "c2"))

	o := NewOrchestrator(store, manifests, WithIgnoredRepos(uri("REPOB")))
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("repoA"), "c1"),
	})
	require.NoError(t, err)

	root, ok := result.Registry.Get(registry.NewIdentity(uri("repoA"), "c1"))
	require.True(t, ok)
	assert.Empty(t, root.Links(), "ignored dependency must leave no edge")
	assert.Equal(t, 1, result.Registry.Len())
	require.Len(t, result.Skips, 1)
	assert.Equal(t, graph.SkipIgnoredRepo, result.Skips[0].Reason)
}

func TestDiscover_MissingCommit(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("repoA"), "c1", dep(uri("repoC"), "  "))

	o := NewOrchestrator(store, manifests)
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("repoA"), "c1"),
	})
	require.NoError(t, err)

	_, ok := result.Registry.Get(registry.NewIdentity(uri("repoC"), ""))
	assert.False(t, ok, "an unpinnable dependency must never become a node")
	require.Len(t, result.Skips, 1)
	assert.Equal(t, graph.SkipMissingCommit, result.Skips[0].Reason)
}

func TestDiscover_HostPolicy(t *testing.T) {
	t.Run("foreign host skipped by default", func(t *testing.T) {
		store := newFakeStore()
		manifests := newFakeManifests()
		manifests.declare(uri("app"), "c1", dep("https://github.com/other/lib", "c2"))

		o := NewOrchestrator(store, manifests)
		result, err := o.Discover(context.Background(), []registry.Identity{
			registry.NewIdentity(uri("app"), "c1"),
		})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Registry.Len())
		require.Len(t, result.Skips, 1)
		assert.Equal(t, graph.SkipHostPolicy, result.Skips[0].Reason)
	})

	t.Run("any-host lifts the restriction", func(t *testing.T) {
		store := newFakeStore()
		manifests := newFakeManifests()
		manifests.declare(uri("app"), "c1", dep("https://github.com/other/lib", "c2"))

		o := NewOrchestrator(store, manifests, WithAnyHost())
		result, err := o.Discover(context.Background(), []registry.Identity{
			registry.NewIdentity(uri("app"), "c1"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Registry.Len())
	})
}

func TestDiscover_DepthZero(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("core"), "c2"))
	manifests.declare(uri("core"), "c2", dep(uri("base"), "c3"))

	o := NewOrchestrator(store, manifests, WithDepth(0))
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.Equal(t, []registry.Identity{registry.NewIdentity(uri("core"), "c2")}, result.Abandoned)
	assert.Len(t, edgeSet(result.Registry), 1, "only the roots' direct edges are recorded")
	assert.Zero(t, store.ensureCount(uri("core")), "abandoned identities are never cloned")
}

func TestDiscover_ManifestNotFoundIsLeaf(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("core"), "c2"))
	// core has no manifest at c2.

	o := NewOrchestrator(store, manifests)
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)

	core, ok := result.Registry.Get(registry.NewIdentity(uri("core"), "c2"))
	require.True(t, ok)
	assert.Empty(t, core.Links())
}

func TestDiscover_CloneFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.fail[uri("broken")] = fmt.Errorf("%w: exit status 128", gitrepo.ErrCloneFailed)
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("broken"), "c2"))

	o := NewOrchestrator(store, manifests)
	_, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.ErrorIs(t, err, gitrepo.ErrCloneFailed)
}

func TestDiscover_ToolsetFilter(t *testing.T) {
	toolset := manifest.DependencyRecord{
		RepoURI: uri("buildtools"), Commit: "c2", Type: manifest.TypeToolset,
	}

	t.Run("dropped by default", func(t *testing.T) {
		store := newFakeStore()
		manifests := newFakeManifests()
		manifests.declare(uri("app"), "c1", toolset)

		o := NewOrchestrator(store, manifests)
		result, err := o.Discover(context.Background(), []registry.Identity{
			registry.NewIdentity(uri("app"), "c1"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Registry.Len())
	})

	t.Run("included with toolsets enabled", func(t *testing.T) {
		store := newFakeStore()
		manifests := newFakeManifests()
		manifests.declare(uri("app"), "c1", toolset)

		o := NewOrchestrator(store, manifests, WithToolsets())
		result, err := o.Discover(context.Background(), []registry.Identity{
			registry.NewIdentity(uri("app"), "c1"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Registry.Len())
	})
}

func TestDiscover_ForceCoherencePassThrough(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()

	o := NewOrchestrator(store, manifests, WithForceCoherence())
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)
	assert.True(t, result.ForceCoherence)
}

func TestDiscover_Cancellation(t *testing.T) {
	store := newFakeStore()
	store.delay = 50 * time.Millisecond
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("core"), "c2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(store, manifests)
	_, err := o.Discover(ctx, []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_Overrides(t *testing.T) {
	store := newFakeStore()
	manifests := newFakeManifests()
	manifests.declare(uri("app"), "c1", dep(uri("core"), "floating"))
	manifests.declare(uri("core"), "pinned", dep(uri("base"), "c3"))

	doc := `<overrides>
  <repository uri="` + uri("app") + `">
    <override findRepo="` + uri("core") + `" useCommit="pinned"/>
  </repository>
</overrides>`
	set, err := overrides.Parse([]byte(doc))
	require.NoError(t, err)

	o := NewOrchestrator(store, manifests, WithOverrides(set))
	result, err := o.Discover(context.Background(), []registry.Identity{
		registry.NewIdentity(uri("app"), "c1"),
	})
	require.NoError(t, err)

	_, ok := result.Registry.Get(registry.NewIdentity(uri("core"), "floating"))
	assert.False(t, ok, "the declared upstream must be displaced")

	root, ok := result.Registry.Get(registry.NewIdentity(uri("app"), "c1"))
	require.True(t, ok)
	links := root.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "pinned", links[0].Upstream.Identity().Commit)
	require.NotNil(t, links[0].OverriddenUpstream)
	assert.Equal(t, "floating", links[0].OverriddenUpstream.Commit)
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://git.aleutian.ai/org/repo", "git.aleutian.ai"},
		{"http://example.com/repo.git", "example.com"},
		{"git@git.aleutian.ai:org/repo.git", "git.aleutian.ai"},
		{"ssh://git@host.example/org/repo", "host.example"},
		{"host.only", "host.only"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, hostOf(tt.uri))
		})
	}
}
