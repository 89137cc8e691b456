// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoStoreRoot)

	svc, err := New(Config{StoreRoot: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestNew_BadOverridesPath(t *testing.T) {
	_, err := New(Config{StoreRoot: t.TempDir(), OverridesPath: "/nonexistent/overrides.xml"})
	require.Error(t, err)
}

func TestBuildGraph(t *testing.T) {
	reg := registry.NewRegistry()
	app, _ := reg.GetOrAdd(registry.NewIdentity("app", "c1"))

	displaced := registry.NewIdentity("core", "floating")
	res := reg.Record(app, manifest.DependencyRecord{
		RepoURI: "core", Commit: "pinned", Type: manifest.TypeSource, ProductCritical: true,
	}, &displaced)
	require.False(t, res.Cycle)
	reg.Record(app, manifest.DependencyRecord{
		RepoURI: "ui", Commit: "c3", Type: manifest.TypeSource,
	}, nil)

	g := BuildGraph(reg)
	g.AddMissingLeafNodes()

	appNode, ok := g.Node(registry.NewIdentity("app", "c1"))
	require.True(t, ok)
	require.Len(t, appNode.UpstreamEdges, 2)

	core := appNode.UpstreamEdges[0]
	assert.Equal(t, "pinned", core.Upstream.Commit)
	assert.True(t, core.ProductCritical)
	assert.True(t, core.FirstDiscoverer)
	require.NotNil(t, core.OverriddenUpstream)
	assert.Equal(t, "floating", core.OverriddenUpstream.Commit)
	require.NotNil(t, core.Source)
	assert.Equal(t, "core", core.Source.RepoURI)

	// Upstreams never separately discovered become sentinel leaves.
	coreNode, ok := g.Node(registry.NewIdentity("core", "pinned"))
	require.True(t, ok)
	assert.True(t, coreNode.IsLeaf())
	assert.Len(t, g.Sentinels(), 2)
}
