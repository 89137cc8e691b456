// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package overrides

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
)

const sampleDoc = `<?xml version="1.0"?>
<overrides>
  <repository uri="https://git.example.com/org/app">
    <override findRepo="https://git.example.com/org/core" useCommit="pinned123"/>
    <override findRepo="https://git.example.com/org/old-lib" useRepo="https://git.example.com/org/new-lib"/>
  </repository>
</overrides>`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	rules := set.RulesFor("HTTPS://git.example.com/ORG/app")
	require.Len(t, rules, 2, "lookup is case-insensitive")
	assert.Equal(t, "pinned123", rules[0].UseCommit)

	assert.Empty(t, set.RulesFor("https://git.example.com/org/other"))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("<overrides><unterminated"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set.RulesFor("https://git.example.com/org/app"), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	set, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	down := "https://git.example.com/org/app"

	t.Run("commit substitution records displaced identity", func(t *testing.T) {
		rec, displaced := set.Apply(down, manifest.DependencyRecord{
			RepoURI: "https://git.example.com/org/core", Commit: "abc",
		})
		assert.Equal(t, "pinned123", rec.Commit)
		require.NotNil(t, displaced)
		assert.Equal(t, "abc", displaced.Commit)
	})

	t.Run("repo substitution", func(t *testing.T) {
		rec, displaced := set.Apply(down, manifest.DependencyRecord{
			RepoURI: "https://git.example.com/org/old-lib", Commit: "abc",
		})
		assert.Equal(t, "https://git.example.com/org/new-lib", rec.RepoURI)
		require.NotNil(t, displaced)
		assert.Equal(t, "https://git.example.com/org/old-lib", displaced.RepoURI)
	})

	t.Run("no matching rule", func(t *testing.T) {
		in := manifest.DependencyRecord{RepoURI: "https://git.example.com/org/ui", Commit: "abc"}
		rec, displaced := set.Apply(down, in)
		assert.Equal(t, in, rec)
		assert.Nil(t, displaced)
	})

	t.Run("identity substitution is not a redirect", func(t *testing.T) {
		set, err := Parse([]byte(`<overrides>
  <repository uri="d"><override findRepo="r" useCommit="abc"/></repository>
</overrides>`))
		require.NoError(t, err)
		_, displaced := set.Apply("d", manifest.DependencyRecord{RepoURI: "r", Commit: "ABC"})
		assert.Nil(t, displaced, "case-variant same identity must not count as displacement")
	})
}
