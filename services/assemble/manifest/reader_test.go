// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/gitrepo"
)

// mapSource serves manifest bytes keyed by "repoPath@commit".
type mapSource struct {
	files map[string][]byte
	reads int
}

func (m *mapSource) ShowFile(ctx context.Context, repoPath, commit, path string) ([]byte, error) {
	m.reads++
	if data, ok := m.files[repoPath+"@"+commit]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s at %s", gitrepo.ErrObjectNotFound, path, commit)
}

const sampleManifest = `
dependencies:
  - repo: https://git.example.com/org/core
    commit: aaa111
  - repo: https://git.example.com/org/buildtools
    commit: bbb222
    type: toolset
  - repo: "  https://git.example.com/org/ui  "
    commit: ccc333
    critical: true
`

func TestReader_ReadDependencies(t *testing.T) {
	src := &mapSource{files: map[string][]byte{
		"/stores/app.git@c1": []byte(sampleManifest),
	}}
	reader := NewReader(src)

	records, err := reader.ReadDependencies(context.Background(), "/stores/app.git", "c1")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "https://git.example.com/org/core", records[0].RepoURI)
	assert.Equal(t, TypeSource, records[0].Type, "unset type defaults to source")
	assert.True(t, records[1].IsToolset())
	assert.Equal(t, "https://git.example.com/org/ui", records[2].RepoURI, "whitespace trimmed")
	assert.True(t, records[2].ProductCritical)
}

func TestReader_NotFound(t *testing.T) {
	reader := NewReader(&mapSource{files: map[string][]byte{}})

	_, err := reader.ReadDependencies(context.Background(), "/stores/app.git", "missing")
	require.ErrorIs(t, err, ErrManifestNotFound)
}

func TestReader_ParseError(t *testing.T) {
	src := &mapSource{files: map[string][]byte{
		"/stores/app.git@c1": []byte("dependencies: {not: [valid"),
	}}
	reader := NewReader(src)

	_, err := reader.ReadDependencies(context.Background(), "/stores/app.git", "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrManifestNotFound)
}

func TestReader_CachesPerCommit(t *testing.T) {
	src := &mapSource{files: map[string][]byte{
		"/stores/app.git@c1": []byte(sampleManifest),
	}}
	reader := NewReader(src)

	_, err := reader.ReadDependencies(context.Background(), "/stores/app.git", "c1")
	require.NoError(t, err)
	_, err = reader.ReadDependencies(context.Background(), "/stores/app.git", "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, src.reads, "second read should be served from cache")
}

func TestReader_EmptyDocument(t *testing.T) {
	src := &mapSource{files: map[string][]byte{
		"/stores/app.git@c1": []byte("dependencies: []\n"),
	}}
	reader := NewReader(src)

	records, err := reader.ReadDependencies(context.Background(), "/stores/app.git", "c1")
	require.NoError(t, err)
	assert.Empty(t, records)
}
