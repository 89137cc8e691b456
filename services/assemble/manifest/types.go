// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest reads per-repository dependency declarations.
//
// Each repository declares its dependencies in an assemble.deps.yaml
// document at the repository root. The Reader resolves that document at
// a pinned commit directly from the shared clone, without a checkout.
package manifest

// FileName is the dependency-declaration document expected at the root
// of every participating repository.
const FileName = "assemble.deps.yaml"

// DependencyType classifies a declared dependency.
type DependencyType string

const (
	// TypeSource is a source-code dependency that participates in the
	// assembled build.
	TypeSource DependencyType = "source"

	// TypeToolset is a build-toolset-only dependency; expansion of
	// toolsets is configurable at discovery time.
	TypeToolset DependencyType = "toolset"
)

// DependencyRecord is one declared dependency as read from the
// manifest document.
type DependencyRecord struct {
	// RepoURI is the dependency repository's clone URL.
	RepoURI string `yaml:"repo"`

	// Commit pins the dependency to a commit. A blank commit cannot be
	// expanded and is excluded with a warning during discovery.
	Commit string `yaml:"commit"`

	// Type classifies the dependency. Unset defaults to source.
	Type DependencyType `yaml:"type"`

	// ProductCritical marks the dependency for distinct highlighting in
	// diagnostic output. It has no effect on expansion.
	ProductCritical bool `yaml:"critical"`
}

// IsToolset reports whether the record is a build-toolset dependency.
func (r DependencyRecord) IsToolset() bool {
	return r.Type == TypeToolset
}

// document is the on-disk manifest schema.
type document struct {
	Dependencies []DependencyRecord `yaml:"dependencies"`
}
