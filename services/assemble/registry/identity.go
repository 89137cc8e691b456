// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the identity model and the shared dependency
// registry that discovery populates.
//
// An Identity is the (repository URI, commit) pair that names a node
// everywhere in the system. The Registry deduplicates StrippedDependency
// records by identity under a single coarse lock, so concurrently running
// discovery tasks observe one consistent instance per identity.
package registry

import (
	"fmt"
	"strings"
)

// Identity uniquely names a repository pinned to a commit.
//
// Equality and hashing are case-insensitive on both fields: two
// identities that differ only in letter case are the same node. Use
// Key() wherever an Identity is used as a map key.
type Identity struct {
	// RepoURI is the repository clone URL as declared.
	RepoURI string

	// Commit is the pinned commit hash (or ref) for this repository.
	Commit string
}

// NewIdentity creates an Identity from a repository URI and commit.
// The original spelling is preserved; only comparisons fold case.
func NewIdentity(repoURI, commit string) Identity {
	return Identity{RepoURI: repoURI, Commit: commit}
}

// Key returns the case-folded map key for this identity.
func (id Identity) Key() string {
	return strings.ToLower(id.RepoURI) + "@" + strings.ToLower(id.Commit)
}

// Equal reports whether two identities name the same node,
// case-insensitively on both fields.
func (id Identity) Equal(other Identity) bool {
	return strings.EqualFold(id.RepoURI, other.RepoURI) &&
		strings.EqualFold(id.Commit, other.Commit)
}

// SameRepo reports whether two identities reference the same repository
// URI, regardless of commit.
func (id Identity) SameRepo(other Identity) bool {
	return strings.EqualFold(id.RepoURI, other.RepoURI)
}

// String renders the identity for logs and diagnostics.
func (id Identity) String() string {
	return fmt.Sprintf("%s@%s", id.RepoURI, shortCommit(id.Commit))
}

// shortCommit abbreviates full hashes for display; refs pass through.
func shortCommit(commit string) string {
	if len(commit) >= 40 && isHex(commit) {
		return commit[:12]
	}
	return commit
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
