// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package overrides loads the declarative override document mapping
// repository URIs to dependency substitution rules. Discovery's policy
// flags are the only interaction point with the core algorithm; the
// substitutions themselves feed a downstream coherency pass.
package overrides

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/manifest"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

// Rule substitutes one declared dependency with another.
type Rule struct {
	// FindRepoURI matches the declared dependency's repository,
	// case-insensitively.
	FindRepoURI string `xml:"findRepo,attr"`

	// UseRepoURI replaces the repository URI. Empty keeps the declared
	// one.
	UseRepoURI string `xml:"useRepo,attr"`

	// UseCommit replaces the commit. Empty keeps the declared one.
	UseCommit string `xml:"useCommit,attr"`
}

type repoRules struct {
	URI   string `xml:"uri,attr"`
	Rules []Rule `xml:"override"`
}

type document struct {
	XMLName xml.Name    `xml:"overrides"`
	Repos   []repoRules `xml:"repository"`
}

// Set is a loaded override document, indexed by downstream repository
// URI.
//
// # Thread Safety
//
// Immutable after load; safe for concurrent reads.
type Set struct {
	byRepo map[string][]Rule
}

// Load reads and parses an override document from disk.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	return Parse(data)
}

// Parse parses an override document.
func Parse(data []byte) (*Set, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}

	set := &Set{byRepo: make(map[string][]Rule, len(doc.Repos))}
	for _, repo := range doc.Repos {
		key := strings.ToLower(strings.TrimSpace(repo.URI))
		set.byRepo[key] = append(set.byRepo[key], repo.Rules...)
	}
	return set, nil
}

// Empty returns a Set with no rules.
func Empty() *Set {
	return &Set{byRepo: make(map[string][]Rule)}
}

// RulesFor returns the rules registered for a downstream repository.
func (s *Set) RulesFor(repoURI string) []Rule {
	return s.byRepo[strings.ToLower(strings.TrimSpace(repoURI))]
}

// Apply rewrites one declared dependency of downstreamRepo according
// to the first matching rule.
//
// # Outputs
//
//   - manifest.DependencyRecord: the (possibly substituted) record.
//   - *registry.Identity: the displaced identity when a substitution
//     happened, for the coherency annotation; nil otherwise.
func (s *Set) Apply(downstreamRepo string, rec manifest.DependencyRecord) (manifest.DependencyRecord, *registry.Identity) {
	for _, rule := range s.RulesFor(downstreamRepo) {
		if !strings.EqualFold(rule.FindRepoURI, rec.RepoURI) {
			continue
		}
		displaced := registry.NewIdentity(rec.RepoURI, rec.Commit)
		if rule.UseRepoURI != "" {
			rec.RepoURI = rule.UseRepoURI
		}
		if rule.UseCommit != "" {
			rec.Commit = rule.UseCommit
		}
		if registry.NewIdentity(rec.RepoURI, rec.Commit).Equal(displaced) {
			return rec, nil
		}
		return rec, &displaced
	}
	return rec, nil
}
