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
	"strings"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/overrides"
)

const (
	// DefaultAllowedHost is the code-hosting domain expansion follows by
	// default. Dependencies on other hosts are skipped with a warning.
	DefaultAllowedHost = "git.aleutian.ai"

	// DefaultMaxWorkers caps concurrent work items per level. Clone and
	// manifest work is subprocess and I/O bound, so a modest cap avoids
	// thrashing without starving wide levels.
	DefaultMaxWorkers = 8

	// UnlimitedDepth disables the depth budget.
	UnlimitedDepth = -1
)

// options holds the resolved orchestrator configuration.
type options struct {
	ignoredRepos    map[string]bool
	includeToolsets bool
	forceCoherence  bool
	depth           int
	allowedHost     string
	anyHost         bool
	maxWorkers      int
	overrides       *overrides.Set
	log             *logging.Logger
}

// Option configures an Orchestrator.
type Option func(*options)

// WithIgnoredRepos excludes the given repository URIs from expansion,
// case-insensitively.
func WithIgnoredRepos(uris ...string) Option {
	return func(o *options) {
		for _, uri := range uris {
			o.ignoredRepos[strings.ToLower(strings.TrimSpace(uri))] = true
		}
	}
}

// WithToolsets includes build-toolset dependencies in expansion. By
// default only source dependencies are followed.
func WithToolsets() Option {
	return func(o *options) { o.includeToolsets = true }
}

// WithForceCoherence marks the run for a downstream coherency pass.
// The flag is carried through to the result; discovery itself does not
// act on it.
func WithForceCoherence() Option {
	return func(o *options) { o.forceCoherence = true }
}

// WithDepth sets the expansion depth budget. Zero expands only the
// roots' direct dependencies before aborting; UnlimitedDepth disables
// the budget.
func WithDepth(depth int) Option {
	return func(o *options) { o.depth = depth }
}

// WithAllowedHost restricts expansion to repositories on the given
// host. Dependencies elsewhere are skipped with a warning.
func WithAllowedHost(host string) Option {
	return func(o *options) { o.allowedHost = host }
}

// WithAnyHost lifts the host restriction entirely.
func WithAnyHost() Option {
	return func(o *options) { o.anyHost = true }
}

// WithMaxWorkers caps concurrent work items per level.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithOverrides substitutes declared dependencies according to the
// loaded override rules before classification. Substitutions are
// annotated on the recorded links for a downstream coherency pass.
func WithOverrides(set *overrides.Set) Option {
	return func(o *options) {
		if set != nil {
			o.overrides = set
		}
	}
}

// WithLogger sets the logger for discovery diagnostics.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.log = log }
}

func defaultOptions() options {
	return options{
		ignoredRepos: make(map[string]bool),
		depth:        UnlimitedDepth,
		allowedHost:  DefaultAllowedHost,
		maxWorkers:   DefaultMaxWorkers,
		overrides:    overrides.Empty(),
		log:          logging.Default(),
	}
}

// hostOf extracts the host component of a repository URI, tolerating
// scp-style remotes (user@host:path).
func hostOf(uri string) string {
	rest := strings.TrimSpace(uri)
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if at := strings.Index(rest, "@"); at >= 0 && !strings.ContainsAny(rest[:at], "/:") {
		rest = rest[at+1:]
	}
	if idx := strings.IndexAny(rest, "/:"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
