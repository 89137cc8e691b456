// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitrepo manages shared repository clones on disk.
//
// It has two halves: the Transport, a thin wrapper around the git CLI
// for clone/checkout/remote/show operations, and the Store, which owns
// the physical layout of shared clones including the optional split
// between a working folder and an external git metadata directory.
package gitrepo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
)

// Runner executes a git invocation in the given directory and returns
// its combined output. Abstracted so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// execRunner shells out to the git binary.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return string(output), nil
}

// CloneOptions describes one clone invocation.
type CloneOptions struct {
	// URL is the remote repository URL. Required.
	URL string

	// Branch optionally selects the branch to clone. Empty clones the
	// remote default branch.
	Branch string

	// WorkingPath is the folder the repository is cloned into. Required.
	WorkingPath string

	// GitDirPath optionally places the git metadata directory outside
	// the working folder (git clone --separate-git-dir).
	GitDirPath string
}

// Transport is the set of version-control operations the store and the
// discovery orchestrator consume. Operations are synchronous and may be
// long-running; cancel via ctx.
type Transport interface {
	// Clone clones a remote repository. Failures wrap ErrCloneFailed.
	Clone(ctx context.Context, opts CloneOptions) error

	// Checkout checks out commitOrBranch in the given working folder.
	// With isDefault true and an empty commitOrBranch, the repository's
	// default branch is resolved and checked out.
	Checkout(ctx context.Context, workingPath, commitOrBranch string, isDefault bool) error

	// AddRemoteIfMissing ensures a remote entry for url exists in the
	// repository configuration at repoPath. Idempotent.
	AddRemoteIfMissing(ctx context.Context, repoPath, url string) error

	// ShowFile reads a file's content at the given commit without a
	// checkout. A missing path or unknown commit wraps ErrObjectNotFound.
	ShowFile(ctx context.Context, repoPath, commit, path string) ([]byte, error)
}

// CLI is the git-binary backed Transport.
type CLI struct {
	runner Runner
	log    *logging.Logger
}

// CLIOption configures the CLI transport.
type CLIOption func(*CLI)

// WithRunner substitutes the subprocess runner. Intended for tests.
func WithRunner(r Runner) CLIOption {
	return func(c *CLI) { c.runner = r }
}

// WithCLILogger sets the logger for transport diagnostics.
func WithCLILogger(log *logging.Logger) CLIOption {
	return func(c *CLI) { c.log = log }
}

// NewCLI creates a Transport backed by the git binary on PATH.
func NewCLI(opts ...CLIOption) *CLI {
	c := &CLI{
		runner: execRunner{},
		log:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone clones opts.URL into opts.WorkingPath, optionally with a
// separate git metadata directory.
func (c *CLI) Clone(ctx context.Context, opts CloneOptions) error {
	args := []string{"clone"}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	if opts.GitDirPath != "" {
		args = append(args, "--separate-git-dir", opts.GitDirPath)
	}
	args = append(args, opts.URL, opts.WorkingPath)

	c.log.Debug("cloning repository", "url", opts.URL, "path", opts.WorkingPath)
	if _, err := c.runner.Run(ctx, "", args...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCloneFailed, opts.URL, err)
	}
	return nil
}

// Checkout checks out a commit or branch in workingPath. With isDefault
// true and empty commitOrBranch, the default branch is resolved first.
func (c *CLI) Checkout(ctx context.Context, workingPath, commitOrBranch string, isDefault bool) error {
	target := commitOrBranch
	if isDefault && target == "" {
		out, err := c.runner.Run(ctx, workingPath, "symbolic-ref", "--short", "HEAD")
		if err != nil {
			return fmt.Errorf("resolve default branch: %w", err)
		}
		target = strings.TrimSpace(out)
	}
	if _, err := c.runner.Run(ctx, workingPath, "checkout", "-f", target); err != nil {
		return fmt.Errorf("checkout %s: %w", target, err)
	}
	return nil
}

// AddRemoteIfMissing ensures a remote for url exists at repoPath. The
// remote is named after the URL's final path segment so multiple URL
// spellings of one repository can coexist.
func (c *CLI) AddRemoteIfMissing(ctx context.Context, repoPath, url string) error {
	out, err := c.runner.Run(ctx, repoPath, "remote", "-v")
	if err != nil {
		return fmt.Errorf("list remotes: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.EqualFold(fields[1], url) {
			return nil
		}
	}
	name := "origin"
	if strings.Contains(out, "origin") {
		name = remoteNameFor(url)
	}
	if _, err := c.runner.Run(ctx, repoPath, "remote", "add", name, url); err != nil {
		// Racing adds of the same name are fine as long as the URL is present.
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("add remote %s: %w", name, err)
	}
	return nil
}

// ShowFile reads path at commit from the repository at repoPath.
func (c *CLI) ShowFile(ctx context.Context, repoPath, commit, path string) ([]byte, error) {
	out, err := c.runner.Run(ctx, repoPath, "show", commit+":"+path)
	if err != nil {
		if isObjectNotFound(err.Error()) {
			return nil, fmt.Errorf("%w: %s at %s", ErrObjectNotFound, path, commit)
		}
		return nil, fmt.Errorf("show %s:%s: %w", commit, path, err)
	}
	return []byte(out), nil
}

// isObjectNotFound matches the git error texts for a missing path or
// unknown object at a commit.
func isObjectNotFound(msg string) bool {
	for _, marker := range []string{
		"does not exist in",
		"exists on disk, but not in",
		"invalid object name",
		"bad revision",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// remoteNameFor derives a stable remote name from a URL's final path
// segment.
func remoteNameFor(url string) string {
	segment := finalPathSegment(url)
	segment = strings.TrimSuffix(segment, ".git")
	if segment == "" {
		return "mirror"
	}
	return "mirror-" + strings.ToLower(segment)
}
