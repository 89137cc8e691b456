// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
)

// redirectPrefix is the content prefix of a .git redirect file, as
// written by git's --separate-git-dir layout.
const redirectPrefix = "gitdir: "

// Store manages the on-disk layout of shared repository clones.
//
// # Description
//
// One clone exists per distinct repository URI, not per commit; all
// commits of a repository are read from the same clone. The working
// folder for a repository lives under Root, named after the URL's
// final path segment with a ".git" suffix. When GitDirRoot is set, the
// actual git metadata directory is kept under that parent instead,
// and the working folder carries a redirect file pointing at it.
//
// Clones are created on first reference and never deleted by this
// system; they are reused across runs and across concurrent discovery
// of the same repository at different commits.
//
// # Thread Safety
//
// Safe for concurrent use. Callers are expected to serialize
// EnsureMasterCopy per repository (the discovery orchestrator does
// this with single-flight); the store itself only guards its key
// collision table.
type Store struct {
	// Root is the parent directory of all working folders.
	Root string

	// GitDirRoot optionally holds all git metadata directories. Empty
	// disables the split layout.
	GitDirRoot string

	transport Transport
	log       *logging.Logger

	// mu guards keysByDir.
	mu sync.Mutex

	// keysByDir maps bare directory name to the store key that claimed
	// it, to detect distinct repositories colliding on a final path
	// segment.
	keysByDir map[string]string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithGitDirRoot places git metadata directories under dir instead of
// inside each working folder.
func WithGitDirRoot(dir string) StoreOption {
	return func(s *Store) { s.GitDirRoot = dir }
}

// WithTransport substitutes the version-control transport.
func WithTransport(t Transport) StoreOption {
	return func(s *Store) { s.transport = t }
}

// WithStoreLogger sets the logger for layout diagnostics.
func WithStoreLogger(log *logging.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore creates a Store rooted at root.
func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{
		Root:      root,
		transport: NewCLI(),
		log:       logging.Default(),
		keysByDir: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BareDirName derives the on-disk directory name for a repository URL:
// the URL's final path segment with a ".git" suffix, lowercased.
func BareDirName(url string) string {
	segment := strings.ToLower(strings.TrimSuffix(finalPathSegment(url), ".git"))
	return segment + ".git"
}

// StoreKey returns the deduplication key for a repository URL: the
// normalized host and path, case-folded, with any ".git" suffix and
// scheme removed. Two spellings of the same repository share a key;
// distinct repositories that merely share a final path segment do not.
func StoreKey(url string) string {
	key := strings.ToLower(strings.TrimSpace(url))
	for _, prefix := range []string{"https://", "http://", "ssh://", "git://"} {
		key = strings.TrimPrefix(key, prefix)
	}
	if at := strings.Index(key, "@"); at >= 0 && !strings.Contains(key[:at], "/") {
		key = key[at+1:]
	}
	key = strings.ReplaceAll(key, ":", "/")
	key = strings.TrimSuffix(key, "/")
	return strings.TrimSuffix(key, ".git")
}

// finalPathSegment returns the last path component of a URL, tolerating
// trailing slashes and scp-style remotes.
func finalPathSegment(url string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	if idx := strings.LastIndexAny(trimmed, "/:"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

// PathsFor returns the working folder and (possibly empty) external
// git-dir path for a repository URL under this store's layout.
func (s *Store) PathsFor(url string) (workingPath, gitDirPath string) {
	dir := BareDirName(url)
	workingPath = filepath.Join(s.Root, dir)
	if s.GitDirRoot != "" {
		gitDirPath = filepath.Join(s.GitDirRoot, dir)
	}
	return workingPath, gitDirPath
}

// ClonePath returns the path used to key clone deduplication for a
// repository URL: the bare-metadata directory path. When a git-dir
// root is configured, that is the external metadata path, otherwise
// the working folder itself.
func (s *Store) ClonePath(url string) string {
	workingPath, gitDirPath := s.PathsFor(url)
	if gitDirPath != "" {
		return gitDirPath
	}
	return workingPath
}

// EnsureMasterCopy ensures a usable shared clone of repoURL exists at
// workingPath, with metadata at gitDirPath when non-empty.
//
// # Description
//
// Implements the layout state machine over the four on-disk facts:
// working folder present, real metadata present, redirect present, and
// external git-dir present. Fresh state clones; resumable state is
// normalized toward the configured layout (redirect rewritten, stray
// metadata relocated); a working folder with no usable metadata and no
// git-dir override is a fatal inconsistency requiring manual repair.
//
// After the copy is established, a remote entry for repoURL is added
// to the repository configuration if one is missing.
//
// # Outputs
//
//   - error: ErrLayoutInconsistency or ErrStoreKeyCollision (fatal),
//     a wrapped ErrCloneFailed, or nil.
func (s *Store) EnsureMasterCopy(ctx context.Context, repoURL, workingPath, gitDirPath string) error {
	if err := s.claimDir(repoURL, workingPath); err != nil {
		return err
	}

	var err error
	if gitDirPath == "" {
		err = s.ensurePlainLayout(ctx, repoURL, workingPath)
	} else if pathExists(gitDirPath) {
		err = s.ensureSplitLayoutExisting(ctx, workingPath, gitDirPath)
	} else {
		err = s.ensureSplitLayoutFresh(ctx, repoURL, workingPath, gitDirPath)
	}
	if err != nil {
		return err
	}

	remotePath := workingPath
	if gitDirPath != "" {
		remotePath = gitDirPath
	}
	return s.transport.AddRemoteIfMissing(ctx, remotePath, repoURL)
}

// ensurePlainLayout handles the no-git-dir-override configuration.
func (s *Store) ensurePlainLayout(ctx context.Context, repoURL, workingPath string) error {
	if !pathExists(workingPath) {
		return s.transport.Clone(ctx, CloneOptions{URL: repoURL, WorkingPath: workingPath})
	}
	if !isDir(filepath.Join(workingPath, ".git")) {
		// The folder is unusable and must be deleted or fixed manually.
		return fmt.Errorf("%w: %s", ErrLayoutInconsistency, workingPath)
	}
	return nil
}

// ensureSplitLayoutExisting handles a git-dir that is already on disk:
// a resume with stable settings.
func (s *Store) ensureSplitLayoutExisting(ctx context.Context, workingPath, gitDirPath string) error {
	if !pathExists(workingPath) {
		if err := os.MkdirAll(workingPath, 0750); err != nil {
			return fmt.Errorf("create working folder: %w", err)
		}
		if err := writeRedirect(workingPath, gitDirPath); err != nil {
			return err
		}
		return s.transport.Checkout(ctx, workingPath, "", true)
	}

	// Normalize the existing working folder toward the expected git-dir:
	// drop local metadata or a stale redirect, then write the correct one.
	dotGit := filepath.Join(workingPath, ".git")
	if isDir(dotGit) {
		if err := os.RemoveAll(dotGit); err != nil {
			return fmt.Errorf("remove local metadata: %w", err)
		}
	} else if pathExists(dotGit) {
		if target, ok := readRedirect(workingPath); !ok || !sameFile(target, gitDirPath) {
			if err := os.Remove(dotGit); err != nil {
				return fmt.Errorf("remove stale redirect: %w", err)
			}
		}
	}
	return writeRedirect(workingPath, gitDirPath)
}

// ensureSplitLayoutFresh handles a configured git-dir that is not yet
// on disk: first run, or settings changed since the last one.
func (s *Store) ensureSplitLayoutFresh(ctx context.Context, repoURL, workingPath, gitDirPath string) error {
	if !pathExists(workingPath) {
		return s.transport.Clone(ctx, CloneOptions{
			URL:         repoURL,
			WorkingPath: workingPath,
			GitDirPath:  gitDirPath,
		})
	}

	dotGit := filepath.Join(workingPath, ".git")
	switch {
	case isDir(dotGit):
		// Real metadata inside the working folder: relocate it out.
		if sameFile(dotGit, gitDirPath) {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(gitDirPath), 0750); err != nil {
			return fmt.Errorf("create git-dir parent: %w", err)
		}
		if err := os.Rename(dotGit, gitDirPath); err != nil {
			return fmt.Errorf("relocate metadata: %w", err)
		}
		return writeRedirect(workingPath, gitDirPath)

	case pathExists(dotGit):
		target, ok := readRedirect(workingPath)
		if !ok {
			return fmt.Errorf("%w: unreadable redirect in %s", ErrLayoutInconsistency, workingPath)
		}
		if sameFile(target, gitDirPath) {
			return nil
		}
		// Redirect aimed elsewhere: relocate the underlying metadata and
		// rewrite the redirect.
		if pathExists(target) {
			if err := os.MkdirAll(filepath.Dir(gitDirPath), 0750); err != nil {
				return fmt.Errorf("create git-dir parent: %w", err)
			}
			if err := os.Rename(target, gitDirPath); err != nil {
				return fmt.Errorf("relocate metadata: %w", err)
			}
		}
		return writeRedirect(workingPath, gitDirPath)

	default:
		// Orphaned working folder: adopt it. Assumes the folder's
		// existing content is compatible with the repository.
		s.log.Warn("adopting orphaned working folder", "path", workingPath)
		return writeRedirect(workingPath, gitDirPath)
	}
}

// claimDir records which store key owns a bare directory name and
// rejects a second distinct repository claiming the same one.
func (s *Store) claimDir(repoURL, workingPath string) error {
	key := StoreKey(repoURL)
	dir := filepath.Base(workingPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.keysByDir[dir]; ok && owner != key {
		return fmt.Errorf("%w: %s claimed by %s and %s", ErrStoreKeyCollision, dir, owner, key)
	}
	s.keysByDir[dir] = key
	return nil
}

// writeRedirect writes the .git redirect file in workingPath pointing
// at gitDirPath.
func writeRedirect(workingPath, gitDirPath string) error {
	content := redirectPrefix + gitDirPath + "\n"
	if err := os.WriteFile(filepath.Join(workingPath, ".git"), []byte(content), 0640); err != nil {
		return fmt.Errorf("write redirect: %w", err)
	}
	return nil
}

// readRedirect reads the redirect target from workingPath's .git file.
func readRedirect(workingPath string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(workingPath, ".git"))
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, strings.TrimSpace(redirectPrefix)) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, strings.TrimSpace(redirectPrefix))), true
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// sameFile compares two paths after cleaning; symlink-equal paths that
// differ textually are treated as different, matching git's own
// comparison of gitdir targets.
func sameFile(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
