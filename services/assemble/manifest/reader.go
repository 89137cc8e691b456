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
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAssemble/pkg/logging"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/gitrepo"
)

// ErrManifestNotFound indicates the dependency-declaration document is
// absent at the requested commit. A recoverable condition: the branch
// stops expanding and becomes a leaf.
var ErrManifestNotFound = errors.New("dependency manifest not found at commit")

// DefaultCacheSize bounds the manifest read cache. A manifest is
// immutable for a given (repository, commit), so cached entries never
// go stale within or across runs.
const DefaultCacheSize = 1024

// Source resolves file content at a commit from a local clone.
// gitrepo's Transport satisfies this.
type Source interface {
	ShowFile(ctx context.Context, repoPath, commit, path string) ([]byte, error)
}

// Reader parses dependency manifests out of shared clones.
//
// # Thread Safety
//
// Safe for concurrent use; the cache is internally synchronized.
type Reader struct {
	src   Source
	cache *lru.Cache[string, []DependencyRecord]
	log   *logging.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets the logger for manifest diagnostics.
func WithReaderLogger(log *logging.Logger) ReaderOption {
	return func(r *Reader) { r.log = log }
}

// NewReader creates a Reader over the given file source.
func NewReader(src Source, opts ...ReaderOption) *Reader {
	cache, _ := lru.New[string, []DependencyRecord](DefaultCacheSize)
	r := &Reader{
		src:   src,
		cache: cache,
		log:   logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadDependencies parses the manifest of the repository at repoPath
// pinned to commit.
//
// # Outputs
//
//   - []DependencyRecord: the declared dependencies, in document order.
//   - error: ErrManifestNotFound when the document is absent at the
//     commit; any other error is a read or parse failure.
//
// Results are cached per (repoPath, commit); a cached not-found is not
// recorded because the negative case is cheap to re-derive and rare.
func (r *Reader) ReadDependencies(ctx context.Context, repoPath, commit string) ([]DependencyRecord, error) {
	key := cacheKey(repoPath, commit)
	if records, ok := r.cache.Get(key); ok {
		return records, nil
	}

	data, err := r.src.ShowFile(ctx, repoPath, commit, FileName)
	if err != nil {
		if errors.Is(err, gitrepo.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrManifestNotFound, repoPath, commit)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest at %s: %w", commit, err)
	}

	records := normalize(doc.Dependencies)
	r.cache.Add(key, records)
	r.log.Debug("manifest read", "repo_path", repoPath, "commit", commit, "dependencies", len(records))
	return records, nil
}

// normalize trims whitespace and defaults unset types to source.
func normalize(records []DependencyRecord) []DependencyRecord {
	out := make([]DependencyRecord, 0, len(records))
	for _, rec := range records {
		rec.RepoURI = strings.TrimSpace(rec.RepoURI)
		rec.Commit = strings.TrimSpace(rec.Commit)
		if rec.Type == "" {
			rec.Type = TypeSource
		}
		out = append(out, rec)
	}
	return out
}

func cacheKey(repoPath, commit string) string {
	return repoPath + "@" + strings.ToLower(commit)
}
