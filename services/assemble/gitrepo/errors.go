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

import "errors"

// Sentinel errors for the repository store and transport.
var (
	// ErrCloneFailed indicates the clone subprocess failed. Fatal for a
	// discovery run.
	ErrCloneFailed = errors.New("clone failed")

	// ErrLayoutInconsistency indicates a working folder exists without
	// usable git metadata and no git-dir override is configured. The
	// folder must be repaired or deleted manually; the store never
	// auto-repairs it.
	ErrLayoutInconsistency = errors.New("working folder has no usable git metadata")

	// ErrObjectNotFound indicates a path does not exist at the requested
	// commit in the repository.
	ErrObjectNotFound = errors.New("object not found at commit")

	// ErrStoreKeyCollision indicates two distinct repository URLs derive
	// the same bare directory name. The colliding clone is refused
	// rather than silently shared.
	ErrStoreKeyCollision = errors.New("bare directory name collision between distinct repositories")
)
