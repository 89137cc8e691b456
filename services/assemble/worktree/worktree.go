// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worktree is the extension boundary for materializing
// per-identity working trees from a finished dependency graph. The
// ordering computation is implemented; materialization itself is a
// future extension point.
package worktree

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianAssemble/services/assemble/graph"
	"github.com/AleutianAI/AleutianAssemble/services/assemble/registry"
)

// ErrNotImplemented indicates worktree materialization is not yet
// available.
var ErrNotImplemented = errors.New("worktree materialization not implemented")

// Materializer creates working trees for graph identities under a
// target folder.
type Materializer interface {
	// Materialize creates working trees for id and everything it
	// depends on, dependencies first, under targetDir.
	Materialize(ctx context.Context, g *graph.Graph, id registry.Identity, targetDir string) error
}

// Unimplemented is the default Materializer; every call fails with
// ErrNotImplemented.
type Unimplemented struct{}

func (Unimplemented) Materialize(context.Context, *graph.Graph, registry.Identity, string) error {
	return ErrNotImplemented
}

// CreationOrder returns the identities to materialize for id,
// dependencies before dependents, ending with id itself.
//
// The order is the reverse of the breadth-first upstream closure, so
// every identity appears after everything it depends on that is part
// of the closure.
func CreationOrder(ctx context.Context, g *graph.Graph, id registry.Identity) ([]registry.Identity, error) {
	ups, err := g.GetAllUpstreams(ctx, id)
	if err != nil {
		return nil, err
	}

	order := make([]registry.Identity, 0, len(ups)+1)
	for i := len(ups) - 1; i >= 0; i-- {
		order = append(order, ups[i].Identity)
	}
	// A cycle back to the start already places it in the closure.
	for _, existing := range order {
		if existing.Equal(id) {
			return order, nil
		}
	}
	return append(order, id), nil
}
