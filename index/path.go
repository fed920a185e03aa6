// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package index

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/proto"
)

const defaultMaxDepth = 4096

type pathResolver struct {
	store    *itemStore
	maxDepth int
}

// FullPath rebuilds the filesystem path of id by following parent pointers
// up to the root. The root resolves to its stored name as is.
func (r *pathResolver) FullPath(ctx context.Context, id uint64) (string, error) {
	span := trace.SpanFromContextSafe(ctx)
	item, err := r.store.GetItem(ctx, id)
	if err != nil {
		return "", err
	}
	if item.IsRoot() {
		if item.ID != proto.RootID {
			span.Errorf("item %d points at itself but is not the root", item.ID)
			return "", fmt.Errorf("%w: item %d is a second root", apierrors.ErrCorruptGraph, item.ID)
		}
		return item.Name, nil
	}

	// leaf first
	segments := []string{item.Name}
	visited := map[uint64]struct{}{item.ID: {}}
	cur := item.Parent
	for depth := 1; ; depth++ {
		if depth > r.maxDepth {
			span.Errorf("path of item %d is deeper than %d", id, r.maxDepth)
			return "", fmt.Errorf("%w: path of item %d exceeds depth %d", apierrors.ErrCorruptGraph, id, r.maxDepth)
		}
		if _, ok := visited[cur]; ok {
			span.Errorf("parent chain of item %d loops at item %d", id, cur)
			return "", fmt.Errorf("%w: cycle at item %d", apierrors.ErrCorruptGraph, cur)
		}
		visited[cur] = struct{}{}

		parent, err := r.store.GetItem(ctx, cur)
		if err != nil {
			if apierrors.IsNotFound(err) {
				span.Errorf("ancestor %d of item %d is missing", cur, id)
				return "", fmt.Errorf("%w: missing ancestor %d", apierrors.ErrCorruptGraph, cur)
			}
			return "", err
		}
		if parent.IsRoot() {
			if parent.ID != proto.RootID {
				return "", fmt.Errorf("%w: item %d is a second root", apierrors.ErrCorruptGraph, parent.ID)
			}
			elems := make([]string, 0, len(segments)+1)
			elems = append(elems, parent.Name)
			for i := len(segments) - 1; i >= 0; i-- {
				elems = append(elems, segments[i])
			}
			return filepath.Join(elems...), nil
		}
		segments = append(segments, parent.Name)
		cur = parent.Parent
	}
}
