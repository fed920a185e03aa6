// Copyright 2022 The CubeFS Authors.
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

package idgenerator

import (
	"context"
	"math"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/dit/common/kvstore"
	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/metrics"
)

var (
	MaxCount = 1 << 20

	// bound on compare-and-swap conflicts a single call tolerates
	maxSwapRetry = 1 << 10
)

// IDGenerator hands out unique identifiers of one scope. Identifiers are
// strictly increasing across calls and restarts and are never reused.
type IDGenerator interface {
	// NextID returns a single new identifier.
	NextID(ctx context.Context) (uint64, error)
	// Alloc reserves count identifiers, the range (base, new].
	Alloc(ctx context.Context, count int) (base, new uint64, err error)
	// Peek returns the last identifier handed out and false if none has
	// been handed out yet.
	Peek(ctx context.Context) (uint64, bool, error)
}

type idGenerator struct {
	scope string
	// the counter value of a scope that has never allocated
	floor   uint64
	storage *storage
}

// NewIDGenerator creates the generator of scope, persisting its counter in
// column col of kvStore. The first identifier handed out is floor+1.
func NewIDGenerator(ctx context.Context, kvStore kvstore.Store, col kvstore.CF, scope string, floor uint64) (IDGenerator, error) {
	if err := kvStore.CreateColumn(col); err != nil {
		return nil, errors.Info(err, "create id column failed").Detail(err)
	}
	s := &idGenerator{
		scope:   scope,
		floor:   floor,
		storage: &storage{kvStore: kvStore, cf: col},
	}
	if err := s.LoadData(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *idGenerator) LoadData(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	scopeItems, err := s.storage.Load(ctx)
	if err != nil {
		return err
	}
	span.Infof("scope item: %+v", scopeItems)
	return nil
}

func (s *idGenerator) NextID(ctx context.Context) (uint64, error) {
	_, id, err := s.Alloc(ctx, 1)
	return id, err
}

func (s *idGenerator) Alloc(ctx context.Context, count int) (base, new uint64, err error) {
	span := trace.SpanFromContextSafe(ctx)
	if count <= 0 {
		return 0, 0, apierrors.ErrInvalidCount
	}
	if count > MaxCount {
		count = MaxCount
	}

	for retry := 0; retry < maxSwapRetry; retry++ {
		stored, exists, err := s.current(ctx)
		if err != nil {
			return 0, 0, err
		}
		current := stored
		if current < s.floor {
			current = s.floor
		}
		if current > math.MaxUint64-uint64(count) {
			return 0, 0, apierrors.ErrInvalidCount
		}

		newCurrent := current + uint64(count)
		err = s.storage.Swap(ctx, s.scope, stored, exists, newCurrent)
		if err == kvstore.ErrCASConflict {
			span.Debugf("alloc id conflict, scope %s, current %d, retry %d", s.scope, current, retry)
			continue
		}
		if err != nil {
			span.Errorf("put id failed, scope %s, err: %v", s.scope, err)
			return 0, 0, errors.Info(err, "swap id counter failed").Detail(err)
		}

		metrics.IDsAllocated.WithLabelValues(s.scope).Add(float64(count))
		span.Debugf("alloc id success, scope %s, current %d, new current %d", s.scope, current, newCurrent)
		return current, newCurrent, nil
	}

	span.Warnf("alloc id gave up after %d conflicts, scope %s", maxSwapRetry, s.scope)
	return 0, 0, apierrors.ErrAllocContention
}

func (s *idGenerator) Peek(ctx context.Context) (uint64, bool, error) {
	current, err := s.storage.Get(ctx, s.scope)
	if err == kvstore.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return current, true, nil
}

// current returns the stored counter of the scope, false if it has none.
func (s *idGenerator) current(ctx context.Context) (current uint64, exists bool, err error) {
	current, err = s.storage.Get(ctx, s.scope)
	switch err {
	case nil:
		return current, true, nil
	case kvstore.ErrNotFound:
		return 0, false, nil
	default:
		return 0, false, err
	}
}
