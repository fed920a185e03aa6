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
	"os"
	"sync"
	"testing"

	"github.com/cubefs/dit/common/kvstore"
	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/util"
	"github.com/stretchr/testify/require"
)

const (
	testCF    = kvstore.CF("id")
	testScope = "item"
	testFloor = uint64(2)
)

func openStore(t *testing.T, path string) kvstore.Store {
	store, err := kvstore.NewKVStore(context.TODO(), path, kvstore.BoltKVType, &kvstore.Option{CreateIfMissing: true})
	require.NoError(t, err)
	return store
}

func newTestGenerator(t *testing.T) (IDGenerator, kvstore.Store, func()) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	store := openStore(t, path)
	gen, err := NewIDGenerator(context.TODO(), store, testCF, testScope, testFloor)
	require.NoError(t, err)
	return gen, store, func() {
		store.Close()
		os.RemoveAll(path)
	}
}

func TestIDGenerator_NextID(t *testing.T) {
	ctx := context.TODO()
	gen, _, clean := newTestGenerator(t)
	defer clean()

	_, ok, err := gen.Peek(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	seen := make(map[uint64]struct{})
	last := testFloor
	for i := 0; i < 1000; i++ {
		id, err := gen.NextID(ctx)
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 1000)
	require.Equal(t, testFloor+1000, last)

	peek, ok, err := gen.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, last, peek)
}

func TestIDGenerator_FirstIDAboveFloor(t *testing.T) {
	ctx := context.TODO()
	gen, _, clean := newTestGenerator(t)
	defer clean()

	id, err := gen.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), id)
}

func TestIDGenerator_Restart(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	store := openStore(t, path)
	gen, err := NewIDGenerator(ctx, store, testCF, testScope, testFloor)
	require.NoError(t, err)
	var last uint64
	for i := 0; i < 10; i++ {
		last, err = gen.NextID(ctx)
		require.NoError(t, err)
	}
	store.Close()

	store = openStore(t, path)
	defer store.Close()
	gen, err = NewIDGenerator(ctx, store, testCF, testScope, testFloor)
	require.NoError(t, err)
	peek, ok, err := gen.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, last, peek)

	id, err := gen.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, last+1, id)
}

func TestIDGenerator_Concurrent(t *testing.T) {
	ctx := context.TODO()
	gen, _, clean := newTestGenerator(t)
	defer clean()

	workers, rounds := 8, 100
	ids := make(chan uint64, workers*rounds)
	errs := make(chan error, workers*rounds)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				id, err := gen.NextID(ctx)
				if err != nil {
					errs <- err
					continue
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[uint64]struct{})
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "id %d handed out twice", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, workers*rounds)
}

func TestIDGenerator_Alloc(t *testing.T) {
	ctx := context.TODO()
	gen, _, clean := newTestGenerator(t)
	defer clean()

	base, new, err := gen.Alloc(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, testFloor, base)
	require.Equal(t, testFloor+10, new)

	base, new, err = gen.Alloc(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, testFloor+10, base)
	require.Equal(t, testFloor+15, new)

	_, _, err = gen.Alloc(ctx, 0)
	require.ErrorIs(t, err, apierrors.ErrInvalidCount)
	_, _, err = gen.Alloc(ctx, -1)
	require.ErrorIs(t, err, apierrors.ErrInvalidCount)

	base, new, err = gen.Alloc(ctx, MaxCount+1)
	require.NoError(t, err)
	require.Equal(t, uint64(MaxCount), new-base)
}

func TestIDGenerator_CorruptCounter(t *testing.T) {
	ctx := context.TODO()
	gen, store, clean := newTestGenerator(t)
	defer clean()

	require.NoError(t, store.SetRaw(ctx, testCF, encodeName(testScope), []byte{1, 2, 3}))
	_, err := gen.NextID(ctx)
	require.ErrorIs(t, err, apierrors.ErrCorrupt)
	_, _, err = gen.Peek(ctx)
	require.ErrorIs(t, err, apierrors.ErrCorrupt)
}

func TestIDGenerator_Scopes(t *testing.T) {
	ctx := context.TODO()
	gen, store, clean := newTestGenerator(t)
	defer clean()

	other, err := NewIDGenerator(ctx, store, testCF, "other", 100)
	require.NoError(t, err)

	id, err := other.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(101), id)
	id, err = gen.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), id)

	scopes, err := (&storage{kvStore: store, cf: testCF}).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{testScope: 3, "other": 101}, scopes)
}
