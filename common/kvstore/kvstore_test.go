// Copyright 2023 The Cuber Authors.
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

package kvstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/cubefs/dit/util"
	"github.com/stretchr/testify/require"
)

type testEg struct {
	engine Store
	path   string
	opt    *Option
}

func newEngine(ctx context.Context, kvType KVType, opt *Option) (*testEg, error) {
	path, err := util.GenTmpPath()
	if err != nil {
		return nil, err
	}
	var _opt *Option
	if opt != nil {
		_opt = opt
	} else {
		_opt = new(Option)
	}
	_opt.CreateIfMissing = true
	_opt.Sync = true
	engine, err := NewKVStore(ctx, path, kvType, _opt)
	if err != nil {
		return nil, err
	}
	return &testEg{
		engine: engine,
		path:   path,
		opt:    _opt,
	}, nil
}

func (eg *testEg) close() {
	eg.engine.Close()
	os.RemoveAll(eg.path)
}

func TestNewKVStore(t *testing.T) {
	ctx := context.TODO()
	_, err := NewKVStore(ctx, "", BoltKVType, nil)
	require.ErrorIs(t, err, ErrEmptyPath)

	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)
	_, err = NewKVStore(ctx, path, KVType("leveldb"), nil)
	require.ErrorIs(t, err, ErrKVTypeNotFound)

	// refuse to create without CreateIfMissing
	_, err = NewKVStore(ctx, path, BoltKVType, &Option{})
	require.Error(t, err)
}

func TestBolt_ReopenKeepsData(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	opt := &Option{CreateIfMissing: true, ColumnFamily: []CF{"a"}}
	eg, err := NewKVStore(ctx, path, BoltKVType, opt)
	require.NoError(t, err)
	require.NoError(t, eg.CreateColumn("b"))
	require.NoError(t, eg.SetRaw(ctx, "b", []byte("k"), []byte("v")))
	eg.Close()

	eg, err = NewKVStore(ctx, path, BoltKVType, &Option{})
	require.NoError(t, err)
	defer eg.Close()
	require.True(t, eg.CheckColumns("a"))
	require.True(t, eg.CheckColumns("b"))
	require.False(t, eg.CheckColumns("c"))
	v, err := eg.GetRaw(ctx, "b", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestBolt_SetGetRaw(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, BoltKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("key1")
	v := []byte("value1")
	_, err = eg.engine.GetRaw(ctx, defaultCF, k)
	require.ErrorIs(t, err, ErrNotFound)

	err = eg.engine.SetRaw(ctx, defaultCF, k, v)
	require.NoError(t, err)
	v1, err := eg.engine.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, v, v1)

	// upsert
	err = eg.engine.SetRaw(ctx, "", k, []byte("value2"))
	require.NoError(t, err)
	v1, err = eg.engine.GetRaw(ctx, "", k)
	require.NoError(t, err)
	require.Equal(t, []byte("value2"), v1)
}

func TestBolt_CompareAndSwap(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, BoltKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("cas")
	require.NoError(t, eg.engine.CompareAndSwap(ctx, defaultCF, k, nil, []byte("1")))
	// must be absent
	require.ErrorIs(t, eg.engine.CompareAndSwap(ctx, defaultCF, k, nil, []byte("2")), ErrCASConflict)
	require.ErrorIs(t, eg.engine.CompareAndSwap(ctx, defaultCF, k, []byte("0"), []byte("2")), ErrCASConflict)
	require.NoError(t, eg.engine.CompareAndSwap(ctx, defaultCF, k, []byte("1"), []byte("2")))

	v, err := eg.engine.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	require.ErrorIs(t, eg.engine.CompareAndSwap(ctx, defaultCF, []byte("missing"), []byte("1"), []byte("2")), ErrCASConflict)
}

func TestBolt_ConcurrentCompareAndSwap(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, BoltKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("counter")
	incr := func() error {
		for {
			var old []byte
			cur := uint64(0)
			v, err := eg.engine.GetRaw(ctx, defaultCF, k)
			switch err {
			case nil:
				old = v
				cur = binary.BigEndian.Uint64(v)
			case ErrNotFound:
			default:
				return err
			}
			next := make([]byte, 8)
			binary.BigEndian.PutUint64(next, cur+1)
			err = eg.engine.CompareAndSwap(ctx, defaultCF, k, old, next)
			if err == ErrCASConflict {
				continue
			}
			return err
		}
	}

	workers, rounds := 8, 50
	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if err := incr(); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := eg.engine.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, uint64(workers*rounds), binary.BigEndian.Uint64(v))
}

func TestBolt_List(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, BoltKVType, &Option{ColumnFamily: []CF{"c1"}})
	require.NoError(t, err)
	defer eg.close()

	col := CF("c1")
	// more than one page
	n := boltListPageSize*2 + 3
	for i := 0; i < n; i++ {
		require.NoError(t, eg.engine.SetRaw(ctx, col, []byte(fmt.Sprintf("p/%04d", i)), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, eg.engine.SetRaw(ctx, col, []byte("q/0000"), []byte("other")))
	require.NoError(t, eg.engine.SetRaw(ctx, col, []byte("a/0000"), []byte("other")))

	lr := eg.engine.List(ctx, col, []byte("p/"), nil)
	count := 0
	var last []byte
	for {
		k, v, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		require.Equal(t, fmt.Sprintf("p/%04d", count), string(k))
		require.Equal(t, fmt.Sprintf("v%d", count), string(v))
		if last != nil {
			require.Less(t, string(last), string(k))
		}
		last = k
		count++
	}
	lr.Close()
	require.Equal(t, n, count)

	// marker starts the scan in the middle of the prefix
	lr = eg.engine.List(ctx, col, []byte("p/"), []byte("p/0500"))
	k, _, err := lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, "p/0500", string(k))
	lr.Close()

	// whole column
	lr = eg.engine.List(ctx, col, nil, nil)
	k, _, err = lr.ReadNextCopy()
	require.NoError(t, err)
	require.Equal(t, "a/0000", string(k))
	lr.Close()
}
