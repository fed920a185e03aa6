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
	"fmt"
	"os"
	"testing"

	"github.com/cubefs/dit/util"
	"github.com/stretchr/testify/require"
)

func Test_openRocksdb(t *testing.T) {
	ctx := context.TODO()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)
	opt := new(Option)
	opt.CreateIfMissing = true
	opt.BlockSize = 1 << 20
	opt.BlockCache = 1 << 20
	opt.MaxBackgroundCompactions = 8
	opt.KeepLogFileNum = 10000
	opt.MaxLogFileSize = 1 << 30
	opt.ColumnFamily = []CF{"a", "b", "c"}
	opt.CompactionStyle = LevelStyle
	eg, err := newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()

	// open with empty path
	_, err = newRocksdb(ctx, "", opt)
	require.Equal(t, ErrEmptyPath, err)
	// reopen db
	eg, err = newRocksdb(ctx, path, opt)
	require.NoError(t, err)
	eg.Close()
	// open with wrong cf
	opt.ColumnFamily = []CF{"a", "b"}
	_, err = newRocksdb(ctx, path, opt)
	require.Error(t, err)
}

func TestRocksdb_CreateColumn(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, RocksdbLsmKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	err = eg.engine.CreateColumn("colA")
	require.NoError(t, err)
	require.True(t, eg.engine.CheckColumns("colA"))
	require.Len(t, eg.engine.GetAllColumns(), 2)
}

func TestRocksdb_SetGetRaw(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, RocksdbLsmKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("key1")
	v := []byte("value1")
	_, err = eg.engine.GetRaw(ctx, defaultCF, k)
	require.Equal(t, ErrNotFound, err)
	err = eg.engine.SetRaw(ctx, defaultCF, k, v)
	require.NoError(t, err)
	v1, err := eg.engine.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, v, v1)
}

func TestRocksdb_CompareAndSwap(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, RocksdbLsmKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	k := []byte("cas")
	require.NoError(t, eg.engine.CompareAndSwap(ctx, defaultCF, k, nil, []byte("1")))
	require.Equal(t, ErrCASConflict, eg.engine.CompareAndSwap(ctx, defaultCF, k, nil, []byte("2")))
	require.NoError(t, eg.engine.CompareAndSwap(ctx, defaultCF, k, []byte("1"), []byte("2")))
	v, err := eg.engine.GetRaw(ctx, defaultCF, k)
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)
}

func TestRocksdb_List(t *testing.T) {
	ctx := context.TODO()
	eg, err := newEngine(ctx, RocksdbLsmKVType, nil)
	require.NoError(t, err)
	defer eg.close()

	col1 := CF("c1")
	require.NoError(t, eg.engine.CreateColumn(col1))
	for i := 0; i < 5; i++ {
		require.NoError(t, eg.engine.SetRaw(ctx, col1, []byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, eg.engine.SetRaw(ctx, col1, []byte("x0"), []byte("x")))

	lr := eg.engine.List(ctx, col1, []byte("k"), []byte("k2"))
	defer lr.Close()
	for i := 2; i < 5; i++ {
		k, v, err := lr.ReadNextCopy()
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("k%d", i), string(k))
		require.Equal(t, fmt.Sprintf("v%d", i), string(v))
	}
	k, _, err := lr.ReadNextCopy()
	require.NoError(t, err)
	require.Nil(t, k)
}
