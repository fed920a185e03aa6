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
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	rdb "github.com/tecbot/gorocksdb"
)

const keyLocksNum = 1024

type (
	rocksdb struct {
		path         string
		db           *rdb.DB
		opt          *rdb.Options
		readOpt      *rdb.ReadOptions
		writeOpt     *rdb.WriteOptions
		syncWriteOpt *rdb.WriteOptions
		cfHandles    map[CF]*rdb.ColumnFamilyHandle
		lock         sync.RWMutex

		// serializes CompareAndSwap per key; rocksdb's LOCK file already
		// restricts a database to the process holding this handle
		keyLocks [keyLocksNum]sync.Mutex
	}
	rocksdbListReader struct {
		iterator *rdb.Iterator
		prefix   []byte
		isFirst  bool
	}
)

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	err := os.MkdirAll(path, 0o755)
	if err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	cfNum := len(option.ColumnFamily) + 1
	cols := make([]CF, 0, cfNum)
	cols = append(cols, defaultCF)
	cols = append(cols, option.ColumnFamily...)

	cfNames := make([]string, 0, cfNum)
	cfOpts := make([]*rdb.Options, 0, cfNum)
	for i := 0; i < cfNum; i++ {
		cfNames = append(cfNames, cols[i].String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		return nil, err
	}

	cfhMap := make(map[CF]*rdb.ColumnFamilyHandle)
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	if option.Sync {
		wo.SetSync(option.Sync)
	}
	swo := rdb.NewDefaultWriteOptions()
	swo.SetSync(true)

	ins := &rocksdb{
		db:           db,
		path:         path,
		opt:          dbOpt,
		readOpt:      rdb.NewDefaultReadOptions(),
		writeOpt:     wo,
		syncWriteOpt: swo,
		cfHandles:    cfhMap,
	}
	return ins, nil
}

func (lr *rocksdbListReader) ReadNextCopy() (key []byte, value []byte, err error) {
	if lr.isFirst {
		lr.isFirst = false
	} else {
		lr.iterator.Next()
	}
	if err = lr.iterator.Err(); err != nil {
		return nil, nil, err
	}
	if !lr.iterator.Valid() {
		return nil, nil, nil
	}
	if lr.prefix != nil && !lr.iterator.ValidForPrefix(lr.prefix) {
		return nil, nil, nil
	}

	kg := lr.iterator.Key()
	vg := lr.iterator.Value()
	key = make([]byte, kg.Size())
	value = make([]byte, vg.Size())
	copy(key, kg.Data())
	copy(value, vg.Data())
	kg.Free()
	vg.Free()
	return
}

func (lr *rocksdbListReader) Close() {
	lr.iterator.Close()
}

func (s *rocksdb) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cfHandles[col] != nil {
		return nil
	}
	h, err := s.db.CreateColumnFamily(s.opt, col.String())
	if err != nil {
		return err
	}
	s.cfHandles[col] = h
	return nil
}

func (s *rocksdb) GetAllColumns() (ret []CF) {
	s.lock.RLock()
	for col := range s.cfHandles {
		ret = append(ret, col)
	}
	s.lock.RUnlock()
	return
}

func (s *rocksdb) CheckColumns(col CF) bool {
	if col == "" {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.cfHandles[col]
	return ok
}

func (s *rocksdb) GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error) {
	var v *rdb.Slice
	cf := s.getColumnFamily(col)
	if v, err = s.db.GetCF(s.readOpt, cf, key); err != nil {
		return nil, err
	}
	if !v.Exists() {
		return nil, ErrNotFound
	}
	value = make([]byte, v.Size())
	copy(value, v.Data())
	v.Free()
	return value, nil
}

func (s *rocksdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	cf := s.getColumnFamily(col)
	return s.db.PutCF(s.writeOpt, cf, key, value)
}

func (s *rocksdb) CompareAndSwap(ctx context.Context, col CF, key []byte, old, new []byte) error {
	cf := s.getColumnFamily(col)
	l := s.getKeyLock(key)
	l.Lock()
	defer l.Unlock()

	v, err := s.db.GetCF(s.readOpt, cf, key)
	if err != nil {
		return err
	}
	exists := v.Exists()
	matched := (old == nil && !exists) || (old != nil && exists && bytes.Equal(old, v.Data()))
	v.Free()
	if !matched {
		return ErrCASConflict
	}
	return s.db.PutCF(s.syncWriteOpt, cf, key, new)
}

func (s *rocksdb) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	cf := s.getColumnFamily(col)
	t := s.db.NewIteratorCF(s.readOpt, cf)
	switch {
	case len(marker) > 0:
		t.Seek(marker)
	case prefix != nil:
		t.Seek(prefix)
	default:
		t.SeekToFirst()
	}

	return &rocksdbListReader{
		iterator: t,
		prefix:   prefix,
		isFirst:  true,
	}
}

func (s *rocksdb) Close() {
	s.writeOpt.Destroy()
	s.syncWriteOpt.Destroy()
	s.readOpt.Destroy()
	s.opt.Destroy()
	for i := range s.cfHandles {
		s.cfHandles[i].Destroy()
	}
	s.db.Close()
}

func (s *rocksdb) getKeyLock(key []byte) *sync.Mutex {
	return &s.keyLocks[xxhash.Sum64(key)%keyLocksNum]
}

func (s *rocksdb) getColumnFamily(col CF) *rdb.ColumnFamilyHandle {
	if col == "" {
		col = defaultCF
	}
	s.lock.RLock()
	cf, ok := s.cfHandles[col]
	if !ok {
		s.lock.RUnlock()
		panic(fmt.Sprintf("col:%s not exist", col.String()))
	}
	s.lock.RUnlock()
	return cf
}

func genRocksdbOpts(opt *Option) (opts *rdb.Options) {
	opts = rdb.NewDefaultOptions()
	blockBaseOpt := rdb.NewDefaultBlockBasedTableOptions()
	opts.SetCreateIfMissing(opt.CreateIfMissing)
	if opt.BlockSize > 0 {
		blockBaseOpt.SetBlockSize(opt.BlockSize)
	}
	if opt.BlockCache > 0 {
		blockBaseOpt.SetBlockCache(rdb.NewLRUCache(opt.BlockCache))
	}
	if opt.MaxBackgroundCompactions > 0 {
		opts.SetMaxBackgroundCompactions(opt.MaxBackgroundCompactions)
	}
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}
	if opt.KeepLogFileNum > 0 {
		opts.SetKeepLogFileNum(opt.KeepLogFileNum)
	}
	if opt.MaxLogFileSize > 0 {
		opts.SetMaxLogFileSize(opt.MaxLogFileSize)
	}
	switch opt.CompactionStyle {
	case FIFOStyle:
		opts.SetCompactionStyle(rdb.FIFOCompactionStyle)
	case LevelStyle:
		opts.SetCompactionStyle(rdb.LevelCompactionStyle)
	case UniversalStyle:
		opts.SetCompactionStyle(rdb.UniversalCompactionStyle)
	default:
	}

	opts.SetStatsDumpPeriodSec(0)
	opts.SetBlockBasedTableFactory(blockBaseOpt)
	opts.SetCreateIfMissingColumnFamilies(true)

	return
}
