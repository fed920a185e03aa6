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
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"
)

const (
	boltFileName = "index.db"

	boltListPageSize = 256
)

type (
	boltdb struct {
		path string
		db   *bbolt.DB

		lock sync.RWMutex
		cols map[CF]struct{}
	}
	boltListReader struct {
		s      *boltdb
		col    CF
		prefix []byte
		// next position to seek to, nil once exhausted
		seek      []byte
		inclusive bool
		pending   [][2][]byte
		err       error
	}
)

func newBolt(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	file := filepath.Join(path, boltFileName)
	if !option.CreateIfMissing {
		if _, err := os.Stat(file); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	opts := *bbolt.DefaultOptions
	opts.NoStatistics = true
	if option.LockTimeout > 0 {
		opts.Timeout = option.LockTimeout
	}
	db, err := bbolt.Open(file, 0o600, &opts)
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt at %s: %w", file, err)
	}

	s := &boltdb{path: path, db: db, cols: make(map[CF]struct{})}
	cols := append([]CF{defaultCF}, option.ColumnFamily...)
	for _, col := range cols {
		if err := s.CreateColumn(col); err != nil {
			db.Close()
			return nil, err
		}
	}
	// columns created by earlier sessions
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			s.cols[CF(name)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *boltdb) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.cols[col]; ok {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(col))
		return err
	})
	if err != nil {
		return fmt.Errorf("can't create column %s: %w", col, err)
	}
	s.cols[col] = struct{}{}
	return nil
}

func (s *boltdb) GetAllColumns() (ret []CF) {
	s.lock.RLock()
	for col := range s.cols {
		ret = append(ret, col)
	}
	s.lock.RUnlock()
	return
}

func (s *boltdb) CheckColumns(col CF) bool {
	if col == "" {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.cols[col]
	return ok
}

func (s *boltdb) GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := s.bucket(tx, col).Get(key)
		if v == nil {
			return ErrNotFound
		}
		value = bytes.Clone(v)
		return nil
	})
	return
}

func (s *boltdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.bucket(tx, col).Put(key, value)
	})
}

func (s *boltdb) CompareAndSwap(ctx context.Context, col CF, key []byte, old, new []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := s.bucket(tx, col)
		cur := b.Get(key)
		if old == nil {
			if cur != nil {
				return ErrCASConflict
			}
		} else if cur == nil || !bytes.Equal(cur, old) {
			return ErrCASConflict
		}
		return b.Put(key, new)
	})
}

func (s *boltdb) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	seek := marker
	if len(seek) == 0 {
		seek = prefix
	}
	if seek == nil {
		seek = []byte{}
	}
	return &boltListReader{s: s, col: col, prefix: prefix, seek: seek, inclusive: true}
}

func (s *boltdb) Close() {
	s.db.Close()
}

func (s *boltdb) bucket(tx *bbolt.Tx, col CF) *bbolt.Bucket {
	if col == "" {
		col = defaultCF
	}
	b := tx.Bucket([]byte(col))
	if b == nil {
		panic(fmt.Sprintf("col:%s not exist", col.String()))
	}
	return b
}

func (lr *boltListReader) ReadNextCopy() (key []byte, value []byte, err error) {
	if lr.err != nil {
		return nil, nil, lr.err
	}
	if len(lr.pending) == 0 && lr.seek != nil {
		if lr.err = lr.fill(); lr.err != nil {
			return nil, nil, lr.err
		}
	}
	if len(lr.pending) == 0 {
		return nil, nil, nil
	}
	kv := lr.pending[0]
	lr.pending = lr.pending[1:]
	return kv[0], kv[1], nil
}

// fill loads the next page in its own read transaction so that a slow
// consumer never pins a bbolt transaction.
func (lr *boltListReader) fill() error {
	return lr.s.db.View(func(tx *bbolt.Tx) error {
		c := lr.s.bucket(tx, lr.col).Cursor()
		k, v := c.Seek(lr.seek)
		if !lr.inclusive && k != nil && bytes.Equal(k, lr.seek) {
			k, v = c.Next()
		}
		for ; k != nil; k, v = c.Next() {
			if lr.prefix != nil && !bytes.HasPrefix(k, lr.prefix) {
				break
			}
			if len(lr.pending) == boltListPageSize {
				lr.seek = bytes.Clone(lr.pending[len(lr.pending)-1][0])
				lr.inclusive = false
				return nil
			}
			lr.pending = append(lr.pending, [2][]byte{bytes.Clone(k), bytes.Clone(v)})
		}
		lr.seek = nil
		return nil
	})
}

func (lr *boltListReader) Close() {
	lr.pending = nil
	lr.seek = nil
}
