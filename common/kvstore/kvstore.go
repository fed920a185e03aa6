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
	"errors"
	"time"
)

const (
	defaultCF = "default"

	BoltKVType       = KVType("bolt")
	RocksdbLsmKVType = KVType("rocksdb")

	FIFOStyle      = CompactionStyle("fifo")
	LevelStyle     = CompactionStyle("level")
	UniversalStyle = CompactionStyle("universal")
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrKVTypeNotFound = errors.New("kv type not found")
	ErrCASConflict    = errors.New("compare and swap conflict")
	ErrEmptyPath      = errors.New("path is empty")
)

type (
	CF              string
	KVType          string
	CompactionStyle string

	// Store is an ordered byte-key to byte-value mapping split into columns.
	// Keys of one column are iterated in byte order.
	Store interface {
		CreateColumn(col CF) error
		GetAllColumns() []CF
		CheckColumns(col CF) bool
		GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error)
		SetRaw(ctx context.Context, col CF, key []byte, value []byte) error
		// CompareAndSwap atomically replaces the value of key with new if its
		// current value equals old. A nil old requires the key to be absent.
		// ErrCASConflict is returned when the current value differs.
		CompareAndSwap(ctx context.Context, col CF, key []byte, old, new []byte) error
		List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader
		Close()
	}
	ListReader interface {
		// ReadNextCopy returns the next pair under the prefix, nil key at the end.
		ReadNextCopy() (key []byte, value []byte, err error)
		Close()
	}

	Option struct {
		Sync            bool          `json:"sync"`
		CreateIfMissing bool          `json:"create_if_missing"`
		ColumnFamily    []CF          `json:"column_family"`
		LockTimeout     time.Duration `json:"lock_timeout"`

		BlockSize                int             `json:"block_size"`
		BlockCache               uint64          `json:"block_cache"`
		MaxOpenFiles             int             `json:"max_open_files"`
		WriteBufferSize          int             `json:"write_buffer_size"`
		MaxBackgroundCompactions int             `json:"max_background_compactions"`
		KeepLogFileNum           int             `json:"keep_log_file_num"`
		MaxLogFileSize           int             `json:"max_log_file_size"`
		CompactionStyle          CompactionStyle `json:"compaction_style"`
	}
)

func NewKVStore(ctx context.Context, path string, kvType KVType, option *Option) (Store, error) {
	if option == nil {
		option = &Option{CreateIfMissing: true}
	}
	switch kvType {
	case BoltKVType, "":
		return newBolt(ctx, path, option)
	case RocksdbLsmKVType:
		return newRocksdb(ctx, path, option)
	default:
		return nil, ErrKVTypeNotFound
	}
}

func (cf CF) String() string {
	return string(cf)
}
