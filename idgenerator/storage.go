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
	"encoding/binary"
	"fmt"

	"github.com/cubefs/dit/common/kvstore"
	apierrors "github.com/cubefs/dit/errors"
)

type storage struct {
	kvStore kvstore.Store
	cf      kvstore.CF
}

func (s *storage) Load(ctx context.Context) (map[string]uint64, error) {
	lr := s.kvStore.List(ctx, s.cf, nil, nil)
	defer lr.Close()

	ret := make(map[string]uint64)
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil {
			break
		}
		current, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		ret[decodeName(key)] = current
	}

	return ret, nil
}

// Get returns the stored counter of name, kvstore.ErrNotFound if there is none.
func (s *storage) Get(ctx context.Context, name string) (uint64, error) {
	v, err := s.kvStore.GetRaw(ctx, s.cf, encodeName(name))
	if err != nil {
		return 0, err
	}
	return decodeValue(v)
}

// Swap moves the counter of name from old to new. old is ignored when
// exists is false, the counter must then still be absent.
func (s *storage) Swap(ctx context.Context, name string, old uint64, exists bool, new uint64) error {
	var oldRaw []byte
	if exists {
		oldRaw = encodeValue(old)
	}
	return s.kvStore.CompareAndSwap(ctx, s.cf, encodeName(name), oldRaw, encodeValue(new))
}

func encodeName(name string) []byte {
	return []byte(name)
}

func decodeName(raw []byte) string {
	return string(raw)
}

func encodeValue(commit uint64) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, commit)
	return v
}

func decodeValue(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: counter value is %d bytes long", apierrors.ErrCorrupt, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}
