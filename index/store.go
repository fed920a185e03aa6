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

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/dit/common/kvstore"
	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/proto"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	dataCF = kvstore.CF("data")
	idCF   = kvstore.CF("id")

	defaultItemCacheSize = 1 << 14
)

// itemStore keeps item records and parent links in the data column.
type itemStore struct {
	kvStore kvstore.Store
	// records read or written through this store, copied in and out
	cache *lru.Cache[uint64, proto.Item]
}

func newItemStore(kvStore kvstore.Store, cacheSize int) (*itemStore, error) {
	cache, err := lru.New[uint64, proto.Item](cacheSize)
	if err != nil {
		return nil, err
	}
	return &itemStore{kvStore: kvStore, cache: cache}, nil
}

func (s *itemStore) GetItem(ctx context.Context, id uint64) (*proto.Item, error) {
	if item, ok := s.cache.Get(id); ok {
		return &item, nil
	}

	span := trace.SpanFromContextSafe(ctx)
	data, err := s.kvStore.GetRaw(ctx, dataCF, EncodeItemKey(id))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, apierrors.ErrItemNotFound
		}
		return nil, errors.Info(err, "get item failed").Detail(err)
	}

	item := &proto.Item{}
	if err := item.Unmarshal(data); err != nil {
		span.Errorf("unmarshal item %d failed: %v", id, err)
		return nil, err
	}
	if item.ID != id {
		span.Errorf("item key %d holds record of item %d", id, item.ID)
		return nil, fmt.Errorf("%w: key %d holds item %d", apierrors.ErrCorrupt, id, item.ID)
	}
	s.cache.Add(id, *item)
	return item, nil
}

func (s *itemStore) PutItem(ctx context.Context, item *proto.Item) error {
	data, err := item.Marshal()
	if err != nil {
		return err
	}
	if err := s.kvStore.SetRaw(ctx, dataCF, EncodeItemKey(item.ID), data); err != nil {
		s.cache.Remove(item.ID)
		return errors.Info(err, "put item failed").Detail(err)
	}
	s.cache.Add(item.ID, *item)
	return nil
}

// CreateItem inserts item only if no record exists for its id. It returns
// kvstore.ErrCASConflict when one does.
func (s *itemStore) CreateItem(ctx context.Context, item *proto.Item) error {
	data, err := item.Marshal()
	if err != nil {
		return err
	}
	err = s.kvStore.CompareAndSwap(ctx, dataCF, EncodeItemKey(item.ID), nil, data)
	switch err {
	case nil:
		s.cache.Add(item.ID, *item)
		return nil
	case kvstore.ErrCASConflict:
		return err
	default:
		return errors.Info(err, "create item failed").Detail(err)
	}
}

func (s *itemStore) PutChildMapping(ctx context.Context, parent uint64, name string, id uint64) error {
	value := make([]byte, 8)
	encodeIno(id, value)
	if err := s.kvStore.SetRaw(ctx, dataCF, EncodeLinkKey(parent, name), value); err != nil {
		return errors.Info(err, "put link failed").Detail(err)
	}
	return nil
}

func (s *itemStore) LookupChild(ctx context.Context, parent uint64, name string) (uint64, bool, error) {
	value, err := s.kvStore.GetRaw(ctx, dataCF, EncodeLinkKey(parent, name))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, errors.Info(err, "get link failed").Detail(err)
	}
	id, err := decodeLinkValue(value)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ListChildren returns up to limit links of parent in name order, starting
// at the first name not less than marker. A limit <= 0 lists all of them.
func (s *itemStore) ListChildren(ctx context.Context, parent uint64, marker string, limit int) (ret []proto.Link, err error) {
	prefix := EncodeLinkKeyPrefix(parent)
	var start []byte
	if marker != "" {
		start = EncodeLinkKey(parent, marker)
	}

	lr := s.kvStore.List(ctx, dataCF, prefix, start)
	defer lr.Close()
	for limit <= 0 || len(ret) < limit {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, errors.Info(err, "read next link failed").Detail(err)
		}
		if key == nil {
			break
		}

		_, name, err := DecodeLinkKey(key)
		if err != nil {
			return nil, err
		}
		child, err := decodeLinkValue(value)
		if err != nil {
			return nil, err
		}
		ret = append(ret, proto.Link{Parent: parent, Name: name, Child: child})
	}
	return ret, nil
}

func (s *itemStore) CountItems(ctx context.Context) (n uint64, err error) {
	lr := s.kvStore.List(ctx, dataCF, itemPrefix, nil)
	defer lr.Close()
	for {
		key, _, err := lr.ReadNextCopy()
		if err != nil {
			return 0, errors.Info(err, "read next item failed").Detail(err)
		}
		if key == nil {
			return n, nil
		}
		n++
	}
}

func decodeLinkValue(value []byte) (uint64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("%w: link value is %d bytes long", apierrors.ErrCorrupt, len(value))
	}
	return decodeIno(value), nil
}
