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
	"strconv"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/dit/common/kvstore"
	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/idgenerator"
	"github.com/cubefs/dit/metrics"
	"github.com/cubefs/dit/proto"
	"github.com/cubefs/dit/util/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// ItemScope names the counter item identifiers are drawn from.
const ItemScope = "item"

// Index is the persistent item tree of one tracked root.
type Index struct {
	cfg  Config
	root *proto.Item

	kvStore kvstore.Store
	store   *itemStore
	ids     idgenerator.IDGenerator
	paths   *pathResolver
	scanner *scanner

	scanGroup singleflight.Group
	// scans of overlapping subtrees would both create missing entries
	scanLock  sync.Mutex
	closeOnce sync.Once
}

// Open opens the index of cfg.Root, creating the store and the root item on
// first use. Opening an existing index reuses its root.
func Open(ctx context.Context, cfg *Config) (*Index, error) {
	span, ctx := trace.StartSpanFromContext(ctx, "OpenIndex")

	c := *cfg
	c.KVOption.ColumnFamily = append([]kvstore.CF(nil), cfg.KVOption.ColumnFamily...)
	if err := c.checkAndFix(); err != nil {
		return nil, err
	}

	kvStore, err := kvstore.NewKVStore(ctx, c.StorePath, c.KVType, &c.KVOption)
	if err != nil {
		span.Errorf("open %s store at %s failed: %v", c.KVType, c.StorePath, err)
		return nil, errors.Info(err, "open kv store failed").Detail(err)
	}
	for _, col := range []kvstore.CF{dataCF, idCF} {
		if err := kvStore.CreateColumn(col); err != nil {
			kvStore.Close()
			return nil, errors.Info(err, "create column failed").Detail(err)
		}
	}

	ids, err := idgenerator.NewIDGenerator(ctx, kvStore, idCF, ItemScope, proto.RootID)
	if err != nil {
		kvStore.Close()
		return nil, err
	}

	store, err := newItemStore(kvStore, c.ItemCacheSize)
	if err != nil {
		kvStore.Close()
		return nil, err
	}
	paths := &pathResolver{store: store, maxDepth: c.MaxDepth}
	idx := &Index{
		cfg:     c,
		kvStore: kvStore,
		store:   store,
		ids:     ids,
		paths:   paths,
		scanner: &scanner{
			store:    store,
			ids:      ids,
			paths:    paths,
			root:     c.Root,
			storeDir: c.StorePath,
			excludes: c.Excludes,
			sem:      semaphore.NewWeighted(int64(c.ScanConcurrency)),
			limiter:  limiter.NewLimiter(c.ScanLimit),
		},
	}
	if err := idx.ensureRoot(ctx); err != nil {
		kvStore.Close()
		return nil, err
	}
	span.Infof("index of %s opened, store %s", c.Root, c.StorePath)
	return idx, nil
}

func (idx *Index) ensureRoot(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)
	root := &proto.Item{
		ID:     proto.RootID,
		Parent: proto.RootParent,
		Name:   idx.cfg.Root,
		Mode:   proto.ModeDir,
	}

	err := idx.store.CreateItem(ctx, root)
	switch err {
	case nil:
		span.Infof("created root item %d for %s", root.ID, root.Name)
	case kvstore.ErrCASConflict:
		if root, err = idx.store.GetItem(ctx, proto.RootID); err != nil {
			return err
		}
		if !root.IsRoot() {
			span.Errorf("item %d is not a root, parent %d", root.ID, root.Parent)
			return apierrors.ErrCorruptGraph
		}
		if root.Name != idx.cfg.Root {
			span.Errorf("index root is %s, not %s", root.Name, idx.cfg.Root)
			return apierrors.ErrRootMismatch
		}
	default:
		return err
	}
	idx.root = root
	return nil
}

// Root returns a copy of the root item.
func (idx *Index) Root() *proto.Item {
	root := *idx.root
	return &root
}

func (idx *Index) Config() Config {
	return idx.cfg
}

// ScanLimiter returns the throttle of scans, its rates may be changed while
// scans run.
func (idx *Index) ScanLimiter() limiter.Limiter {
	return idx.scanner.limiter
}

func (idx *Index) IDGenerator() idgenerator.IDGenerator {
	return idx.ids
}

func (idx *Index) GetItem(ctx context.Context, id uint64) (*proto.Item, error) {
	return idx.store.GetItem(ctx, id)
}

func (idx *Index) FullPath(ctx context.Context, id uint64) (string, error) {
	return idx.paths.FullPath(ctx, id)
}

func (idx *Index) LookupChild(ctx context.Context, parent uint64, name string) (uint64, bool, error) {
	return idx.store.LookupChild(ctx, parent, name)
}

func (idx *Index) ListChildren(ctx context.Context, parent uint64, marker string, limit int) ([]proto.Link, error) {
	return idx.store.ListChildren(ctx, parent, marker, limit)
}

func (idx *Index) CountItems(ctx context.Context) (uint64, error) {
	return idx.store.CountItems(ctx)
}

// Scan indexes the directory full_path(parent)/segment. Concurrent scans of
// the same target share one run and its result.
func (idx *Index) Scan(ctx context.Context, parent uint64, segment string) (*ScanResult, error) {
	span, ctx := trace.StartSpanFromContext(ctx, "Scan")
	timer := prometheus.NewTimer(metrics.ScanDuration)
	defer timer.ObserveDuration()

	key := strconv.FormatUint(parent, 10) + "/" + segment
	v, err, shared := idx.scanGroup.Do(key, func() (interface{}, error) {
		idx.scanLock.Lock()
		defer idx.scanLock.Unlock()
		return idx.scanner.Scan(ctx, parent, segment)
	})
	if shared {
		span.Debugf("scan %s shared with a concurrent caller", key)
	}
	ret, _ := v.(*ScanResult)
	return ret, err
}

func (idx *Index) Close() {
	idx.closeOnce.Do(idx.kvStore.Close)
}
