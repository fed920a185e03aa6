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
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/dit/common/kvstore"
	"github.com/cubefs/dit/util/limiter"
)

// DefaultStoreDir is where the store lives below the tracked root unless
// configured otherwise.
const DefaultStoreDir = ".dit"

type Config struct {
	// Root is the tracked directory, the name of the root item.
	Root            string         `json:"root"`
	StorePath       string         `json:"store_path"`
	KVType          kvstore.KVType `json:"kv_type"`
	KVOption        kvstore.Option `json:"kv_option"`
	ScanConcurrency int            `json:"scan_concurrency"`
	MaxDepth        int            `json:"max_depth"`
	ItemCacheSize   int            `json:"item_cache_size"`
	// ScanLimit throttles directory reads and synced entries, zero is
	// unlimited.
	ScanLimit limiter.LimitConfig `json:"scan_limit"`
	// Excludes are doublestar patterns over slash separated paths relative
	// to Root.
	Excludes []string `json:"excludes"`
}

func (cfg *Config) checkAndFix() error {
	if cfg.Root == "" {
		return errors.New("root is empty")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return errors.Info(err, "resolve root failed").Detail(err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return errors.Info(err, "stat root failed").Detail(err)
	}
	if !info.IsDir() {
		return errors.New("root is not a directory")
	}
	cfg.Root = root

	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(root, DefaultStoreDir)
	}
	if cfg.StorePath, err = filepath.Abs(cfg.StorePath); err != nil {
		return errors.Info(err, "resolve store path failed").Detail(err)
	}
	if cfg.KVType == "" {
		cfg.KVType = kvstore.BoltKVType
	}
	cfg.KVOption.CreateIfMissing = true
	for _, col := range []kvstore.CF{dataCF, idCF} {
		if !containsCF(cfg.KVOption.ColumnFamily, col) {
			cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, col)
		}
	}

	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = defaultScanConcurrency
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.ItemCacheSize <= 0 {
		cfg.ItemCacheSize = defaultItemCacheSize
	}
	for _, pattern := range cfg.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return errors.New("invalid exclude pattern: " + pattern)
		}
	}
	return nil
}

func containsCF(cols []kvstore.CF, col kvstore.CF) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
