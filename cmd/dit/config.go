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

package main

import (
	"fmt"
	"strings"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/dit/common/kvstore"
	"github.com/cubefs/dit/index"
	"github.com/cubefs/dit/util/limiter"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "DIT"

	cfgRoot            = "root"
	cfgStorePath       = "store_path"
	cfgKVType          = "kv_type"
	cfgScanConcurrency = "scan_concurrency"
	cfgMaxDepth        = "max_depth"
	cfgItemCacheSize   = "item_cache_size"
	cfgExcludes        = "excludes"
	cfgReadDirRate     = "scan_limit.read_dir_per_second"
	cfgEntryRate       = "scan_limit.entries_per_second"
	cfgLogLevel        = "log_level"
)

func newConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault(cfgRoot, ".")
	v.SetDefault(cfgKVType, string(kvstore.BoltKVType))
	v.SetDefault(cfgLogLevel, "warn")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// bindFlags lets command line flags override the file and the environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		cfgRoot:            "root",
		cfgStorePath:       "store",
		cfgKVType:          "kv-type",
		cfgScanConcurrency: "concurrency",
		cfgExcludes:        "exclude",
		cfgReadDirRate:     "read-dir-rate",
		cfgEntryRate:       "entry-rate",
		cfgLogLevel:        "log-level",
	} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexConfig(v *viper.Viper) *index.Config {
	return &index.Config{
		Root:            v.GetString(cfgRoot),
		StorePath:       v.GetString(cfgStorePath),
		KVType:          kvstore.KVType(v.GetString(cfgKVType)),
		ScanConcurrency: v.GetInt(cfgScanConcurrency),
		MaxDepth:        v.GetInt(cfgMaxDepth),
		ItemCacheSize:   v.GetInt(cfgItemCacheSize),
		Excludes:        v.GetStringSlice(cfgExcludes),
		ScanLimit: limiter.LimitConfig{
			ReadDirPerSecond: v.GetInt(cfgReadDirRate),
			EntriesPerSecond: v.GetInt(cfgEntryRate),
		},
	}
}

func parseLogLevel(level string) (log.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.Ldebug, nil
	case "info":
		return log.Linfo, nil
	case "warn", "warning":
		return log.Lwarn, nil
	case "error":
		return log.Lerror, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
