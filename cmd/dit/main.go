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
	"context"
	"fmt"
	"os"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/dit/index"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	showStats bool
	conf      *viper.Viper
)

var command = &cobra.Command{
	Use:   "dit",
	Short: "Directory index tracker",
	Long: `dit keeps a persistent index of a directory tree. Every file and
directory below the tracked root is recorded as an item with a stable id.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: printStats,
}

func init() {
	command.SetOut(os.Stdout)

	flags := command.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (json, yaml or toml)")
	flags.StringP("root", "r", ".", "tracked root directory")
	flags.String("store", "", "store directory, <root>/.dit by default")
	flags.String("kv-type", "", "store engine, bolt or rocksdb")
	flags.Int("concurrency", 0, "directories scanned in parallel")
	flags.StringSlice("exclude", nil, "doublestar patterns relative to the root to skip")
	flags.Int("read-dir-rate", 0, "directories read per second, 0 is unlimited")
	flags.Int("entry-rate", 0, "directory entries synced per second, 0 is unlimited")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.BoolVar(&showStats, "stats", false, "print index metrics after the command")

	command.AddCommand(
		initCmd,
		addCmd,
		statCmd,
		lsCmd,
		notImplementedCmd("status", "Show changes against the index"),
		notImplementedCmd("commit", "Record a snapshot of the index"),
		notImplementedCmd("push", "Send committed snapshots to a remote"),
	)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v, err := newConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	if err = bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	level, err := parseLogLevel(v.GetString(cfgLogLevel))
	if err != nil {
		return err
	}
	log.SetOutputLevel(level)
	conf = v
	return nil
}

// withIndex opens the configured index for the duration of fn.
func withIndex(cmd *cobra.Command, fn func(ctx context.Context, idx *index.Index) error) error {
	span, ctx := trace.StartSpanFromContext(cmd.Context(), cmd.Name())
	idx, err := index.Open(ctx, indexConfig(conf))
	if err != nil {
		span.Errorf("open index failed: %v", err)
		return err
	}
	defer idx.Close()
	return fn(ctx, idx)
}

func main() {
	if err := command.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
