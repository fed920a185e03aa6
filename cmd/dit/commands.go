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
	"path/filepath"
	"strconv"
	"strings"

	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/index"
	"github.com/cubefs/dit/metrics"
	"github.com/cubefs/dit/proto"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the index of the root, or open an existing one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withIndex(cmd, func(ctx context.Context, idx *index.Index) error {
			n, err := idx.CountItems(ctx)
			if err != nil {
				return err
			}
			root := idx.Root()
			cmd.Printf("index of %s at %s\n", root.Name, idx.Config().StorePath)
			cmd.Printf("root item %d, %d items\n", root.ID, n)
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Index the root, or a directory below it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndex(cmd, func(ctx context.Context, idx *index.Index) error {
			segment := ""
			if len(args) > 0 {
				var err error
				if segment, err = relativeSegment(idx.Root().Name, args[0]); err != nil {
					return err
				}
			}
			ret, err := idx.Scan(ctx, proto.RootID, segment)
			if ret != nil {
				cmd.Printf("created %d, existing %d, directories %d\n", ret.Created, ret.Existing, ret.Dirs)
			}
			return err
		})
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <id>",
	Short: "Show an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withIndex(cmd, func(ctx context.Context, idx *index.Index) error {
			item, err := idx.GetItem(ctx, id)
			if err != nil {
				return err
			}
			path, err := idx.FullPath(ctx, id)
			if err != nil {
				return err
			}
			cmd.Printf("id:     %d\n", item.ID)
			cmd.Printf("parent: %d\n", item.Parent)
			cmd.Printf("mode:   %s\n", item.Mode)
			cmd.Printf("size:   %s (%d)\n", humanize.IBytes(item.Size), item.Size)
			cmd.Printf("path:   %s\n", path)
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [id]",
	Short: "List the children of a directory item",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := proto.RootID
		if len(args) > 0 {
			var err error
			if id, err = parseID(args[0]); err != nil {
				return err
			}
		}
		return withIndex(cmd, func(ctx context.Context, idx *index.Index) error {
			links, err := idx.ListChildren(ctx, id, "", 0)
			if err != nil {
				return err
			}

			out := tablewriter.NewWriter(cmd.OutOrStdout())
			out.SetHeader([]string{"ID", "Mode", "Size", "Name"})
			out.SetAutoWrapText(false)
			for _, link := range links {
				item, err := idx.GetItem(ctx, link.Child)
				if err != nil {
					return err
				}
				out.Append([]string{
					strconv.FormatUint(item.ID, 10),
					item.Mode.String(),
					humanize.IBytes(item.Size),
					link.Name,
				})
			}
			out.Render()
			return nil
		})
	},
}

func notImplementedCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(*cobra.Command, []string) error {
			return apierrors.ErrNotImplemented
		},
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

// relativeSegment turns path into a segment below root. Relative paths are
// taken relative to the root already.
func relativeSegment(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of %s: %w", path, root, apierrors.ErrInvalidSegment)
	}
	return rel, nil
}

func printStats(cmd *cobra.Command, _ []string) error {
	if !showStats {
		return nil
	}
	families, err := metrics.Registry.Gather()
	if err != nil {
		return err
	}

	out := tablewriter.NewWriter(cmd.OutOrStdout())
	out.SetHeader([]string{"Metric", "Labels", "Value"})
	out.SetAutoWrapText(false)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64)
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("count %d, sum %.3fs", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			out.Append([]string{mf.GetName(), strings.Join(labels, ","), value})
		}
	}
	out.Render()
	return nil
}
