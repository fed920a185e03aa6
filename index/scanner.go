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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/idgenerator"
	"github.com/cubefs/dit/metrics"
	"github.com/cubefs/dit/proto"
	"github.com/cubefs/dit/util/limiter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultScanConcurrency = 8

// ScanError is a filesystem failure met while scanning Path. It matches
// ErrIO and unwraps to the underlying os error.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return "scan " + e.Path + ": " + e.Err.Error()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

func (e *ScanError) Is(target error) bool {
	return target == apierrors.ErrIO
}

// ScanResult counts what a scan did. It is safe to read once Scan returned.
type ScanResult struct {
	Created  uint64
	Existing uint64
	Dirs     uint64
}

type scanResult struct {
	created  atomic.Uint64
	existing atomic.Uint64
	dirs     atomic.Uint64
}

func (r *scanResult) result() *ScanResult {
	return &ScanResult{
		Created:  r.created.Load(),
		Existing: r.existing.Load(),
		Dirs:     r.dirs.Load(),
	}
}

// errorList collects the errors of independent subtrees.
type errorList struct {
	lock sync.Mutex
	errs []error
}

func (l *errorList) add(err error) {
	l.lock.Lock()
	l.errs = append(l.errs, err)
	l.lock.Unlock()
}

func (l *errorList) err() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return errors.Join(l.errs...)
}

type scanner struct {
	store *itemStore
	ids   idgenerator.IDGenerator
	paths *pathResolver

	// absolute root path, exclude patterns are matched relative to it
	root     string
	storeDir string
	excludes []string

	// bounds the goroutines scanning subtrees beyond the caller's own
	sem     *semaphore.Weighted
	limiter limiter.Limiter
}

// Scan synchronizes the subtree full_path(parentID)/segment into the index.
// Entries already linked are kept, missing ones are created, and
// directories are descended into.
func (s *scanner) Scan(ctx context.Context, parentID uint64, segment string) (*ScanResult, error) {
	span := trace.SpanFromContextSafe(ctx)
	res := &scanResult{}

	parent, err := s.store.GetItem(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, apierrors.ErrNotDirectory
	}
	dir, err := s.paths.FullPath(ctx, parentID)
	if err != nil {
		return nil, err
	}

	components, err := splitSegment(segment)
	if err != nil {
		return nil, err
	}
	for _, name := range components {
		path := filepath.Join(dir, name)
		if s.excluded(path) {
			return nil, apierrors.ErrInvalidSegment
		}
		info, err := os.Lstat(path)
		if err != nil {
			return nil, &ScanError{Path: path, Err: err}
		}
		if !info.IsDir() {
			return nil, apierrors.ErrNotDirectory
		}
		id, _, err := s.syncEntry(ctx, parentID, path, fs.FileInfoToDirEntry(info), res)
		if err != nil {
			return nil, err
		}
		parentID, dir = id, path
	}

	span.Debugf("scan dir %s as item %d", dir, parentID)
	err = s.scanDir(ctx, parentID, dir, res)
	ret := res.result()
	span.Infof("scan %s done, created %d, existing %d, dirs %d", dir, ret.Created, ret.Existing, ret.Dirs)
	return ret, err
}

func (s *scanner) scanDir(ctx context.Context, parentID uint64, dir string, res *scanResult) error {
	span := trace.SpanFromContextSafe(ctx)
	if err := s.limiter.WaitReadDir(ctx); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		metrics.ScanErrors.Inc()
		span.Warnf("read dir %s failed: %v", dir, err)
		return &ScanError{Path: dir, Err: err}
	}
	res.dirs.Add(1)

	var (
		g    errgroup.Group
		errs errorList
	)
	for _, entry := range entries {
		if err := s.limiter.WaitEntries(ctx, 1); err != nil {
			errs.add(err)
			break
		}
		path := filepath.Join(dir, entry.Name())
		if s.excluded(path) {
			span.Debugf("skip excluded %s", path)
			continue
		}

		id, descend, err := s.syncEntry(ctx, parentID, path, entry, res)
		if err != nil {
			errs.add(err)
			if errors.Is(err, apierrors.ErrIO) {
				// only this entry's subtree is lost
				metrics.ScanErrors.Inc()
				continue
			}
			break
		}
		if !descend {
			continue
		}

		if s.sem.TryAcquire(1) {
			g.Go(func() error {
				defer s.sem.Release(1)
				if err := s.scanDir(ctx, id, path, res); err != nil {
					errs.add(err)
				}
				return nil
			})
			continue
		}
		if err := s.scanDir(ctx, id, path, res); err != nil {
			errs.add(err)
		}
	}
	g.Wait()
	return errs.err()
}

// syncEntry makes sure the entry at path is indexed under parentID and
// returns its id, and whether it is a directory to descend into.
func (s *scanner) syncEntry(ctx context.Context, parentID uint64, path string, entry fs.DirEntry, res *scanResult) (uint64, bool, error) {
	span := trace.SpanFromContextSafe(ctx)
	name := entry.Name()

	id, ok, err := s.store.LookupChild(ctx, parentID, name)
	if err != nil {
		return 0, false, err
	}
	if ok {
		res.existing.Add(1)
		if !entry.IsDir() {
			return id, false, nil
		}
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if !item.IsDir() {
			span.Warnf("%s is a directory but indexed as %s, not descending", path, item.Mode)
			return id, false, nil
		}
		return id, true, nil
	}

	info, err := entry.Info()
	if err != nil {
		span.Warnf("stat %s failed: %v", path, err)
		return 0, false, &ScanError{Path: path, Err: err}
	}
	item := &proto.Item{Parent: parentID, Name: name, Mode: modeOf(info)}
	if !item.IsDir() {
		item.Size = uint64(info.Size())
	}

	// id, record, link: a crash before the link leaves an unreachable
	// record and the entry is created again by the next scan
	if item.ID, err = s.ids.NextID(ctx); err != nil {
		return 0, false, err
	}
	if err = s.store.PutItem(ctx, item); err != nil {
		return 0, false, err
	}
	if err = s.store.PutChildMapping(ctx, parentID, name, item.ID); err != nil {
		return 0, false, err
	}

	res.created.Add(1)
	metrics.ItemsCreated.Inc()
	span.Debugf("created item %d %s, parent %d, size %d", item.ID, path, parentID, item.Size)
	return item.ID, item.IsDir(), nil
}

func (s *scanner) excluded(path string) bool {
	if path == s.storeDir {
		return true
	}
	if len(s.excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.excludes {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// splitSegment turns a relative path into its components. Absolute paths
// and paths leaving their base are rejected.
func splitSegment(segment string) ([]string, error) {
	if segment == "" {
		return nil, nil
	}
	if filepath.IsAbs(segment) || strings.HasPrefix(segment, "/") {
		return nil, apierrors.ErrInvalidSegment
	}
	clean := filepath.ToSlash(filepath.Clean(segment))
	if clean == "." {
		return nil, nil
	}
	components := strings.Split(clean, "/")
	for _, c := range components {
		if c == ".." {
			return nil, apierrors.ErrInvalidSegment
		}
	}
	return components, nil
}

func modeOf(info fs.FileInfo) proto.Mode {
	switch m := info.Mode(); {
	case m.IsDir():
		return proto.ModeDir
	case m.IsRegular():
		return proto.ModeFile
	case m&fs.ModeSymlink != 0:
		return proto.ModeSymlink
	default:
		return proto.ModeOther
	}
}
