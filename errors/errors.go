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

package errors

import "errors"

var (
	ErrItemNotFound = errors.New("item does not exist")
	ErrInvalidItem  = errors.New("invalid item")
	ErrCorrupt      = errors.New("corrupt item record")
	ErrCorruptGraph = errors.New("corrupt item graph")
	ErrIO           = errors.New("filesystem io failed")

	ErrInvalidSegment = errors.New("invalid path segment")
	ErrNotDirectory   = errors.New("item is not a directory")
	ErrRootMismatch   = errors.New("index root does not match the tracked root")

	ErrInvalidCount    = errors.New("request count is invalid")
	ErrAllocContention = errors.New("id allocation contention exceeded")

	ErrNotImplemented = errors.New("not implemented")
)

// IsNotFound reports whether err means the requested item is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// IsCorrupt reports whether err is an index integrity failure, either a bad
// record or a broken parent chain.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrCorruptGraph)
}
