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

package proto

const (
	// RootID is the identifier reserved for the root item of every index.
	RootID = uint64(2)

	// RootParent is the parent of the root item; the root points at itself.
	RootParent = RootID
)

type (
	ItemID = uint64
	Mode   uint8
)

const (
	ModeFile Mode = iota + 1
	ModeDir
	ModeSymlink
	ModeOther
)

func (m Mode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	case ModeSymlink:
		return "symlink"
	case ModeOther:
		return "other"
	default:
		return "unknown"
	}
}

func (m Mode) valid() bool {
	return m >= ModeFile && m <= ModeOther
}

// Link is one parent-to-child mapping of the index.
type Link struct {
	Parent ItemID
	Name   string
	Child  ItemID
}
