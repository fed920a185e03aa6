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

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	apierrors "github.com/cubefs/dit/errors"
)

const (
	itemVersion = 1

	itemHeaderSize   = 1 + 1 + 8 + 8 + 8 + 2
	itemChecksumSize = 8
)

// Item is a file or directory of the tracked tree. The root item's name is
// the absolute path of the tracked root, every other name is one path
// segment.
type Item struct {
	ID     ItemID
	Parent ItemID
	Name   string
	Size   uint64
	Mode   Mode
}

func (i *Item) IsRoot() bool {
	return i.ID == i.Parent
}

func (i *Item) IsDir() bool {
	return i.Mode == ModeDir
}

// Validate checks the fields that the record layout depends on.
func (i *Item) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: empty name of item %d", apierrors.ErrInvalidItem, i.ID)
	}
	if len(i.Name) > math.MaxUint16 {
		return fmt.Errorf("%w: name of item %d is %d bytes long", apierrors.ErrInvalidItem, i.ID, len(i.Name))
	}
	if !i.Mode.valid() {
		return fmt.Errorf("%w: unknown mode %d of item %d", apierrors.ErrInvalidItem, i.Mode, i.ID)
	}
	return nil
}

// Marshal encodes the item as
//
//	version(1) mode(1) id(8) parent(8) size(8) nameLen(2) name checksum(8)
//
// with big-endian integers and an xxhash64 checksum over everything before it.
func (i *Item) Marshal() ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	raw := make([]byte, itemHeaderSize+len(i.Name)+itemChecksumSize)
	raw[0] = itemVersion
	raw[1] = byte(i.Mode)
	binary.BigEndian.PutUint64(raw[2:], i.ID)
	binary.BigEndian.PutUint64(raw[10:], i.Parent)
	binary.BigEndian.PutUint64(raw[18:], i.Size)
	binary.BigEndian.PutUint16(raw[26:], uint16(len(i.Name)))
	copy(raw[itemHeaderSize:], i.Name)

	body := len(raw) - itemChecksumSize
	binary.BigEndian.PutUint64(raw[body:], xxhash.Sum64(raw[:body]))
	return raw, nil
}

// Unmarshal decodes a record written by Marshal. Any deviation from the
// layout is reported as ErrCorrupt and leaves the item untouched.
func (i *Item) Unmarshal(raw []byte) error {
	if len(raw) < itemHeaderSize+itemChecksumSize {
		return fmt.Errorf("%w: record is %d bytes long", apierrors.ErrCorrupt, len(raw))
	}
	if raw[0] != itemVersion {
		return fmt.Errorf("%w: unknown record version %d", apierrors.ErrCorrupt, raw[0])
	}
	nameLen := int(binary.BigEndian.Uint16(raw[26:]))
	if len(raw) != itemHeaderSize+nameLen+itemChecksumSize {
		return fmt.Errorf("%w: name length %d does not match record length %d", apierrors.ErrCorrupt, nameLen, len(raw))
	}
	body := len(raw) - itemChecksumSize
	if sum := binary.BigEndian.Uint64(raw[body:]); sum != xxhash.Sum64(raw[:body]) {
		return fmt.Errorf("%w: checksum mismatch", apierrors.ErrCorrupt)
	}

	decoded := Item{
		Mode:   Mode(raw[1]),
		ID:     binary.BigEndian.Uint64(raw[2:]),
		Parent: binary.BigEndian.Uint64(raw[10:]),
		Size:   binary.BigEndian.Uint64(raw[18:]),
		Name:   string(raw[itemHeaderSize:body]),
	}
	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("%w: %s", apierrors.ErrCorrupt, err)
	}
	*i = decoded
	return nil
}
