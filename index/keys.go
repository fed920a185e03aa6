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
	"bytes"
	"encoding/binary"
	"fmt"

	apierrors "github.com/cubefs/dit/errors"
	"github.com/cubefs/dit/util"
)

// Keys of the data column:
//
//	item key: 'i' | id(8)                     -> item record
//	link key: 'l' | parent id(8) | '/' | name -> child id(8)
//
// The prefixes keep the two shapes apart and all links of one parent
// contiguous and ordered by name.
var (
	itemPrefix = []byte{'i'}
	linkPrefix = []byte{'l'}
	infix      = []byte{'/'}
)

const (
	itemKeySize       = 1 + 8
	linkKeyPrefixSize = 1 + 8 + 1
)

func EncodeItemKey(id uint64) []byte {
	key := make([]byte, itemKeySize)
	copy(key, itemPrefix)
	encodeIno(id, key[len(itemPrefix):])
	return key
}

func DecodeItemKey(key []byte) (uint64, error) {
	if len(key) != itemKeySize || !bytes.HasPrefix(key, itemPrefix) {
		return 0, fmt.Errorf("%w: malformed item key %x", apierrors.ErrCorrupt, key)
	}
	return decodeIno(key[len(itemPrefix):]), nil
}

func EncodeLinkKey(parent uint64, name string) []byte {
	key := make([]byte, linkKeyPrefixSize+len(name))
	encodeLinkKeyPrefix(parent, key)
	copy(key[linkKeyPrefixSize:], util.StringsToBytes(name))
	return key
}

func EncodeLinkKeyPrefix(parent uint64) []byte {
	keyPrefix := make([]byte, linkKeyPrefixSize)
	encodeLinkKeyPrefix(parent, keyPrefix)
	return keyPrefix
}

// DecodeLinkKey splits a link key. The returned name shares key's memory.
func DecodeLinkKey(key []byte) (parent uint64, name string, err error) {
	if len(key) <= linkKeyPrefixSize || !bytes.HasPrefix(key, linkPrefix) ||
		!bytes.Equal(key[linkKeyPrefixSize-len(infix):linkKeyPrefixSize], infix) {
		return 0, "", fmt.Errorf("%w: malformed link key %x", apierrors.ErrCorrupt, key)
	}
	parent = decodeIno(key[len(linkPrefix):])
	name = util.BytesToString(key[linkKeyPrefixSize:])
	return
}

func encodeLinkKeyPrefix(parent uint64, raw []byte) {
	copy(raw, linkPrefix)
	encodeIno(parent, raw[len(linkPrefix):])
	copy(raw[len(linkPrefix)+8:], infix)
}

func encodeIno(ino uint64, raw []byte) {
	binary.BigEndian.PutUint64(raw, ino)
}

func decodeIno(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw)
}
