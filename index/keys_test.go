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
	"testing"

	apierrors "github.com/cubefs/dit/errors"
	"github.com/stretchr/testify/require"
)

func TestItemKey(t *testing.T) {
	for _, id := range []uint64{0, 2, 3, 1 << 32, 1<<64 - 1} {
		key := EncodeItemKey(id)
		decoded, err := DecodeItemKey(key)
		require.NoError(t, err)
		require.Equal(t, id, decoded)
	}

	_, err := DecodeItemKey([]byte("i123"))
	require.ErrorIs(t, err, apierrors.ErrCorrupt)
	_, err = DecodeItemKey(EncodeLinkKeyPrefix(3)[:itemKeySize])
	require.ErrorIs(t, err, apierrors.ErrCorrupt)
}

func TestLinkKey(t *testing.T) {
	cases := []struct {
		parent uint64
		name   string
	}{
		{2, "a.txt"},
		{1<<64 - 1, "with/slash"},
		{3, "ünïcode"},
	}
	for _, c := range cases {
		key := EncodeLinkKey(c.parent, c.name)
		require.True(t, len(key) > linkKeyPrefixSize)
		parent, name, err := DecodeLinkKey(key)
		require.NoError(t, err)
		require.Equal(t, c.parent, parent)
		require.Equal(t, c.name, name)
		require.Equal(t, EncodeLinkKeyPrefix(c.parent), key[:linkKeyPrefixSize])
	}

	_, _, err := DecodeLinkKey(EncodeLinkKeyPrefix(2))
	require.ErrorIs(t, err, apierrors.ErrCorrupt)
	_, _, err = DecodeLinkKey(EncodeItemKey(2))
	require.ErrorIs(t, err, apierrors.ErrCorrupt)
}

func TestKeyShapesDoNotCollide(t *testing.T) {
	// an item key and a link key never share a first byte
	require.NotEqual(t, EncodeItemKey(2)[0], EncodeLinkKey(2, "x")[0])

	// links of one parent never bleed into the next parent's prefix
	require.NotEqual(t, EncodeLinkKeyPrefix(2), EncodeLinkKey(3, "")[:linkKeyPrefixSize])
	require.Less(t, string(EncodeLinkKey(2, "\xff\xff")), string(EncodeLinkKeyPrefix(3)))
}
