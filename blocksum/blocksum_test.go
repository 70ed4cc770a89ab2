// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksum

import (
	"bytes"
	"context"
	"testing"

	"github.com/hooklift/assert"
)

func TestRollingChecksumMatchesIncrementalRoll(t *testing.T) {
	full, _, _ := rollingChecksum([]byte("abcd"))

	// Rolling the window "aabc" forward by one byte ('a' out, 'd' in) must
	// land on the same weak sum as hashing "abcd" directly.
	window := []byte("aabc")
	_, wa, wb := rollingChecksum(window)
	wa2 := (wa - uint32('a') + uint32('d')) % mod
	wb2 := (wb - uint32('a')*4 + wa2) % mod
	assert.Equals(t, full, (wb2<<16)|wa2)
}

func TestComputeEmptyReader(t *testing.T) {
	ch, err := Compute(context.Background(), bytes.NewReader(nil))
	assert.Ok(t, err)

	var blocks []Block
	for b := range ch {
		blocks = append(blocks, b)
	}
	assert.Equals(t, 0, len(blocks))
}

func TestComputeSingleShortBlock(t *testing.T) {
	data := []byte("hello world")
	ch, err := Compute(context.Background(), bytes.NewReader(data))
	assert.Ok(t, err)

	var blocks []Block
	for b := range ch {
		assert.Ok(t, b.Error)
		blocks = append(blocks, b)
	}
	assert.Equals(t, 1, len(blocks))
	assert.Equals(t, uint64(0), blocks[0].Index)
	assert.Equals(t, 64, len(blocks[0].Strong))
}

func TestComputeMultipleFullBlocks(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, BlockSize*2+10)
	ch, err := Compute(context.Background(), bytes.NewReader(data))
	assert.Ok(t, err)

	var blocks []Block
	for b := range ch {
		blocks = append(blocks, b)
	}
	assert.Equals(t, 3, len(blocks))
	assert.Equals(t, blocks[0].Weak, blocks[1].Weak) // identical full blocks of 'x'
}

func TestComputeRequiresReader(t *testing.T) {
	_, err := Compute(context.Background(), nil)
	assert.Cond(t, err != nil, "expected error for nil reader")
}

func TestTableGroupsByWeakChecksum(t *testing.T) {
	ctx := context.Background()
	data := bytes.Repeat([]byte{'y'}, BlockSize+1)
	ch, err := Compute(ctx, bytes.NewReader(data))
	assert.Ok(t, err)

	table, err := Table(ctx, ch)
	assert.Ok(t, err)
	assert.Equals(t, 2, len(table))
}
