// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blocksum implements the rsync-style rolling and strong block
// checksums used to detect which blocks of a file are already present at
// the destination.
package blocksum

import (
	"context"
	"encoding/hex"
	"io"

	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

const (
	// BlockSize is the fixed size of a checksummed block, 1 MiB.
	BlockSize = 0x100000

	// mod is the modulus applied to each half of the rolling checksum.
	mod = 1 << 16
)

// Block holds the checksums computed for one block of a file, or an error
// encountered while reading it.
type Block struct {
	// Index is the block's position in the file, counting from zero.
	Index uint64
	// Weak is the Adler-style rolling checksum of the block.
	Weak uint32
	// Strong is the lowercase hex SHA-256 digest of the block.
	Strong string
	// Error reports a failure reading this block. The caller decides
	// whether to keep draining the channel or bail out.
	Error error
}

// LookupTable maps a weak checksum to every block that produced it.
// Collisions are expected and resolved by comparing strong checksums.
type LookupTable map[uint32][]Block

// rollingChecksum computes the Adler-style weak checksum of block, returning
// the packed 32-bit value plus its two 16-bit halves for callers that need
// to resume rolling from here.
func rollingChecksum(block []byte) (weak uint32, a uint32, b uint32) {
	l := uint32(len(block))
	for i, d := range block {
		a += uint32(d)
		b += (l - uint32(i)) * uint32(d)
	}
	a %= mod
	b %= mod
	return (b << 16) | a, a, b
}

// Compute reads r one block at a time and sends a Block per block down the
// returned channel, closing it when r is exhausted or ctx is cancelled. It
// does not block; the caller must drain the channel or cancel ctx to avoid
// leaking the goroutine. The caller must not pass a nil reader.
func Compute(ctx context.Context, r io.Reader) (<-chan Block, error) {
	if r == nil {
		return nil, errors.New("blocksum: reader required")
	}

	out := make(chan Block)
	go func() {
		defer close(out)

		buffer := make([]byte, BlockSize)
		var index uint64
		for {
			select {
			case <-ctx.Done():
				out <- Block{Index: index, Error: ctx.Err()}
				return
			default:
			}

			n, err := io.ReadFull(r, buffer)
			if err == io.EOF {
				return
			}
			if err != nil && err != io.ErrUnexpectedEOF {
				out <- Block{Index: index, Error: errors.Wrap(err, "blocksum: failed reading block")}
				return
			}

			block := buffer[:n]
			weak, _, _ := rollingChecksum(block)
			out <- Block{
				Index:  index,
				Weak:   weak,
				Strong: strongHex(block),
			}
			index++

			if err == io.ErrUnexpectedEOF {
				return
			}
		}
	}()

	return out, nil
}

// Table drains blocks into a LookupTable. Blocks carrying an Error are
// logged to the caller via the returned error only if ctx is cancelled
// mid-drain; a per-block read error otherwise just means that block is
// skipped, so a lookup miss on it degrades to a literal, never corruption.
func Table(ctx context.Context, blocks <-chan Block) (LookupTable, error) {
	table := make(LookupTable)
	for b := range blocks {
		select {
		case <-ctx.Done():
			return table, errors.Wrap(ctx.Err(), "blocksum: failed building lookup table")
		default:
		}

		if b.Error != nil {
			continue
		}
		table[b.Weak] = append(table[b.Weak], b)
	}
	return table, nil
}

func strongHex(block []byte) string {
	sum := sha256.Sum256(block)
	return hex.EncodeToString(sum[:])
}
