// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package patch

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncatedChunk is returned by Parse when a chunk ends mid-header or
// mid-payload.
var ErrTruncatedChunk = errors.New("patch: truncated chunk")

// Frame consumes items and emits wire-format chunks of at most maxChunk
// bytes each. It does not block; the caller must drain the returned channel.
// Copy items are always emitted whole (8 bytes); Literal payloads larger
// than the remaining room in the current chunk are split across chunks,
// each piece re-prefixed with its own length header.
func Frame(items <-chan Item, maxChunk int) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)

		chunk := make([]byte, 0, maxChunk)
		flush := func() {
			if len(chunk) > 0 {
				out <- append([]byte(nil), chunk...)
				chunk = chunk[:0]
			}
		}

		for item := range items {
			if item.Error != nil {
				flush()
				return
			}

			switch item.Kind {
			case KindCopy:
				if maxChunk-len(chunk) < 8 {
					flush()
				}
				chunk = appendInt64(chunk, -int64(item.Index))
			case KindLiteral:
				pos := 0
				for pos < len(item.Data) {
					if maxChunk-len(chunk) < 9 {
						flush()
					}
					room := maxChunk - len(chunk) - 8
					end := pos + room
					if end > len(item.Data) {
						end = len(item.Data)
					}
					slice := item.Data[pos:end]
					if len(slice) == 0 {
						break
					}
					chunk = appendInt64(chunk, int64(len(slice)))
					chunk = append(chunk, slice...)
					pos += len(slice)
				}
			}
		}
		flush()
	}()
	return out
}

// Parse decodes one wire chunk into its instruction items. A value of
// exactly zero is always decoded as Copy(0); the producer never emits an
// empty Literal, so this ambiguity resolves unconditionally in Copy's
// favor (see §4.9 of the design notes).
func Parse(chunk []byte) ([]Item, error) {
	var items []Item
	pos := 0
	for pos < len(chunk) {
		if pos+8 > len(chunk) {
			return nil, ErrTruncatedChunk
		}
		v := int64(binary.LittleEndian.Uint64(chunk[pos : pos+8]))
		pos += 8

		if v <= 0 {
			items = append(items, Item{Kind: KindCopy, Index: uint64(-v)})
			continue
		}

		length := int(v)
		if pos+length > len(chunk) {
			return nil, ErrTruncatedChunk
		}
		items = append(items, Item{Kind: KindLiteral, Data: chunk[pos : pos+length]})
		pos += length
	}
	return items, nil
}

func appendInt64(b []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(b, tmp[:]...)
}
