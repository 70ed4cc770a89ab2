// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package patch

import (
	"context"
	"encoding/hex"
	"io"

	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"

	"github.com/c4milo/deltasync/blocksum"
)

// Generate rolls a window across src and emits Copy/Literal items that,
// applied against the destination's current copy of the file (whose blocks
// are described by table), reconstruct src exactly. It does not block; the
// caller must drain the returned channel or cancel ctx. The caller must not
// pass a nil reader.
func Generate(ctx context.Context, src io.Reader, table blocksum.LookupTable) (<-chan Item, error) {
	if src == nil {
		return nil, errors.New("patch: reader required")
	}

	out := make(chan Item)
	go func() {
		defer close(out)

		win := newWindow()
		_, endOfSource, err := win.fill(src)
		if err != nil {
			out <- Item{Error: errors.Wrap(err, "patch: failed reading source")}
			return
		}
		if win.empty() {
			return
		}
		_, a, b := rollingChecksum(win.bytes())

		var literal []byte
		for !win.empty() {
			select {
			case <-ctx.Done():
				out <- Item{Error: ctx.Err()}
				return
			default:
			}

			rolling := (b << 16) | a
			matched := int64(-1)
			if candidates, ok := table[rolling]; ok {
				strong := strongHex(win.bytes())
				for _, c := range candidates {
					if c.Strong == strong {
						matched = int64(c.Index)
						break
					}
				}
			}

			if matched >= 0 {
				if len(literal) > 0 {
					out <- Item{Kind: KindLiteral, Data: literal}
					literal = nil
				}
				out <- Item{Kind: KindCopy, Index: uint64(matched)}

				_, eos, err := win.fill(src)
				if err != nil {
					out <- Item{Error: errors.Wrap(err, "patch: failed reading source")}
					return
				}
				endOfSource = eos
				if win.empty() {
					break
				}
				_, a, b = rollingChecksum(win.bytes())
				continue
			}

			old := win.pushFront()
			var newByte byte
			if !endOfSource {
				var one [1]byte
				n, rerr := src.Read(one[:])
				if n > 0 {
					newByte = one[0]
					win.pushBack(newByte)
				} else {
					endOfSource = true
					if rerr != nil && rerr != io.EOF {
						out <- Item{Error: errors.Wrap(rerr, "patch: failed reading source")}
						return
					}
				}
			}

			a = (a - uint32(old) + uint32(newByte)) % mod
			b = (b - uint32(old)*blocksum.BlockSize + a) % mod
			literal = append(literal, old)
		}

		if len(literal) > 0 {
			out <- Item{Kind: KindLiteral, Data: literal}
		}
	}()

	return out, nil
}

func strongHex(block []byte) string {
	sum := sha256.Sum256(block)
	return hex.EncodeToString(sum[:])
}
