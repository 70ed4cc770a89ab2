// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package patch

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/c4milo/deltasync/blocksum"
)

// ErrBlockIndexOutOfRange is returned when a Copy instruction references a
// block beyond what the old file can possibly contain. The applier cannot
// know the true block count of the sender's source file, so this only
// catches instructions that seek past what a non-negative offset allows;
// most out-of-range indices simply yield a short (possibly empty) read,
// which is tolerated per §4.6.
var ErrBlockIndexOutOfRange = errors.New("patch: block index out of range")

// Applier reconstructs a patched file by streaming Copy/Literal
// instructions, parsed incrementally across however many chunks they
// arrive in, into a side file. It never buffers a full instruction payload
// in memory: a Literal whose declared length straddles two chunks is
// written to the side file in the pieces it arrives in.
type Applier struct {
	old *os.File
	new *os.File

	header          []byte // 0..7 bytes of a partially received 8-byte header
	literalPending  int64  // bytes of the current literal still to be written
	blockBuf        []byte
}

// NewApplier opens oldPath for reading (the destination's current copy) and
// newPath for appending (the side file receiving the reconstructed
// content). newPath must not already exist.
func NewApplier(oldPath, newPath string) (*Applier, error) {
	old, err := os.Open(oldPath)
	if err != nil {
		return nil, errors.Wrap(err, "patch: failed opening old file")
	}

	newFile, err := os.OpenFile(newPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0644)
	if err != nil {
		old.Close()
		return nil, errors.Wrap(err, "patch: failed creating side file")
	}

	return &Applier{
		old:      old,
		new:      newFile,
		blockBuf: make([]byte, blocksum.BlockSize),
	}, nil
}

// Apply parses and applies as many instructions as chunk contains,
// retaining any partially-received header or literal payload for the next
// call.
func (a *Applier) Apply(chunk []byte) error {
	pos := 0
	for pos < len(chunk) {
		if a.literalPending > 0 {
			n := a.literalPending
			if remaining := int64(len(chunk) - pos); remaining < n {
				n = remaining
			}
			if _, err := a.new.Write(chunk[pos : pos+int(n)]); err != nil {
				return errors.Wrap(err, "patch: failed writing literal to side file")
			}
			pos += int(n)
			a.literalPending -= n
			continue
		}

		need := 8 - len(a.header)
		avail := len(chunk) - pos
		if avail < need {
			a.header = append(a.header, chunk[pos:]...)
			return nil
		}
		a.header = append(a.header, chunk[pos:pos+need]...)
		pos += need

		v := int64(binary.LittleEndian.Uint64(a.header))
		a.header = a.header[:0]

		if v <= 0 {
			if err := a.copyBlock(uint64(-v)); err != nil {
				return err
			}
			continue
		}
		a.literalPending = v
	}
	return nil
}

func (a *Applier) copyBlock(index uint64) error {
	offset := int64(index) * blocksum.BlockSize
	if offset < 0 {
		return ErrBlockIndexOutOfRange
	}

	n, err := a.old.ReadAt(a.blockBuf, offset)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "patch: failed reading block from old file")
	}
	if _, err := a.new.Write(a.blockBuf[:n]); err != nil {
		return errors.Wrap(err, "patch: failed writing copied block to side file")
	}
	return nil
}

// Finish closes both handles, renames the side file over the destination
// file, and sets the destination's modification time to mtimeNS.
func (a *Applier) Finish(destPath string, mtimeNS int64) error {
	if len(a.header) > 0 || a.literalPending > 0 {
		a.Abort()
		return errors.New("patch: finish called with an incomplete instruction pending")
	}

	newPath := a.new.Name()
	if err := a.new.Close(); err != nil {
		a.old.Close()
		return errors.Wrap(err, "patch: failed closing side file")
	}
	if err := a.old.Close(); err != nil {
		return errors.Wrap(err, "patch: failed closing old file")
	}

	if err := os.Rename(newPath, destPath); err != nil {
		return errors.Wrap(err, "patch: failed renaming side file over destination")
	}
	return setModTime(destPath, mtimeNS)
}

// Abort closes both handles and removes the side file without touching the
// destination. Used when a request fails mid-patch; the patch cannot be
// resumed afterwards.
func (a *Applier) Abort() {
	name := a.new.Name()
	a.new.Close()
	a.old.Close()
	os.Remove(name)
}
