// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package patch implements the rsync-style delta instruction stream: the
// rolling-match generator that produces it, the wire codec that frames it
// into HTTP-sized chunks, and the receiver-side applier that reconstructs a
// file from it plus a local copy.
package patch

const (
	// MaxChunkSize bounds how many instruction bytes are packed into a
	// single wire chunk (and therefore a single HTTP request body).
	MaxChunkSize = 0x1000000 // 16 MiB
)

// Kind distinguishes the two instruction shapes in a patch stream.
type Kind int

const (
	// KindCopy instructs the receiver to copy an existing block from its
	// own current copy of the file.
	KindCopy Kind = iota
	// KindLiteral carries raw bytes that must be written as-is.
	KindLiteral
)

// Item is one instruction in a patch stream: either a reference to an
// existing destination block or a run of literal bytes.
type Item struct {
	Kind Kind
	// Index is the destination block index, valid when Kind == KindCopy.
	Index uint64
	// Data is the literal payload, valid when Kind == KindLiteral.
	Data []byte
	// Error reports a failure reading the source file. The generator
	// stops after emitting an errored item.
	Error error
}
