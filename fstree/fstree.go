// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fstree walks a filesystem tree into a Snapshot of leaf
// identifiers, and provides the path-safety check used to keep
// network-supplied relative paths inside a configured root.
package fstree

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"sort"

	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// Snapshot is a tagged union: either a directory (Children non-nil) or a
// file leaf (Children nil, File set). Encoding it as a struct with both
// fields rather than an interface keeps marshaling to the wire-level JSON
// tree in httpapi a single, obvious case split.
type Snapshot struct {
	Children map[string]*Snapshot `json:"children,omitempty"`
	File     *FileIdentifier      `json:"file,omitempty"`
}

// IsDir reports whether s is a directory snapshot.
func (s *Snapshot) IsDir() bool {
	return s != nil && s.Children != nil
}

// FileIdentifier is one of the two leaf shapes from the data model: either
// Size+ModTimeNS are populated (the default identifier) or Checksum is (the
// --checksum identifier). Which fields are populated is determined by
// whichever IdentifierFunc produced it; both sides of a sync must use the
// same one for identifiers to compare meaningfully.
type FileIdentifier struct {
	Size      int64  `json:"size,omitempty"`
	ModTimeNS int64  `json:"mtime_ns,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
}

// Equal reports structural equality between two leaf identifiers, as used
// by the diff planner to decide whether a file needs patching.
func (f *FileIdentifier) Equal(other *FileIdentifier) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.Checksum != "" || other.Checksum != "" {
		return f.Checksum == other.Checksum
	}
	return f.Size == other.Size && f.ModTimeNS == other.ModTimeNS
}

// IdentifierFunc computes the leaf identifier for a regular file at path,
// given its os.FileInfo. Identifier kinds are pluggable per sync run; the
// walker is oblivious to which one is in use.
type IdentifierFunc func(fs FS, path string, info os.FileInfo) (*FileIdentifier, error)

// SizeMTimeIdentifier is the default identifier: file size plus nanosecond
// modification time, no content read required.
func SizeMTimeIdentifier(fs FS, path string, info os.FileInfo) (*FileIdentifier, error) {
	return &FileIdentifier{
		Size:      info.Size(),
		ModTimeNS: info.ModTime().UnixNano(),
	}, nil
}

// ChecksumIdentifier hashes the entire file with SHA-256, used when the
// sender is invoked with --checksum. Grounded on blocksum's use of
// minio/sha256-simd for the same accelerated digest surface.
func ChecksumIdentifier(fsys FS, path string, info os.FileInfo) (*FileIdentifier, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fstree: failed opening %s for checksum", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.Wrapf(err, "fstree: failed hashing %s", path)
	}
	return &FileIdentifier{Checksum: hex.EncodeToString(h.Sum(nil))}, nil
}

// Walk produces a Snapshot rooted at path using identify to compute leaf
// identifiers. Order of entries within a directory is not significant to
// consumers; ReadDir results are sorted only for deterministic test output.
func Walk(ctx context.Context, fsys FS, path string, identify IdentifierFunc) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	info, err := fsys.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fstree: failed stating %s", path)
	}

	if !info.IsDir() {
		id, err := identify(fsys, path, info)
		if err != nil {
			return nil, err
		}
		return &Snapshot{File: id}, nil
	}

	entries, err := fsys.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fstree: failed reading directory %s", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	children := make(map[string]*Snapshot, len(entries))
	for _, entry := range entries {
		child, err := Walk(ctx, fsys, fsys.Join(path, entry.Name()), identify)
		if err != nil {
			return nil, err
		}
		children[entry.Name()] = child
	}
	return &Snapshot{Children: children}, nil
}
