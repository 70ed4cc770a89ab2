// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fstree

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path"
	"testing"
	"time"

	"github.com/hooklift/assert"
)

// memFS is a minimal in-memory FS fake used to test Walk without touching
// disk, grounded on the corpus convention of small filesystem seams
// (opencoff-go-fio's walker takes the same shape, an interface the walk
// function is oblivious to the concrete implementation of).
type memFS struct {
	dirs  map[string][]string // path -> child names
	files map[string][]byte
	mtime map[string]time.Time
}

type memFileInfo struct {
	name  string
	size  int64
	mtime time.Time
	dir   bool
}

func (m memFileInfo) Name() string       { return m.name }
func (m memFileInfo) Size() int64        { return m.size }
func (m memFileInfo) Mode() os.FileMode  { return 0644 }
func (m memFileInfo) ModTime() time.Time { return m.mtime }
func (m memFileInfo) IsDir() bool        { return m.dir }
func (m memFileInfo) Sys() interface{}   { return nil }

func (m *memFS) Stat(p string) (os.FileInfo, error) {
	if children, ok := m.dirs[p]; ok {
		_ = children
		return memFileInfo{name: path.Base(p), dir: true, mtime: m.mtime[p]}, nil
	}
	if data, ok := m.files[p]; ok {
		return memFileInfo{name: path.Base(p), size: int64(len(data)), mtime: m.mtime[p]}, nil
	}
	return nil, os.ErrNotExist
}

func (m *memFS) ReadDir(p string) ([]os.FileInfo, error) {
	names, ok := m.dirs[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		info, err := m.Stat(m.Join(p, name))
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (m *memFS) Open(p string) (io.ReadCloser, error) {
	data, ok := m.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return ioutil.NopCloser(bytesReader(data)), nil
}

func (m *memFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func bytesReader(b []byte) io.Reader {
	return &sliceReader{data: b}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func newFixture() *memFS {
	now := time.Unix(0, 1_700_000_000_000)
	return &memFS{
		dirs: map[string][]string{
			"root":     {"a.txt", "sub"},
			"root/sub": {"b.txt"},
		},
		files: map[string][]byte{
			"root/a.txt":     []byte("hello"),
			"root/sub/b.txt": []byte("world"),
		},
		mtime: map[string]time.Time{
			"root/a.txt":     now,
			"root/sub/b.txt": now,
			"root":           now,
			"root/sub":       now,
		},
	}
}

func TestWalkBuildsSnapshotTree(t *testing.T) {
	fsys := newFixture()
	snap, err := Walk(context.Background(), fsys, "root", SizeMTimeIdentifier)
	assert.Ok(t, err)
	assert.Cond(t, snap.IsDir(), "expected root snapshot to be a directory")
	assert.Equals(t, 2, len(snap.Children))

	a := snap.Children["a.txt"]
	assert.Cond(t, !a.IsDir(), "expected a.txt to be a file leaf")
	assert.Equals(t, int64(5), a.File.Size)

	sub := snap.Children["sub"]
	assert.Cond(t, sub.IsDir(), "expected sub to be a directory")
	assert.Equals(t, 1, len(sub.Children))
	assert.Equals(t, int64(5), sub.Children["b.txt"].File.Size)
}

func TestWalkChecksumIdentifier(t *testing.T) {
	fsys := newFixture()
	snap, err := Walk(context.Background(), fsys, "root", ChecksumIdentifier)
	assert.Ok(t, err)
	assert.Cond(t, snap.Children["a.txt"].File.Checksum != "", "expected a checksum to be computed")
	assert.Cond(t, snap.Children["a.txt"].File.Checksum != snap.Children["sub"].Children["b.txt"].File.Checksum,
		"expected different file contents to hash differently")
}

func TestFileIdentifierEqual(t *testing.T) {
	a := &FileIdentifier{Size: 5, ModTimeNS: 100}
	b := &FileIdentifier{Size: 5, ModTimeNS: 100}
	c := &FileIdentifier{Size: 5, ModTimeNS: 200}
	assert.Cond(t, a.Equal(b), "expected identical size+mtime identifiers to compare equal")
	assert.Cond(t, !a.Equal(c), "expected different mtimes to compare unequal")

	sumA := &FileIdentifier{Checksum: "aaa"}
	sumB := &FileIdentifier{Checksum: "aaa"}
	sumC := &FileIdentifier{Checksum: "bbb"}
	assert.Cond(t, sumA.Equal(sumB), "expected identical checksums to compare equal")
	assert.Cond(t, !sumA.Equal(sumC), "expected different checksums to compare unequal")
}

func TestWalkContextCancellation(t *testing.T) {
	fsys := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Walk(ctx, fsys, "root", SizeMTimeIdentifier)
	assert.Cond(t, err != nil, "expected cancelled context to produce an error")
}
