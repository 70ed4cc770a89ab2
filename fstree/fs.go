// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fstree

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FS abstracts the filesystem operations the walker and receiver need,
// letting tests substitute an in-memory fake for the OS filesystem. Only
// the walker goes through it; the receiver's file mutations in patch and
// httpapi call os directly.
type FS interface {
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Join(elem ...string) string
}

// OSFS is the only FS implementation wired into cmd/; it delegates
// directly to the standard library.
type OSFS struct{}

func (OSFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (OSFS) ReadDir(path string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "fstree: failed stating entry %s", e.Name())
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (OSFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OSFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}
